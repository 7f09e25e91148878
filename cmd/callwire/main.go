package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hanpama/callwire/internal/callops"
	"github.com/hanpama/callwire/internal/chantp"
	"github.com/hanpama/callwire/internal/codec"
	"github.com/hanpama/callwire/internal/eventbus"
	"github.com/hanpama/callwire/internal/otel"
	"github.com/hanpama/callwire/internal/rpcstatus"
)

const rootUsage = `callwire — batch-oriented call assembly over a completion-queue transport

USAGE:
  callwire <command> [flags]

COMMANDS:
  echo             Run unary echo round trips over an in-process call pair
  help             Show help for any command
`

const echoUsage = `echo FLAGS:
  -n <count>               Number of calls to run (default: 1)
  -codec <name>            Payload codec: json, proto or raw (default: json)
  -max-recv-bytes <n>      Receive size bound; negative = unbounded (default: -1)
  -otel.endpoint <addr>    OTLP collector endpoint
  -otel.service <name>     OpenTelemetry service name (default: callwire)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "echo":
		return runEcho(args[1:])
	case "help":
		return runHelp(args[1:])
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "echo":
		fmt.Print(echoUsage)
	default:
		fmt.Print(rootUsage)
	}
	return nil
}

func runEcho(args []string) error {
	fs := flag.NewFlagSet("echo", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer)) // silence automatic output
	var (
		n            = fs.Int("n", 1, "")
		codecName    = fs.String("codec", "json", "")
		maxRecv      = fs.Int("max-recv-bytes", -1, "")
		otelEndpoint = fs.String("otel.endpoint", "", "")
		otelService  = fs.String("otel.service", "callwire", "")
	)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, echoUsage)
		return err
	}

	c, err := codec.ByName(*codecName)
	if err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(*otelEndpoint, *otelService)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < *n; i++ {
		if err := echoOnce(ctx, c, *maxRecv, i); err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
	}
	fmt.Printf("echo: %d calls in %s (codec=%s)\n", *n, time.Since(start), c.Name())
	return nil
}

// echoPayload is the json-codec demo message.
type echoPayload struct {
	Seq  int
	Text string
}

func newPayload(c codec.Codec, seq int) (msg, dst any) {
	text := fmt.Sprintf("echo-%d", seq)
	switch c.(type) {
	case codec.Proto:
		return wrapperspb.String(text), &wrapperspb.StringValue{}
	case codec.Raw:
		return []byte(text), new([]byte)
	default:
		return &echoPayload{Seq: seq, Text: text}, &echoPayload{}
	}
}

// echoOnce runs one full unary round trip: the canonical client batch on one
// side, a two-batch echo server on the other.
func echoOnce(ctx context.Context, c codec.Codec, maxRecv, seq int) error {
	p := chantp.NewPair(ctx, chantp.WithMaxRecvBytes(maxRecv))
	defer p.Close()

	serverErr := make(chan error, 1)
	go func() { serverErr <- serveEcho(ctx, p) }()

	msg, dst := newPayload(c, seq)

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		closeOp callops.ClientSendClose
		recvMD  callops.RecvInitialMetadata
		recvMsg callops.GenericRecvMessage
		recvSt  callops.ClientRecvStatus
	)
	sendMD.Set(metadata.Pairs("client", "callwire-echo"))
	if err := sendMsg.Set(msg, c); err != nil {
		return err
	}
	closeOp.Set()
	var initialMD, trailingMD metadata.MD
	recvMD.Set(&initialMD)
	recvMsg.Set(callops.DecodeInto(dst, c))
	var st rpcstatus.Status
	recvSt.Set(&trailingMD, &st)

	set := callops.NewOpSet(&sendMD, &sendMsg, &recvMsg, &closeOp, &recvMD, &recvSt)
	p.Client.PerformOps(set)

	out, ok, err := p.ClientQueue.Next(ctx)
	if err != nil {
		return err
	}
	if out != any(set) {
		return errors.New("unexpected completion tag")
	}
	if !ok {
		return errors.New("client batch failed")
	}
	if !recvMsg.GotMessage {
		return errors.New("no echo payload delivered")
	}
	if err := st.Err(); err != nil {
		return err
	}
	return <-serverErr
}

// serveEcho receives one request without interpreting it and echoes the
// payload bytes back with an OK status.
func serveEcho(ctx context.Context, p *chantp.Pair) error {
	var (
		reqBytes []byte
		clientMD metadata.MD
		recvMsg  callops.GenericRecvMessage
		recvMD   callops.RecvInitialMetadata
	)
	recvMsg.Set(callops.DecodeInto(&reqBytes, codec.Raw{}))
	recvMD.Set(&clientMD)
	in := callops.NewOpSet(&recvMsg, &recvMD)
	p.Server.PerformOps(in)
	if _, ok, err := p.ServerQueue.Next(ctx); err != nil {
		return err
	} else if !ok || !recvMsg.GotMessage {
		return errors.New("echo server: no request")
	}

	var (
		sendMD  callops.SendInitialMetadata
		sendMsg callops.SendMessage
		sendSt  callops.ServerSendStatus
	)
	sendMD.Set(metadata.Pairs("server", "callwire-echo"))
	if err := sendMsg.Set(reqBytes, codec.Raw{}); err != nil {
		return err
	}
	sendSt.Set(metadata.Pairs("echoed", "1"), rpcstatus.OK)
	out := callops.NewOpSet(&sendMD, &sendMsg, &sendSt)
	p.Server.PerformOps(out)
	if _, ok, err := p.ServerQueue.Next(ctx); err != nil {
		return err
	} else if !ok {
		return errors.New("echo server: reply batch failed")
	}
	return nil
}
