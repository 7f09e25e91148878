package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct {
	N int
}

type pong struct {
	N int
}

func TestPublishReachesSubscribersOfMatchingType(t *testing.T) {
	Use(New())
	defer Use(nil)

	var pings, pongs []int
	unsubPing := Subscribe(func(_ context.Context, e ping) { pings = append(pings, e.N) })
	defer unsubPing()
	unsubPong := Subscribe(func(_ context.Context, e pong) { pongs = append(pongs, e.N) })
	defer unsubPong()

	Publish(context.Background(), ping{N: 1})
	Publish(context.Background(), ping{N: 2})
	Publish(context.Background(), pong{N: 3})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, []int{3}, pongs)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got int
	unsub := Subscribe(func(_ context.Context, e ping) { got = e.N })
	Publish(context.Background(), ping{N: 1})
	unsub()
	unsub() // removing twice is harmless
	Publish(context.Background(), ping{N: 2})

	require.Equal(t, 1, got)
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	Use(New())
	defer Use(nil)

	var order []string
	defer Subscribe(func(context.Context, ping) { order = append(order, "first") })()
	defer Subscribe(func(context.Context, ping) { order = append(order, "second") })()

	Publish(context.Background(), ping{})
	require.Equal(t, []string{"first", "second"}, order)
}

func TestNilBusDropsEverything(t *testing.T) {
	Use(nil)

	unsub := Subscribe(func(context.Context, ping) { t.Fatal("must not fire") })
	Publish(context.Background(), ping{N: 1})
	unsub()
}
