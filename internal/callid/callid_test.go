package callid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("got (%d,%v), want (%d,true)", got, ok, id)
	}
}

func TestFromContextMissing(t *testing.T) {
	if id, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id %d on empty context", id)
	}
}
