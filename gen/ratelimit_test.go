package gen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitedDisabled(t *testing.T) {
	inner := Func(func(ctx context.Context, req Request) (*Response, error) {
		return Text("ok"), nil
	})

	// Zero or negative rates mean no wrapping at all.
	assert.NotNil(t, NewRateLimited(inner, 0))
	_, isWrapped := NewRateLimited(inner, 0).(*RateLimited)
	assert.False(t, isWrapped)
	_, isWrapped = NewRateLimited(inner, -5).(*RateLimited)
	assert.False(t, isWrapped)

	_, isWrapped = NewRateLimited(inner, 60).(*RateLimited)
	assert.True(t, isWrapped)
}

func TestRateLimitedPassesThrough(t *testing.T) {
	calls := 0
	client := NewRateLimited(Func(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return Text("ok"), nil
	}), 6000) // high enough that the first call admits immediately

	resp, err := client.Call(context.Background(), Request{Task: "draft_document"})
	require.NoError(t, err)
	require.False(t, resp.IsPending())
	assert.Equal(t, 1, calls)
}

func TestRateLimitedHonorsCancellation(t *testing.T) {
	client := NewRateLimited(Func(func(ctx context.Context, req Request) (*Response, error) {
		return Text("ok"), nil
	}), 1) // one call per minute: the second call would wait ~60s

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, Request{Task: "first"})
	require.NoError(t, err)

	_, err = client.Call(ctx, Request{Task: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
}
