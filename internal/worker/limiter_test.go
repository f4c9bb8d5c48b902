package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_New(t *testing.T) {
	assert.Equal(t, 5, NewLimiter(10, 5).defaultBurst)
	assert.Equal(t, 5, NewLimiter(10, -1).defaultBurst)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "openai"))
	assert.False(t, limiter.Allow("openai"), "token exhausted")
	assert.True(t, limiter.Allow("anthropic"))
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 20; i++ {
		assert.True(t, limiter.Allow("ollama"))
	}
}

func TestLimiter_WaitURLKeysByHost(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	require.NoError(t, limiter.WaitURL(ctx, "https://Lore.Example.com/era3"))
	assert.False(t, limiter.Allow("lore.example.com"))
	assert.True(t, limiter.Allow("other.example.com"))

	assert.Error(t, limiter.WaitURL(ctx, "/relative/path"))
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	require.True(t, limiter.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "slow"))
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	require.NoError(t, limiter.WaitWithDelay(context.Background(), "example.com", 50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRate("slow.com", 0.1, 1)

	assert.True(t, limiter.Allow("slow.com"))
	assert.False(t, limiter.Allow("slow.com"))
	assert.True(t, limiter.Allow("fast.com"))
}

func TestHostKey(t *testing.T) {
	host, err := HostKey("http://Example.com:8080/foo")
	require.NoError(t, err)
	assert.Equal(t, "example.com:8080", host)

	_, err = HostKey("::invalid")
	assert.Error(t, err)
}
