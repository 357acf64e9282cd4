package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	N int `json:"n"`
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := NewInMemory(4)
	msg, err := NewMessage("ping", ping{N: 7})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "ping", got.Type)
		var p ping
		require.NoError(t, got.Decode(&p))
		assert.Equal(t, 7, p.N)
	case <-ctx.Done():
		t.Fatal("no message consumed")
	}
}

func TestInMemory_ConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestNew_Backends(t *testing.T) {
	q, err := New("memory", nil, "")
	require.NoError(t, err)
	assert.IsType(t, &InMemory{}, q)

	_, err = New("redis", nil, "")
	assert.Error(t, err)

	_, err = New("kafka", nil, "")
	assert.Error(t, err)
}
