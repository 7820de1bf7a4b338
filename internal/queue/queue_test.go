package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestInMemoryQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, NewAbsenceJob("2024-03-11")))
	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := receive(t, ch)
	assert.Equal(t, TypeAbsences, msg.Type)
	assert.Equal(t, "2024-03-11", string(msg.Body))
	assert.NotEmpty(t, msg.ID)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRedisQueueFIFO(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewRedisQueue(client, "", nil)
	q.timeout = 100 * time.Millisecond

	require.NoError(t, q.Publish(ctx, NewAbsenceJob("2024-03-11")))
	require.NoError(t, q.Publish(ctx, NewAbsenceJob("2024-03-12")))
	require.NoError(t, client.LPush(ctx, DefaultKey, "not json").Err())

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	first := receive(t, ch)
	second := receive(t, ch)
	assert.Equal(t, "2024-03-11", string(first.Body))
	assert.Equal(t, "2024-03-12", string(second.Body))
	assert.Equal(t, TypeAbsences, second.Type)
}
