package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJob(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	queued, err := q.Enqueue(Job{Type: "generate", Payload: "payload"})
	require.NoError(t, err)
	assert.NotEmpty(t, queued.ID)

	select {
	case job := <-done:
		assert.Equal(t, queued.ID, job.ID)
		assert.Equal(t, "payload", job.Payload)
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRetriesThenExhausts(t *testing.T) {
	var calls int32
	exhausted := make(chan error, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, QueueConfig{
		Workers:     1,
		MaxRetries:  1,
		RetryDelay:  5 * time.Millisecond,
		OnExhausted: func(job Job, err error) { exhausted <- err },
	})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(Job{Type: "generate"})
	require.NoError(t, err)

	select {
	case err := <-exhausted:
		assert.EqualError(t, err, "boom")
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	case <-time.After(time.Second):
		t.Fatal("job never exhausted")
	}
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	_, err := q.Enqueue(Job{})
	require.Error(t, err)
}
