package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RefusesConcurrentRun(t *testing.T) {
	d := NewDispatcher()
	release := make(chan struct{})

	require.NoError(t, d.TryLaunch(InboxJobName, func(ctx context.Context) error {
		<-release
		return nil
	}))
	assert.True(t, d.Running(InboxJobName))

	err := d.TryLaunch(InboxJobName, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrJobAlreadyRunning)

	err = d.Run(context.Background(), InboxJobName, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrJobAlreadyRunning)

	require.NoError(t, d.TryLaunch("other", func(ctx context.Context) error { return nil }))

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.False(t, d.Running(InboxJobName))

	require.NoError(t, NewDispatcher().TryLaunch(InboxJobName, func(ctx context.Context) error { return nil }))
}

func TestDispatcher_ErrorsAreReportedNotReturned(t *testing.T) {
	d := NewDispatcher()

	var ran atomic.Bool
	err := d.TryLaunch(InboxJobName, func(ctx context.Context) error {
		ran.Store(ctx.Err() == nil)
		return errors.New("gmail unavailable")
	})

	require.NoError(t, err)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestDispatcher_ShutdownTimeoutCancelsJobs(t *testing.T) {
	d := NewDispatcher()
	stopped := make(chan struct{})

	require.NoError(t, d.TryLaunch(InboxJobName, func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
}

func TestDispatcher_RunReturnsError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")

	err := d.Run(context.Background(), InboxJobName, func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.False(t, d.Running(InboxJobName))
}
