package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	startErr error
	started  chan struct{}
	stopped  bool
}

func (s *fakeServer) Start(ctx context.Context) error {
	close(s.started)
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := &fakeServer{started: make(chan struct{})}
	var order []string
	a := New("test", discard(),
		WithVersion("v0"),
		WithServer(srv),
		WithShutdownTimeout(time.Second),
		WithHook(Hook{
			Name:    "h",
			OnStart: func(context.Context) error { order = append(order, "start"); return nil },
			OnStop:  func(context.Context) error { order = append(order, "stop"); return nil },
		}),
		WithCleanup(func() { order = append(order, "cleanup") }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-srv.started
		cancel()
	}()

	require.NoError(t, a.Run(ctx))
	assert.True(t, srv.stopped)
	assert.Equal(t, []string{"start", "stop", "cleanup"}, order)
}

func TestRunReturnsServerError(t *testing.T) {
	boom := errors.New("listen failed")
	srv := &fakeServer{started: make(chan struct{}), startErr: boom}
	a := New("test", discard(), WithServer(srv))

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLifecycleRollsBackOnStartFailure(t *testing.T) {
	var stopped []string
	lc := NewLifecycle(discard())
	lc.Append(Hook{Name: "a", OnStop: func(context.Context) error { stopped = append(stopped, "a"); return nil }})
	lc.Append(Hook{Name: "b", OnStart: func(context.Context) error { return errors.New("nope") }})

	err := lc.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, stopped)
}
