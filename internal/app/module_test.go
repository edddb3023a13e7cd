package app

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/driftchat/internal/config"
	"github.com/matheus3301/driftchat/internal/delivery"
	"github.com/matheus3301/driftchat/internal/lock"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestClientLifecycle(t *testing.T) {
	t.Setenv("DRIFTCHAT_HOME", t.TempDir())

	mem := remote.NewMemory()
	cfg := config.Default()
	cfg.Outbox.DrainGap = 0

	var c *Client
	app := fxtest.New(t,
		Module(Params{SessionName: "test", Config: cfg, Alias: "alice", Remote: mem}),
		fx.Populate(&c),
	)
	app.RequireStart()

	require.Equal(t, status.Connected, c.Connection().Status)
	require.Equal(t, "alice", c.Identity.Alias)

	// A second client of the same session is refused.
	_, err := lock.Acquire(session.Dir("test"))
	var held *lock.LockHeldError
	require.ErrorAs(t, err, &held)

	ctx := context.Background()
	m, err := c.Send(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, delivery.Delivered, m.Status)
	require.Equal(t, 1, mem.Commits(remote.MessagesCollection, m.ID))

	// Lose the store: the next message waits in the outbox.
	mem.SetOnline(false)
	c.Monitor.HandleOffline()
	queued, err := c.Send(ctx, "while offline")
	require.NoError(t, err)
	require.Equal(t, delivery.Sending, queued.Status)
	require.Equal(t, 1, c.Coordinator.Pending())

	mem.SetOnline(true)
	c.Monitor.HandleOnline()
	require.Eventually(t, func() bool {
		got, _ := c.Coordinator.Timeline().Get(queued.ID)
		return got.Status == delivery.Delivered
	}, 2*time.Second, 5*time.Millisecond)

	results, err := c.Search("offline", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	app.RequireStop()

	// The lock is released on stop.
	l, err := lock.Acquire(session.Dir("test"))
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestOutboxSurvivesRestart(t *testing.T) {
	t.Setenv("DRIFTCHAT_HOME", t.TempDir())

	for _, driver := range []string{"sqlite", "pebble"} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Driver = driver
			name := "restart-" + driver

			mem := remote.NewMemory()
			mem.SetOnline(false)

			var c *Client
			app := fxtest.New(t, Module(Params{SessionName: name, Config: cfg, Remote: mem}), fx.Populate(&c))
			app.RequireStart()
			require.Equal(t, status.Error, c.Connection().Status)

			m, err := c.Send(context.Background(), "survive me")
			require.NoError(t, err)
			app.RequireStop()

			mem.SetOnline(true)
			app = fxtest.New(t, Module(Params{SessionName: name, Config: cfg, Remote: mem}), fx.Populate(&c))
			app.RequireStart()
			defer app.RequireStop()

			require.Eventually(t, func() bool {
				got, _ := c.Coordinator.Timeline().Get(m.ID)
				return got.Status == delivery.Delivered
			}, 2*time.Second, 5*time.Millisecond)
			require.Zero(t, c.Coordinator.Pending())
		})
	}
}
