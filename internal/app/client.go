package app

import (
	"context"

	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/delivery"
	"github.com/matheus3301/driftchat/internal/outbox"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/store"
	intsync "github.com/matheus3301/driftchat/internal/sync"
	"github.com/matheus3301/driftchat/internal/typing"
	"go.uber.org/fx"
)

// Client is the surface the command line drives.
type Client struct {
	Identity    session.Identity
	Bus         *bus.Bus
	Monitor     *status.Monitor
	Outbox      *outbox.Outbox
	Coordinator *delivery.Coordinator
	Broadcaster *typing.Broadcaster
	Engine      *intsync.Engine
	DB          *store.DB
}

type clientParams struct {
	fx.In

	Identity    session.Identity
	Bus         *bus.Bus
	Monitor     *status.Monitor
	Outbox      *outbox.Outbox
	Coordinator *delivery.Coordinator
	Broadcaster *typing.Broadcaster
	Engine      *intsync.Engine
	DB          *store.DB
}

// NewClient bundles the running components.
func NewClient(p clientParams) *Client {
	return &Client{
		Identity:    p.Identity,
		Bus:         p.Bus,
		Monitor:     p.Monitor,
		Outbox:      p.Outbox,
		Coordinator: p.Coordinator,
		Broadcaster: p.Broadcaster,
		Engine:      p.Engine,
		DB:          p.DB,
	}
}

// Send ends the local typing state and sends content as this client.
func (c *Client) Send(ctx context.Context, content string) (*delivery.Message, error) {
	c.Broadcaster.Stop(ctx)
	return c.Coordinator.Send(ctx, content, c.Identity)
}

// Retry re-attempts a failed message.
func (c *Client) Retry(ctx context.Context, id string) error {
	return c.Coordinator.Retry(ctx, id)
}

// Reconnect is the user's "try again now" action.
func (c *Client) Reconnect() {
	c.Monitor.Retry()
}

// Connection returns the current connection state.
func (c *Client) Connection() status.State {
	return c.Monitor.State()
}

// Search looks up cached messages containing query.
func (c *Client) Search(query string, limit int) ([]store.SearchResult, error) {
	return c.DB.SearchMessages(query, limit)
}
