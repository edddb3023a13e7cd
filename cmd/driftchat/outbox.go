package main

import (
	"fmt"

	"github.com/matheus3301/driftchat/internal/config"
	"github.com/matheus3301/driftchat/internal/kv"
	"github.com/matheus3301/driftchat/internal/lock"
	"github.com/matheus3301/driftchat/internal/outbox"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/store"
	"github.com/spf13/cobra"
)

func newOutboxCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect or clear messages waiting to be sent",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List queued messages",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withOutbox(opts, func(ob *outbox.Outbox) error {
					msgs := ob.Messages()
					if opts.json {
						outputJSON(msgs)
						return nil
					}
					printQueue(cmd.OutOrStdout(), msgs)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop every queued message",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withOutbox(opts, func(ob *outbox.Outbox) error {
					n := ob.Len()
					ob.Clear()
					fmt.Fprintf(cmd.OutOrStdout(), "cleared %d message(s)\n", n)
					return nil
				})
			},
		},
	)
	return cmd
}

// withOutbox opens the session's durable queue without connecting anywhere.
// The session lock keeps a running chat from racing the edit.
func withOutbox(opts *rootOptions, fn func(*outbox.Outbox) error) error {
	name, cfg, err := opts.resolve()
	if err != nil {
		return err
	}
	if err := session.EnsureDir(name); err != nil {
		return err
	}
	lk, err := lock.Acquire(session.Dir(name))
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	storage, closeFn, err := openStorage(name, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(outbox.Load(storage, nil, outbox.Options{MaxRetries: cfg.Outbox.MaxRetries}, nil, nil))
}

func openStorage(name string, cfg *config.Config) (kv.Storage, func(), error) {
	if cfg.Storage.Driver == "pebble" {
		pb, err := kv.OpenPebble(session.PebbleDir(name))
		if err != nil {
			return nil, nil, err
		}
		return pb, func() { _ = pb.Close() }, nil
	}
	db, err := store.Open(session.AppDBPath(name))
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
