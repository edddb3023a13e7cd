package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/driftchat/internal/app"
	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/delivery"
	"github.com/matheus3301/driftchat/internal/outbox"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/typing"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var noLink bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the room and chat from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, cfg, err := opts.resolve()
			if err != nil {
				return err
			}

			var c *app.Client
			fxApp := fx.New(
				app.Module(app.Params{SessionName: name, Config: cfg, Alias: opts.alias, LinkProbe: !noLink}),
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
				fx.Populate(&c),
			)
			startCtx, cancel := context.WithTimeout(cmd.Context(), fxApp.StartTimeout())
			defer cancel()
			if err := fxApp.Start(startCtx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
				defer cancel()
				_ = fxApp.Stop(stopCtx)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, c, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noLink, "no-link-watch", false, "do not watch OS network interfaces")
	return cmd
}

func runChat(ctx context.Context, c *app.Client, in io.Reader, out io.Writer) error {
	events, unsub := c.Bus.Subscribe("", 256)
	defer unsub()

	fmt.Fprintf(out, "driftchat as %s (%s)\n", c.Identity.Alias, c.Identity.ID)
	printBanner(out, c.Connection(), c.Coordinator.Pending())
	for _, m := range c.Coordinator.Timeline().List() {
		printMessage(out, m)
	}
	if n := c.Engine.Unseen(); n > 0 {
		fmt.Fprintf(out, "-- %d new since last session --\n", n)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-events:
			printEvent(out, c, evt)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, c, out, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, c *app.Client, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/reconnect":
		c.Reconnect()
	case "/retry":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /retry <message-id>")
			return false
		}
		if err := c.Retry(ctx, fields[1]); err != nil {
			fmt.Fprintf(out, "retry failed: %v\n", err)
		}
	case "/outbox":
		printQueue(out, c.Outbox.Messages())
	case "/status":
		printBanner(out, c.Connection(), c.Coordinator.Pending())
	case "/search":
		results, err := c.Search(strings.TrimSpace(strings.TrimPrefix(line, "/search")), 20)
		if err != nil {
			fmt.Fprintf(out, "search failed: %v\n", err)
			return false
		}
		for _, r := range results {
			fmt.Fprintf(out, "  %s  %s: %s\n", shortID(r.Message.ID), r.Message.SenderAlias, r.Snippet)
		}
	case "/typing":
		c.Broadcaster.Keystroke()
	default:
		_, err := c.Send(ctx, line)
		if errors.Is(err, delivery.ErrTooLong) {
			fmt.Fprintln(out, "message too long")
		} else if err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
		}
	}
	return false
}

func printEvent(out io.Writer, c *app.Client, evt bus.Event) {
	switch evt.Kind {
	case bus.ConnectionStatusChanged:
		change, ok := evt.Payload.(status.StatusChange)
		if !ok || change.From == change.To {
			return
		}
		printBanner(out, change.State, c.Coordinator.Pending())
	case bus.MessageUpserted:
		if m, ok := evt.Payload.(delivery.Message); ok {
			printMessage(out, m)
		}
	case bus.OutboxMessageFailed:
		if m, ok := evt.Payload.(outbox.QueuedMessage); ok {
			fmt.Fprintf(out, "!! gave up on %s after %d attempts; /retry %s\n", shortID(m.ID), m.RetryCount, m.ID)
		}
	case bus.TypingChanged:
		active, _ := evt.Payload.([]typing.Status)
		if len(active) == 0 {
			return
		}
		names := make([]string, len(active))
		for i, s := range active {
			names[i] = s.UserAlias
		}
		fmt.Fprintf(out, "   %s typing...\n", strings.Join(names, ", "))
	}
}

func printBanner(out io.Writer, s status.State, queued int) {
	switch s.Status {
	case status.Connected:
		fmt.Fprintln(out, "[connected]")
	case status.Connecting:
		if s.IsReconnecting {
			fmt.Fprintf(out, "[reconnecting, attempt %d]\n", s.RetryCount)
		} else {
			fmt.Fprintln(out, "[connecting]")
		}
	default:
		fmt.Fprintf(out, "[%s] %s\n", s.Status, s.Err)
	}
	if queued > 0 && s.Status != status.Connected {
		fmt.Fprintf(out, "  %d message(s) will be sent when you're back online\n", queued)
	}
}

func printMessage(out io.Writer, m delivery.Message) {
	mark := map[delivery.MessageStatus]string{
		delivery.Sending:   "…",
		delivery.Delivered: "✓",
		delivery.Failed:    "✗",
	}[m.Status]
	fmt.Fprintf(out, "%s %s %s: %s  [%s]\n", m.Timestamp.Format(time.Kitchen), mark, m.SenderAlias, m.Content, shortID(m.ID))
}

func printQueue(out io.Writer, msgs []outbox.QueuedMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, "outbox is empty")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(out, "  %s  %s  attempts=%d  %q\n", m.ID, m.Timestamp.Format(time.RFC3339), m.RetryCount, m.Content)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
