package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/timer"
	"github.com/spf13/cobra"
)

type statusOutput struct {
	Session       string `json:"session"`
	Remote        string `json:"remote"`
	Storage       string `json:"storage"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	LastConnected string `json:"last_connected,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the remote store once and report reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, cfg, err := opts.resolve()
			if err != nil {
				return err
			}

			var rs remote.Store
			switch cfg.Remote.Driver {
			case "redis":
				r := remote.DialRedis(cfg.Remote.Addr, cfg.Remote.Password, cfg.Remote.DB, cfg.Remote.Prefix)
				defer func() { _ = r.Close() }()
				rs = r
			case "", "memory":
				rs = remote.NewMemory()
			default:
				return fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
			}

			sched := timer.New(nil)
			defer sched.Close()
			m := status.NewMonitor(rs, sched, nil, nil, status.Options{
				BaseDelay:     cfg.Connection.BaseDelay,
				MaxDelay:      cfg.Connection.MaxDelay,
				MaxRetries:    cfg.Connection.MaxRetries,
				ProbeInterval: cfg.Connection.ProbeInterval,
				ProbeTimeout:  cfg.Connection.ProbeTimeout,
			})
			defer m.Close()
			m.CheckStatus(context.Background())
			s := m.State()

			out := statusOutput{
				Session: name,
				Remote:  cfg.Remote.Driver,
				Storage: cfg.Storage.Driver,
				Status:  string(s.Status),
				Error:   s.Err,
			}
			if !s.LastConnected.IsZero() {
				out.LastConnected = s.LastConnected.Format("2006-01-02 15:04:05")
			}
			if opts.json {
				outputJSON(out)
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session: %s\n", out.Session)
			fmt.Fprintf(w, "Remote:  %s\n", out.Remote)
			fmt.Fprintf(w, "Status:  %s\n", out.Status)
			if out.Error != "" {
				fmt.Fprintf(w, "Error:   %s\n", out.Error)
			}
			return nil
		},
	}
}
