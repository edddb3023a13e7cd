package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/matheus3301/driftchat/internal/config"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	session string
	alias   string
	json    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "driftchat",
		Short:         "Group chat client that keeps working offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.session, "session", "", "session name (overrides config default)")
	root.PersistentFlags().StringVar(&opts.alias, "alias", "", "display alias (overrides config)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output in JSON format")

	root.AddCommand(
		newChatCmd(opts),
		newOutboxCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// resolve returns the validated session name and the global config.
func (o *rootOptions) resolve() (string, *config.Config, error) {
	name := session.Resolve(o.session)
	if err := session.ValidateName(name); err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	return name, cfg, nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
