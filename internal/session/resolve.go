package session

import (
	"os"

	"github.com/matheus3301/driftchat/internal/config"
)

const DefaultSessionName = "main"

// SessionEnv names the environment variable that selects a session when no
// --session flag is given, so several chat terminals can share one home.
const SessionEnv = "DRIFTCHAT_SESSION"

// Resolve picks the session name: the --session flag, then $DRIFTCHAT_SESSION,
// then default_session from the driftchat config, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(SessionEnv); name != "" {
		return name
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
