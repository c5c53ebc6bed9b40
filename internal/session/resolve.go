package session

import "github.com/matheus3301/tgbridge/internal/config"

const DefaultSessionName = "main"

// Resolve picks the active session: the --session flag, then default_session
// from config.toml, then "main". The chosen name is validated.
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		if cfg, err := config.Load(ConfigPath()); err == nil {
			name = cfg.DefaultSession
		}
	}
	if name == "" {
		name = DefaultSessionName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
