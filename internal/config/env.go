package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. A double underscore separates
// sections: MATCHBOT_FEED__API_KEY sets feed.api_key.
const EnvPrefix = "MATCHBOT_"

// list-valued keys accept comma separated values
var envListKeys = map[string]bool{
	"feed.team_names":         true,
	"telegram.owner_user_ids": true,
	"http.allowed_origins":    true,
}

func envKeyPath(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyEnv overlays MATCHBOT_* variables onto cfg. Keys not present in the
// environment keep their file values.
func ApplyEnv(cfg *Config) error {
	k := koanf.New(".")
	p := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		path := envKeyPath(key)
		if envListKeys[path] {
			return path, splitCSV(value)
		}
		return path, value
	})
	if err := k.Load(p, nil); err != nil {
		return fmt.Errorf("env overlay: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("env overlay: %w", err)
	}
	return nil
}
