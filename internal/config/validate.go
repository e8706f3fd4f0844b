package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var knownDrivers = map[string]bool{"": true, "none": true, "memory": true, "file": true, "sqlite": true, "postgres": true}

// Validate reports static problems that would make the bot useless at runtime.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if strings.TrimSpace(c.Feed.Host) == "" {
		errs = append(errs, errors.New("feed.host is required"))
	} else if u, err := url.Parse(c.Feed.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed.host: invalid url %q", c.Feed.Host))
	}
	if len(c.Feed.TeamNames) == 0 {
		errs = append(errs, errors.New("feed.team_names must list at least one name"))
	}
	durations := map[string]string{
		"telegram.poll_timeout":       c.Telegram.PollTimeout,
		"feed.cache_ttl":              c.Feed.CacheTTL,
		"feed.timeout":                c.Feed.Timeout,
		"tracker.tick_timeout":        c.Tracker.TickTimeout,
		"dispatch.retry_base":         c.Dispatch.RetryBase,
		"dispatch.send_timeout":       c.Dispatch.SendTimeout,
		"task_engine.default_timeout": c.TaskEngine.DefaultTimeout,
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"http.stale_after":            c.HTTP.StaleAfter,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if !knownDrivers[driver] {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage.dsn is required for postgres"))
	}
	return errors.Join(errs...)
}

// DisplayName is the team name shown to users, falling back to the first
// configured feed name.
func (c *Config) DisplayName() string {
	if s := strings.TrimSpace(c.Feed.DisplayName); s != "" {
		return s
	}
	if len(c.Feed.TeamNames) > 0 {
		return strings.TrimSpace(c.Feed.TeamNames[0])
	}
	return ""
}
