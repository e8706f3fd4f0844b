package app

import (
	"fmt"
	"strings"
	"time"

	"matchbot/internal/config"
	"matchbot/internal/dispatch"
	"matchbot/internal/feed"
	"matchbot/internal/httpapi"
	"matchbot/internal/render"
	"matchbot/internal/storage"
	"matchbot/internal/task/engine"
	"matchbot/internal/task/scheduler"
	telegram "matchbot/internal/transport/telegram/adapter"
	"matchbot/pkg/logx"
)

const (
	defaultSchedule    = "5s"
	defaultTickTimeout = 30 * time.Second
	tickSchedule       = "tracker.tick"
)

// The mappers below assume cfg passed Validate.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled && strings.TrimSpace(cfg.Telegram.LogChat) != "",
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
		LogChat:     cfg.Telegram.LogChat,
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapFeedConfig(cfg *config.Config) feed.Config {
	return feed.Config{
		Host:         cfg.Feed.Host,
		APIKey:       cfg.Feed.APIKey,
		APIKeyHeader: cfg.Feed.APIKeyHeader,
		CacheTTL:     config.DurationOr(cfg.Feed.CacheTTL, feed.DefaultCacheTTL),
		Timeout:      config.DurationOr(cfg.Feed.Timeout, feed.DefaultTimeout),
	}
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	d := cfg.Dispatch
	return dispatch.Config{
		Workers:     d.Workers,
		RatePerSec:  d.RatePerSec,
		RetryMax:    d.RetryMax,
		RetryBase:   config.DurationOr(d.RetryBase, 500*time.Millisecond),
		SendTimeout: config.DurationOr(d.SendTimeout, 10*time.Second),
	}
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	te := cfg.TaskEngine
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: config.DurationOr(te.DefaultTimeout, time.Minute),
		HistorySize:    te.HistorySize,
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Tracker.Timezone}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		StaleAfter:     config.DurationOr(cfg.HTTP.StaleAfter, 0),
		Pprof:          cfg.HTTP.Pprof,
	}
}

func tickScheduleOf(cfg *config.Config) (string, time.Duration) {
	spec := strings.TrimSpace(cfg.Tracker.Schedule)
	if spec == "" {
		spec = defaultSchedule
	}
	return spec, config.DurationOr(cfg.Tracker.TickTimeout, defaultTickTimeout)
}

// mapMedia converts the configured kind names to render kinds, rejecting
// names the renderer does not produce.
func mapMedia(in map[string]string) (map[render.Kind]string, error) {
	known := map[render.Kind]bool{
		render.KindMatchStarted: true,
		render.KindMatchEnded:   true,
		render.KindGoalUs:       true,
		render.KindGoalThem:     true,
		render.KindNextMatch:    true,
	}
	out := make(map[render.Kind]string, len(in))
	for k, v := range in {
		kind := render.Kind(strings.ToLower(strings.TrimSpace(k)))
		if !known[kind] {
			return nil, fmt.Errorf("render.media: unknown kind %q", k)
		}
		if v = strings.TrimSpace(v); v != "" {
			out[kind] = v
		}
	}
	return out, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("tracker.timezone: invalid %q: %w", name, err)
	}
	return loc, nil
}

// validate is the reload gate: static checks plus everything the running
// services would reject.
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	spec, _ := tickScheduleOf(cfg)
	if err := scheduler.ValidateSchedule(spec); err != nil {
		return fmt.Errorf("tracker.schedule: %w", err)
	}
	if _, err := loadLocation(cfg.Tracker.Timezone); err != nil {
		return err
	}
	if _, err := mapMedia(cfg.Render.Media); err != nil {
		return err
	}
	return nil
}
