package config

import (
	"reflect"
	"slices"
	"strings"

	"matchbot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and returns log-safe
// fields for them. Secrets (token, api key, dsn) are only reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		fields  []logx.Field
	)
	section := func(name string, differs bool, f ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, name)
		fields = append(fields, f...)
	}

	section("telegram", !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram),
		logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		logx.Bool("telegram.log_chat_set", strings.TrimSpace(newCfg.Telegram.LogChat) != ""),
		logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
	)
	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
	)
	feedOld, feedNew := oldCfg.Feed, newCfg.Feed
	section("feed", !reflect.DeepEqual(feedOld, feedNew),
		logx.String("feed.host", feedNew.Host),
		logx.Bool("feed.api_key_set", feedNew.APIKey != ""),
		logx.String("feed.cache_ttl", feedNew.CacheTTL),
		logx.Strings("feed.team_names", feedNew.TeamNames),
	)
	section("tracker", oldCfg.Tracker != newCfg.Tracker,
		logx.String("tracker.schedule", newCfg.Tracker.Schedule),
		logx.String("tracker.default_language", newCfg.Tracker.DefaultLanguage),
		logx.Bool("tracker.presence", newCfg.Tracker.Presence),
	)
	section("render", !reflect.DeepEqual(oldCfg.Render, newCfg.Render),
		logx.String("render.locales_dir", newCfg.Render.LocalesDir),
		logx.Int("render.media_count", len(newCfg.Render.Media)),
	)
	section("dispatch", oldCfg.Dispatch != newCfg.Dispatch,
		logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
		logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		logx.Int("dispatch.retry_max", newCfg.Dispatch.RetryMax),
	)
	section("task_engine", oldCfg.TaskEngine != newCfg.TaskEngine,
		logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
		logx.Int("task_engine.queue_size", newCfg.TaskEngine.QueueSize),
	)
	section("storage", oldCfg.Storage != newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.String("storage.path", newCfg.Storage.Path),
		logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
	)
	section("http", !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP),
		logx.Bool("http.enabled", newCfg.HTTP.Enabled),
		logx.String("http.addr", newCfg.HTTP.Addr),
	)
	return changed, fields
}

// RestartRequired lists changed sections that only take effect after a
// restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.LogChat != nt.LogChat {
		out = append(out, "telegram")
	}
	if !slices.Equal(oldCfg.Feed.TeamNames, newCfg.Feed.TeamNames) || oldCfg.Feed.DisplayName != newCfg.Feed.DisplayName {
		out = append(out, "feed.team")
	}
	otr, ntr := oldCfg.Tracker, newCfg.Tracker
	if otr.DefaultLanguage != ntr.DefaultLanguage || otr.Timezone != ntr.Timezone || otr.Presence != ntr.Presence {
		out = append(out, "tracker")
	}
	if !reflect.DeepEqual(oldCfg.Render, newCfg.Render) {
		out = append(out, "render")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		out = append(out, "http")
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		out = append(out, "task_engine")
	}
	return out
}
