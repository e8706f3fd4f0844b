package app

import (
	"context"
	"strings"

	"matchbot/internal/config"
	"matchbot/pkg/logx"
)

// reloadLoop applies committed configs. Sections that cannot change live
// are reported and keep their startup values.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changed in sections that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))
	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	a.feed.Apply(mapFeedConfig(newCfg))
	a.disp.Apply(mapDispatchConfig(newCfg))
	a.engine.Apply(mapEngineConfig(newCfg))
	a.sched.Apply(mapSchedulerConfig(newCfg))

	oldSpec, oldTimeout := tickScheduleOf(oldCfg)
	spec, timeout := tickScheduleOf(newCfg)
	if spec != oldSpec || timeout != oldTimeout {
		if err := a.sched.AddSchedule(tickSchedule, spec, timeout, a.tracker.Tick); err != nil {
			a.log.Warn("invalid tracker schedule; keeping previous", logx.Err(err))
		} else {
			a.log.Info("tracker schedule updated", logx.String("schedule", spec), logx.Duration("timeout", timeout))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
