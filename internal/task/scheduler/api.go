package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"matchbot/internal/task/engine"
	"matchbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// ErrUnknownSchedule is returned by RunNow for an unregistered name.
var ErrUnknownSchedule = errors.New("unknown schedule")

// AddSchedule parses schedule (see ParseSchedule) and registers it. Runs of
// the same schedule never overlap: a trigger while one is queued or running
// is skipped.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecInterval {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.upsert(scheduleDef{name: name, spec: spec, timeout: timeout, job: job})
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.upsert(scheduleDef{name: name, spec: "@every " + every.String(), timeout: timeout, job: job})
}

// upsert replaces any schedule with the same name. The run state is carried
// over so a replacement cannot overlap a run of the old definition.
func (s *Service) upsert(d scheduleDef) error {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return errors.New("name required")
	}
	if d.job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d.state = &engine.RunState{}
	for _, old := range s.defs {
		if old.name == d.name {
			d.state = old.state
		}
	}
	s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.registerLocked(&s.defs[len(s.defs)-1])
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout))
	return nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

// RunNow triggers name immediately, subject to the same overlap rule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var def *scheduleDef
	for i := range s.defs {
		if s.defs[i].name == name {
			d := s.defs[i]
			def = &d
		}
	}
	s.mu.Unlock()
	if def == nil {
		return ErrUnknownSchedule
	}
	return s.trigger(*def)
}

func (s *Service) trigger(d scheduleDef) error {
	err := s.engine.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Overlap: engine.OverlapSkipIfRunning,
		State:   d.state,
		Run:     d.job,
	})
	s.reportEnqueueError(d.name, err)
	return err
}

func (s *Service) registerLocked(d *scheduleDef) {
	def := *d
	job := cron.FuncJob(func() { _ = s.trigger(def) })

	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(every); err == nil && dur > 0 {
			sched, spread := intervalWithSpread(dur, time.Now().In(s.loc), d.name)
			d.startupSpread = spread
			d.entryID = s.c.Schedule(sched, job)
			return
		}
	}
	eid, err := s.c.AddJob(d.spec, job)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		if s.onSkip != nil {
			s.onSkip(name)
		}
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()
	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
