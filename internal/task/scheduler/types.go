package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"matchbot/internal/task/engine"
	"matchbot/pkg/logx"
)

type Config struct {
	Timezone string // IANA name; empty means Local
}

// Enqueuer is the part of the task engine the scheduler drives.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or "@every <d>"
	timeout       time.Duration
	job           func(ctx context.Context) error
	entryID       cron.EntryID
	startupSpread time.Duration
	state         *engine.RunState
}

type Service struct {
	log    logx.Logger
	engine Enqueuer

	mu     sync.Mutex
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
	onSkip      func(name string)
}

type ScheduleInfo struct {
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Timeout       time.Duration `json:"timeout"`
	StartupSpread time.Duration `json:"startup_spread,omitempty"`
	Busy          bool          `json:"busy"`
	Next          time.Time     `json:"next,omitempty"`
	Prev          time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Timezone  string         `json:"timezone"`
	Running   bool           `json:"running"`
	Schedules []ScheduleInfo `json:"schedules"`
}
