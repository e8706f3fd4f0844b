// Package router turns incoming chat messages into command invocations. It
// owns name lookup, owner checks and a bounded worker pool; the commands
// themselves are registered by the application.
package router

import (
	"context"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchbot/internal/runtime/supervisor"
	kit "matchbot/internal/transport"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Name is the slash command without the slash, e.g. "subscribe".
	Name string
	// Lang is the language the name belongs to ("abonner" is "no").
	Lang        string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Message   *kit.Message
	Chat      kit.ChatTarget
	Recipient string
	FromID    int64
	Command   Command
	Args      []string
	ReqID     string
	Logger    logx.Logger
}

// TextFunc returns the reply text for key in the recipient's language. The
// router uses it for "unknown_command", "unauthorized" and "busy".
type TextFunc func(recipient, key string) string

var defaultTexts = map[string]string{
	"unknown_command": "Unknown command. Try /help",
	"unauthorized":    "This command is reserved for the bot owner.",
	"busy":            "The bot is busy, please try again in a moment.",
}

type Option func(*Router)

func WithMetrics(m *metrics.Manager) Option { return func(r *Router) { r.metrics = m } }

func WithTexts(fn TextFunc) Option { return func(r *Router) { r.texts = fn } }

// WithWorkers sets the handler pool size (default 4).
func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithSupervisors registers the router's supervisor while DispatchLoop runs.
func WithSupervisors(reg *supervisor.Registry) Option {
	return func(r *Router) { r.supervisors = reg }
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	owners []int64

	log         logx.Logger
	adapter     kit.Adapter
	metrics     *metrics.Manager
	texts       TextFunc
	workers     int
	supervisors *supervisor.Registry

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:    map[string]Command{},
		owners:  slices.Clone(owners),
		log:     log,
		adapter: adapter,
		workers: 4,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetOwners replaces the owner list used for AccessOwnerOnly. Safe during
// hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) IsOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != 0 && slices.Contains(r.owners, id)
}

// SetCommands replaces the command table and refreshes the platform command
// menu in the background.
func (r *Router) SetCommands(ctx context.Context, cmds []Command) {
	table := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = c
	}
	r.mu.Lock()
	r.cmds = table
	r.mu.Unlock()

	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildTelegramMenuCommands(r.Commands())
	go func() {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(mctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}()
}

// Commands returns the registered commands ordered by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Router) lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmds[name]
	return c, ok
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *supervisor.Supervisor, jobs chan func(), running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.jobs = jobs
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is a non-blocking enqueue that tolerates a closed jobs channel.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	r.runMu.Lock()
	jobs := r.jobs
	r.runMu.Unlock()
	if jobs == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.Comp("telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	jobs := make(chan func(), 256)
	r.setSupervisor(sup, jobs, true)
	r.supervisors.Set("telegram.router", sup)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		r.setSupervisor(sup, nil, false)
		close(jobs)
		// queued jobs drain before the workers see the closed channel
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.supervisors.Delete("telegram.router")
		r.setSupervisor(nil, nil, false)
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message != nil {
				r.routeMessage(ctx, up.Message)
			}
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

// parseCommand splits "/name@bot arg ..." into the lowercase name and args.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", nil, false
	}
	return name, parts[1:], true
}

func (r *Router) routeMessage(ctx context.Context, msg *kit.Message) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	to := msg.Target()
	cmd, found := r.lookup(name)
	if !found {
		// groups see commands meant for other bots; stay quiet there
		if !msg.IsGroup {
			r.reply(ctx, to, "unknown_command")
		}
		r.metrics.Command(name, "unknown")
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.IsOwner(msg.FromID) {
		r.reply(ctx, to, "unauthorized")
		r.metrics.Command(cmd.Name, "denied")
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Message:   msg,
		Chat:      to,
		Recipient: to.Key(),
		FromID:    msg.FromID,
		Command:   cmd,
		Args:      args,
		ReqID:     rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	final := Chain(cmd.Handle, Observe(r.log, r.metrics), Recover(r.log), Deadline)
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		r.reply(ctx, to, "busy")
		r.metrics.Command(cmd.Name, "busy")
	}
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, key string) {
	text := defaultTexts[key]
	if r.texts != nil {
		if t := r.texts(to.Key(), key); t != "" {
			text = t
		}
	}
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Debug("router reply failed", logx.String("key", key), logx.Err(err))
	}
}
