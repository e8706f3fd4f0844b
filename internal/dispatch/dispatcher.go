// Package dispatch fans a rendered notification out to every subscriber.
package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"matchbot/internal/eventbus"
	"matchbot/internal/render"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

const maxReportedFailures = 200

type Config struct {
	Workers     int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Receipt is what the chat platform returned for one delivery. MediaRef,
// when set, can replace the payload media for later recipients.
type Receipt struct {
	MessageID int
	MediaRef  string
}

type Sender interface {
	SendPayload(ctx context.Context, recipient string, p render.Payload) (Receipt, error)
}

// Recipient is a subscriber and the language it reads.
type Recipient struct {
	ID   string
	Lang string
}

// Resolver renders the notification for one language.
type Resolver func(lang string) render.Payload

type Result struct {
	Total    int             `json:"total"`
	Sent     int             `json:"sent"`
	Failed   int             `json:"failed"`
	Failures []DeliveryError `json:"-"`
	Took     time.Duration   `json:"took"`
}

type Dispatcher struct {
	sender  Sender
	log     logx.Logger
	metrics *metrics.Manager
	bus     eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Manager) Option { return func(d *Dispatcher) { d.metrics = m } }
func WithBus(b eventbus.Bus) Option         { return func(d *Dispatcher) { d.bus = b } }

func New(cfg Config, sender Sender, log logx.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: sender, log: log}
	for _, o := range opts {
		o(d)
	}
	d.Apply(cfg)
	return d
}

// Apply swaps the configuration. In-flight dispatches keep the old values.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

// payloads renders each language at most once per dispatch.
type payloads struct {
	mu      sync.Mutex
	resolve Resolver
	byLang  map[string]render.Payload
	media   string
}

func (p *payloads) get(lang string) render.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.byLang[lang]
	if !ok {
		pl = p.resolve(lang)
		p.byLang[lang] = pl
	}
	if p.media != "" && pl.Media != "" {
		pl.Media = p.media
	}
	return pl
}

func (p *payloads) reuseMedia(ref string) {
	p.mu.Lock()
	p.media = ref
	p.mu.Unlock()
}

// Dispatch delivers to every recipient and reports the counts. Delivery
// failures are never returned as an error; they are isolated per recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, resolve Resolver, recipients []Recipient) Result {
	start := time.Now()
	res := Result{Total: len(recipients)}
	if len(recipients) == 0 {
		return res
	}
	cfg, lim := d.snapshot()
	pl := &payloads{resolve: resolve, byLang: map[string]render.Payload{}}

	var (
		mu  sync.Mutex
		rmu sync.Mutex
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	)
	jitter := func() float64 {
		rmu.Lock()
		defer rmu.Unlock()
		return rng.Float64()
	}
	record := func(err *DeliveryError) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			res.Sent++
			return
		}
		res.Failed++
		if len(res.Failures) < maxReportedFailures {
			res.Failures = append(res.Failures, *err)
		}
	}

	rest := recipients
	// With media, the first delivery uploads it and the rest reuse its ref.
	if first := pl.get(recipients[0].Lang); first.Media != "" {
		rc, derr := d.deliver(ctx, cfg, lim, jitter, recipients[0], first)
		record(derr)
		if derr == nil && rc.MediaRef != "" {
			pl.reuseMedia(rc.MediaRef)
		}
		rest = recipients[1:]
	}

	jobs := make(chan Recipient)
	var wg sync.WaitGroup
	for i := 0; i < min(cfg.Workers, len(rest)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				_, derr := d.deliver(ctx, cfg, lim, jitter, r, pl.get(r.Lang))
				record(derr)
			}
		}()
	}
	for _, r := range rest {
		jobs <- r
	}
	close(jobs)
	wg.Wait()

	res.Took = time.Since(start)
	d.metrics.Deliveries(res.Sent, res.Failed)
	eventbus.Publish(d.bus, eventbus.TypeDispatchCompleted, res)

	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("langs", len(pl.byLang)),
		logx.Duration("dur", res.Took),
	}
	if res.Failed > 0 {
		d.log.Warn("dispatch finished with failures", fields...)
	} else {
		d.log.Info("dispatch finished", fields...)
	}
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, jitter func() float64, r Recipient, p render.Payload) (Receipt, *DeliveryError) {
	var (
		last    error
		attempt int
	)
retry:
	for attempt < cfg.RetryMax+1 {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			last = err
			break
		}
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		rc, err := d.sender.SendPayload(sctx, r.ID, p)
		cancel()
		if err == nil {
			return rc, nil
		}
		last = err
		if IsPermanent(err) || attempt > cfg.RetryMax || ctx.Err() != nil {
			break
		}
		delay := retryDelay(cfg, attempt, err, jitter())
		d.log.Debug("delivery retry scheduled",
			logx.Recipient(r.ID),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			last = ctx.Err()
			break retry
		case <-t.C:
		}
	}
	d.log.Warn("delivery failed",
		logx.Recipient(r.ID),
		logx.String("kind", string(p.Kind)),
		logx.Int("attempts", attempt),
		logx.Err(last),
	)
	return Receipt{}, &DeliveryError{Recipient: r.ID, Attempts: attempt, Err: last}
}

// maxRetryDelay caps one backoff wait.
const maxRetryDelay = 10 * time.Second

// Budget estimates how long delivering to n recipients may take: each
// attempt round is paced by the rate limit and ends with one send timeout,
// and every retry adds at most one capped backoff.
func (d *Dispatcher) Budget(n int) time.Duration {
	cfg, _ := d.snapshot()
	attempts := time.Duration(cfg.RetryMax + 1)
	pacing := time.Duration(n) * time.Second / time.Duration(cfg.RatePerSec)
	return attempts*(pacing+cfg.SendTimeout) + time.Duration(cfg.RetryMax)*maxRetryDelay
}

// retryDelay is base*2^(attempt-1) with 0.7..1.3 jitter, capped at
// maxRetryDelay. A flood-control hint replaces the exponential part.
func retryDelay(cfg Config, attempt int, err error, j float64) time.Duration {
	const maxD = maxRetryDelay
	d := cfg.RetryBase
	if hint, ok := retryAfterHint(err); ok {
		d = hint
	} else {
		for i := 1; i < attempt && d < maxD; i++ {
			d *= 2
		}
	}
	d = time.Duration(float64(d) * (0.7 + j*0.6))
	return min(max(d, 0), maxD)
}
