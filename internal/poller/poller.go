package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/dedup"
	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

// DefaultErrorPrefix marks error reports sent to the chat.
const DefaultErrorPrefix = "[WARNING] "

// Fetcher returns the decoded API response for statuses changed since from.
type Fetcher interface {
	Fetch(ctx context.Context, from int64) (any, error)
}

// Sender delivers a chat message. Delivery failures must carry
// homework.ErrNotificationDelivery.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Config struct {
	// Schedule decides when the next poll starts, relative to the end of
	// the previous one. Nil means a fixed DefaultInterval.
	Schedule    cron.Schedule
	Retention   time.Duration
	ErrorPrefix string
}

// Stats summarizes what the loop has done so far.
type Stats struct {
	Iterations  uint64
	Failures    uint64
	Sent        uint64
	Warnings    uint64
	Suppressed  uint64
	Swallowed   uint64
	LastSuccess time.Time
}

// Poller runs the fetch, validate, interpret, notify cycle.
//
// All state (cursor, error cache, stats) is owned by the goroutine calling
// Run or RunOnce; Poller is not safe for concurrent use.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	parser  *homework.Parser
	sender  Sender
	log     logx.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	// AfterIteration, if set, is called at the end of every RunOnce with the
	// iteration error (nil on success).
	AfterIteration func(err error)

	cache  *dedup.Cache
	cursor int64
	stats  Stats
}

type Option func(*Poller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithWait replaces the blocking wait between iterations.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.wait = wait }
}

func New(cfg Config, fetcher Fetcher, parser *homework.Parser, sender Sender, log logx.Logger, opts ...Option) *Poller {
	if cfg.Schedule == nil {
		cfg.Schedule = cron.Every(DefaultInterval)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = dedup.DefaultRetention
	}
	if cfg.ErrorPrefix == "" {
		cfg.ErrorPrefix = DefaultErrorPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  parser,
		sender:  sender,
		log:     log,
		now:     time.Now,
		wait:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	start := p.now()
	p.cache = dedup.New(cfg.Retention, start)
	p.cursor = start.Unix()
	return p
}

// Cursor returns the from_date used for the next fetch.
func (p *Poller) Cursor() int64 { return p.cursor }

func (p *Poller) Stats() Stats { return p.stats }

// Run polls until ctx is canceled. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", logx.Int64("cursor", p.cursor), logx.Duration("retention", p.cfg.Retention))
	for {
		p.RunOnce(ctx)

		now := p.now()
		delay := p.cfg.Schedule.Next(now).Sub(now)
		p.log.Debug("next poll scheduled", logx.Duration("in", delay))
		if err := p.wait(ctx, delay); err != nil {
			p.log.Info("poller stopped", logx.Any("stats", p.stats))
			return nil
		}
	}
}

// RunOnce performs a single iteration and funnels any failure through the
// error cache. It never returns an error; failures are reported or logged.
func (p *Poller) RunOnce(ctx context.Context) {
	p.stats.Iterations++
	if p.cache.Sweep(p.now()) {
		p.log.Debug("error cache reset")
	}

	err := p.safeIterate(ctx)
	if err != nil {
		p.stats.Failures++
		p.handleError(ctx, err)
	}

	if p.AfterIteration != nil {
		p.AfterIteration(err)
	}
}

// safeIterate turns a panic inside an iteration into an ordinary error so
// the loop keeps running.
func (p *Poller) safeIterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("iteration panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return p.iterate(ctx)
}

func (p *Poller) iterate(ctx context.Context) error {
	resp, err := p.fetcher.Fetch(ctx, p.cursor)
	if err != nil {
		return err
	}
	items, err := p.parser.CheckResponse(resp)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		p.log.Debug("no new status", logx.Int64("cursor", p.cursor))
	} else {
		// The API lists the most recent entry first; older ones are ignored.
		msg, err := p.parser.ParseStatus(items[0])
		if err != nil {
			return err
		}
		if err := p.sender.Send(ctx, msg); err != nil {
			return err
		}
		p.stats.Sent++
		p.log.Info("status change reported", logx.Int("entries", len(items)))
	}

	now := p.now()
	p.cursor = now.Unix()
	p.stats.LastSuccess = now
	return nil
}

func (p *Poller) handleError(ctx context.Context, err error) {
	log := p.log.With(logx.Err(err), logx.String("kind", kindName(err)))

	// Reporting a delivery failure through the same channel would loop.
	if errors.Is(err, homework.ErrNotificationDelivery) {
		p.stats.Swallowed++
		log.Warn("notification delivery failed; not reporting")
		return
	}
	if ctx.Err() != nil {
		log.Debug("iteration aborted by shutdown")
		return
	}

	msg := err.Error()
	if !p.cache.Allow(msg, p.now()) {
		p.stats.Suppressed++
		log.Debug("error already reported; suppressed")
		return
	}

	log.Warn("reporting error to chat")
	if sendErr := p.sender.Send(ctx, p.cfg.ErrorPrefix+msg); sendErr != nil {
		// Already logged by the sender; a failed report is never retried.
		p.stats.Swallowed++
		return
	}
	p.stats.Warnings++
}

func kindName(err error) string {
	if k := homework.KindOf(err); k != nil {
		return strings.ReplaceAll(k.Error(), " ", "_")
	}
	return "unknown"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
