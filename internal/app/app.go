package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	kit "hwbot/internal/transport"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service

	notif  *notifier.Notifier
	poller *poller.Poller

	watchdog time.Duration
}

type Option func(*options)

type options struct {
	sender     kit.Sender
	httpClient *http.Client
	pollerOpts []poller.Option
}

// WithSender replaces the Telegram adapter.
func WithSender(s kit.Sender) Option { return func(o *options) { o.sender = s } }

// WithHTTPClient replaces the client used to reach the homework API.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithPollerOptions forwards options to the poller.
func WithPollerOptions(opts ...poller.Option) Option {
	return func(o *options) { o.pollerOpts = append(o.pollerOpts, opts...) }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	console := cfg.Logging.Console == nil || *cfg.Logging.Console
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	sender := o.sender
	if sender == nil {
		ad, err := telegram.New(telegram.Config{
			Token:       cfg.TelegramToken,
			Offline:     cfg.Offline,
			HTTPTimeout: cfg.SendTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	notif := notifier.New(notifier.Config{
		Target:      kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID},
		SendTimeout: cfg.SendTimeout,
		RatePerSec:  cfg.RatePerSec,
	}, sender, log.With(logx.String("comp", "notifier")))

	fetcher, err := practicum.New(practicum.Config{
		Endpoint: cfg.Endpoint,
		Token:    cfg.PracticumToken,
		Timeout:  cfg.PollTimeout,
	}, o.httpClient, log.With(logx.String("comp", "practicum")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	verdicts, err := homework.NewVerdicts(cfg.Verdicts)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	parser := homework.NewParser(verdicts, log.With(logx.String("comp", "homework")))

	schedule, err := poller.ParseSchedule(cfg.PollInterval)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("poll.interval: %w", err)
	}

	p := poller.New(poller.Config{
		Schedule:    schedule,
		Retention:   cfg.ErrorRetention,
		ErrorPrefix: cfg.ErrorPrefix,
	}, fetcher, parser, notif, log.With(logx.String("comp", "poller")), o.pollerOpts...)

	a := &App{
		cfg:    cfg,
		log:    log,
		logs:   logSvc,
		notif:  notif,
		poller: p,
	}

	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		a.watchdog = wd
		log.Info("systemd watchdog enabled", logx.Duration("interval", wd))
	}
	p.AfterIteration = a.afterIteration

	log.Info("configured",
		logx.String("endpoint", fetcher.Endpoint()),
		logx.Int64("chat_id", cfg.ChatID),
		logx.Duration("error_retention", cfg.ErrorRetention),
	)
	return a, nil
}

func (a *App) Poller() *poller.Poller { return a.poller }

// Run blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.notifySystemd(daemon.SdNotifyReady)
	defer a.notifySystemd(daemon.SdNotifyStopping)

	var wg sync.WaitGroup
	wdCtx, stopWatchdog := context.WithCancel(ctx)
	if a.watchdog > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.feedWatchdog(wdCtx)
		}()
	}

	err := a.poller.Run(ctx)
	stopWatchdog()
	wg.Wait()

	sent, failed := a.notif.Counters()
	a.log.Info("shutdown", logx.Uint64("messages_sent", sent), logx.Uint64("messages_failed", failed))
	return err
}

func (a *App) Close() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

func (a *App) afterIteration(err error) {
	st := a.poller.Stats()
	a.log.Debug("iteration done",
		logx.Uint64("iterations", st.Iterations),
		logx.Uint64("failures", st.Failures),
		logx.Uint64("suppressed", st.Suppressed),
		logx.Bool("ok", err == nil),
	)
	status := "STATUS=last poll ok"
	if err != nil {
		status = "STATUS=last poll failed: " + err.Error()
	}
	a.notifySystemd(status)
}

// feedWatchdog pings systemd at half the watchdog interval, independent of
// the poll schedule, until ctx is done.
func (a *App) feedWatchdog(ctx context.Context) {
	t := time.NewTicker(a.watchdog / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.notifySystemd(daemon.SdNotifyWatchdog)
		}
	}
}

func (a *App) notifySystemd(state string) {
	// Without NOTIFY_SOCKET this is a no-op returning (false, nil).
	if _, err := daemon.SdNotify(false, state); err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}
