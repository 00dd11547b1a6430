package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/homework"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type Config struct {
	Target kit.ChatTarget
	// SendTimeout is the deadline of the context handed to the sender. Zero
	// means 10s. The Telegram adapter only checks it between message chunks;
	// a single Bot API call is bounded by the adapter's HTTP client timeout,
	// which the app sets to the same value.
	SendTimeout time.Duration
	// RatePerSec paces deliveries. Zero means 1 message per second.
	RatePerSec int
	Options    *kit.SendOptions
}

// Notifier delivers text to the configured chat. Delivery is attempted once;
// failures come back as homework.ErrNotificationDelivery.
type Notifier struct {
	cfg     Config
	sender  kit.Sender
	limiter *rate.Limiter
	log     logx.Logger

	sent   uint64
	failed uint64
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Notifier {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Options == nil {
		cfg.Options = &kit.SendOptions{DisablePreview: true}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		cfg:    cfg,
		sender: sender,
		// Burst = rate so a result and a warning in one cycle never wait on each other.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Send delivers text to the target chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return n.deliveryFailed(text, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	if _, err := n.sender.SendText(callCtx, n.cfg.Target, text, n.cfg.Options); err != nil {
		return n.deliveryFailed(text, err)
	}
	n.sent++
	n.log.Debug("message delivered", logx.String("text", text))
	return nil
}

func (n *Notifier) deliveryFailed(text string, cause error) error {
	n.failed++
	msg := fmt.Sprintf("failed to send message: %v", cause)
	n.log.Error(msg, logx.String("text", text), logx.Int64("chat_id", n.cfg.Target.ChatID))
	return homework.NewError(homework.ErrNotificationDelivery, msg, cause)
}

// Counters returns how many deliveries succeeded and failed.
func (n *Notifier) Counters() (sent, failed uint64) { return n.sent, n.failed }
