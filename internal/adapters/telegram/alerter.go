package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// sender is the subset of *tgbotapi.BotAPI the alerter calls
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter posts settlement alerts to an operator chat
type Alerter struct {
	api         sender
	chatID      int64
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// Config contains Telegram alerter configuration
type Config struct {
	Token       string
	ChatID      int64
	HTTPTimeout time.Duration
	RatePerSec  int // default 1; one operator chat allows about 20 msg/min
	Burst       int // default 5
}

// NewAlerter authorizes the bot token and creates an alerter
func NewAlerter(cfg Config, log *logger.Logger) (*Alerter, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	log.Infof("Telegram alerts authorized as %s", api.Self.UserName)
	return newAlerter(api, cfg, log), nil
}

func newAlerter(api sender, cfg Config, log *logger.Logger) *Alerter {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Alerter{
		api:         api,
		chatID:      cfg.ChatID,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:         log.Component("telegram_alerter"),
	}
}

// SettlementFailed reports a settlement leg that did not confirm
func (a *Alerter) SettlementFailed(ctx context.Context, s *settlement.Settlement) error {
	return a.send(ctx, FormatSettlementFailure(s))
}

// ReconciliationSummary reports one reconciliation pass that still left failures
func (a *Alerter) ReconciliationSummary(ctx context.Context, retried, confirmed, failed int) error {
	if failed == 0 {
		return nil
	}
	text := fmt.Sprintf("Settlement reconciliation: %s retried, %s confirmed, %s still failing",
		humanize.Comma(int64(retried)), humanize.Comma(int64(confirmed)), humanize.Comma(int64(failed)))
	return a.send(ctx, text)
}

func (a *Alerter) send(ctx context.Context, text string) error {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	start := time.Now()
	// Plain text: failure reasons are raw RPC strings and break Markdown parsing.
	if _, err := a.api.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
		a.log.Warnw("Failed to send alert",
			"chat_id", a.chatID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return errors.Wrap(err, "failed to send alert")
	}

	a.log.Debugw("Alert sent", "chat_id", a.chatID, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// FormatSettlementFailure renders the operator message for a failed leg
func FormatSettlementFailure(s *settlement.Settlement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Settlement FAILED (%s, %s)\n", s.Purpose, s.Kind)
	fmt.Fprintf(&b, "Amount: %s\n", humanize.CommafWithDigits(s.Amount.InexactFloat64(), 6))
	fmt.Fprintf(&b, "Pool: %s\n", s.PoolID)
	fmt.Fprintf(&b, "Holder: %s\n", s.HolderID)
	fmt.Fprintf(&b, "Settlement: %s\n", s.ID)
	fmt.Fprintf(&b, "Attempts: %d", s.Attempts)
	if s.LastAttemptAt != nil {
		fmt.Fprintf(&b, " (last %s)", humanize.Time(*s.LastAttemptAt))
	}
	if s.FailureReason != "" {
		fmt.Fprintf(&b, "\nReason: %s", s.FailureReason)
	}
	b.WriteString("\nLedger is committed; the leg will be retried by reconciliation.")
	return b.String()
}
