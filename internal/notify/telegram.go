package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Telegram pushes placement and cash-out alerts to the operator chat.
// Optional: a nil *Telegram is a no-op on every method, and send
// failures are logged, never surfaced, so chat outages cannot stall
// the pipeline.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	telemetry.Infof("telegram: notifying as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) NotifyBet(sig bet.Signal, f *feature.Features) {
	if t == nil {
		return
	}
	text := fmt.Sprintf(
		"BET PLACED\n%s vs %s (%s)\nScore %s at %d'\nMarket %s  stake %.2f\nRisk %s  confidence %.2f",
		f.HomeTeam, f.AwayTeam, f.League, sig.Score, sig.Minute,
		sig.Market, sig.Stake, sig.RiskLevel, sig.Confidence,
	)
	t.send(text)
}

func (t *Telegram) NotifyCashout(sig bet.CashoutSignal, f *feature.Features) {
	if t == nil {
		return
	}
	prefix := "CASH OUT"
	if sig.Urgency == "high" {
		prefix = "EMERGENCY CASH OUT"
	}
	text := fmt.Sprintf(
		"%s\n%s vs %s\nScore %s at %d'\nReason: %s\nMarket %s",
		prefix, f.HomeTeam, f.AwayTeam, sig.Score, sig.Minute, sig.Reason, sig.Market,
	)
	t.send(text)
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		telemetry.Warnf("telegram send: %v", err)
	}
}
