package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

const settingsReadTimeout = 5 * time.Second

var hundred = decimal.NewFromInt(100)

// Telegram sends execution notifications through a Telegram bot. The chat
// id and the enabled flag come from the settings store at send time, so an
// operator can mute or redirect notifications without a restart.
type Telegram struct {
	bot      *tgbotapi.BotAPI
	settings storage.SettingsStore
	logger   *log.Logger
}

// NewTelegram creates a Telegram notifier. The token is validated against
// the Bot API.
func NewTelegram(token string, settings storage.SettingsStore, logger *log.Logger) (*Telegram, error) {
	if logger == nil {
		logger = log.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: bot, settings: settings, logger: logger}, nil
}

// Verify interface compliance at compile time.
var _ Notifier = (*Telegram)(nil)

// ExecutionStarted announces a new execution.
func (t *Telegram) ExecutionStarted(opp *domain.Opportunity, exec *domain.FailsafeExecution) {
	go t.send(FormatStarted(opp, exec))
}

// ExecutionCompleted announces a finished execution with its profit.
func (t *Telegram) ExecutionCompleted(opp *domain.Opportunity, exec *domain.FailsafeExecution) {
	go t.send(FormatCompleted(opp, exec))
}

// ExecutionFailed announces a failed execution with its reason.
func (t *Telegram) ExecutionFailed(opp *domain.Opportunity, exec *domain.FailsafeExecution) {
	go t.send(FormatFailed(opp, exec))
}

func (t *Telegram) send(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), settingsReadTimeout)
	defer cancel()

	s, err := t.settings.Get(ctx)
	if err != nil {
		t.logger.Printf("telegram: settings unavailable, skipping notification: %v", err)
		return
	}
	if !s.TelegramEnabled || s.TelegramChatID == "" {
		return
	}

	var msg tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(s.TelegramChatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(chatID, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(s.TelegramChatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Printf("telegram: send failed: %v", err)
	}
}

func modeTag(live bool) string {
	if live {
		return "🔴 LIVE"
	}
	return "🟡 TEST"
}

// FormatStarted renders the execution-started message.
func FormatStarted(opp *domain.Opportunity, exec *domain.FailsafeExecution) string {
	return fmt.Sprintf(`⚡ <b>Trade Execution Started</b> %s

📊 <b>Token:</b> %s
💰 <b>Amount:</b> $%s USDT

🟢 <b>Buying on:</b> %s
🔴 <b>Selling on:</b> %s

📈 <b>Expected Spread:</b> %s%%`,
		modeTag(exec.Live),
		opp.TokenSymbol,
		exec.Capital.StringFixed(2),
		opp.BuyVenue,
		opp.SellVenue,
		opp.SpreadPct.StringFixed(4),
	)
}

// FormatCompleted renders the execution-completed message.
func FormatCompleted(opp *domain.Opportunity, exec *domain.FailsafeExecution) string {
	profit := exec.Profit.Decimal
	emoji, trend := "✅", "📈"
	if !profit.IsPositive() {
		emoji, trend = "❌", "📉"
	}

	profitPct := "0"
	if exec.Capital.IsPositive() {
		profitPct = profit.Div(exec.Capital).Mul(hundred).StringFixed(4)
	}

	return fmt.Sprintf(`%s <b>Trade Completed</b> %s

📊 <b>Token:</b> %s
💰 <b>Invested:</b> $%s USDT
🪙 <b>Tokens Bought:</b> %s

%s <b>Profit:</b> $%s (%s%%)`,
		emoji,
		modeTag(exec.Live),
		opp.TokenSymbol,
		exec.Capital.StringFixed(2),
		exec.BaseAmount.String(),
		trend,
		profit.StringFixed(4),
		profitPct,
	)
}

// FormatFailed renders the execution-failed message.
func FormatFailed(opp *domain.Opportunity, exec *domain.FailsafeExecution) string {
	return fmt.Sprintf(`🚨 <b>Trade Failed</b> %s

📊 <b>Token:</b> %s
💰 <b>Amount:</b> $%s USDT
📍 <b>Route:</b> %s → %s

❌ <b>Reason:</b> %s`,
		modeTag(exec.Live),
		opp.TokenSymbol,
		exec.Capital.StringFixed(2),
		opp.BuyVenue,
		opp.SellVenue,
		exec.FailureReason,
	)
}
