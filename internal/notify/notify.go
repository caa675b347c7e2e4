package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends best-effort chat notifications. User IDs are Telegram
// chat IDs, so no mapping table is needed. Send failures are logged and
// swallowed; notifications never affect ledger state.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %v", err)
	}
	log.Printf("notify: authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) DepositCredited(userID int64, eurAmount, solAmount float64) {
	t.send(userID, fmt.Sprintf("✅ Deposit received: %.6f SOL credited as €%.2f", solAmount, eurAmount))
}

func (t *Telegram) WithdrawalCompleted(userID int64, eurAmount, solAmount float64, txHash string) {
	t.send(userID, fmt.Sprintf("✅ Withdrawal sent: €%.2f = %.6f SOL\nTx: %s", eurAmount, solAmount, txHash))
}

func (t *Telegram) WithdrawalFailed(userID int64, refundEUR float64) {
	t.send(userID, fmt.Sprintf("❌ Withdrawal failed, €%.2f refunded to your balance", refundEUR))
}

func (t *Telegram) send(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("notify: send to %d failed: %v", chatID, err)
	}
}
