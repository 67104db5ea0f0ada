// Package notify delivers lifecycle messages to users through the Telegram bot.
// Delivery is best effort and happens after the business transaction commits.
package notify

import (
	"context"
	"fmt"

	"medconsult/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the part of the bot API the notifier needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends consultation events as bot messages
type TelegramNotifier struct {
	bot Sender
}

// NewTelegramNotifier connects to the bot API with the given token
func NewTelegramNotifier(botToken string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	logrus.WithField("bot", bot.Self.UserName).Info("Telegram notifier ready")
	return &TelegramNotifier{bot: bot}, nil
}

// NewTelegramNotifierWithSender is used when the bot client is already built
func NewTelegramNotifierWithSender(bot Sender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// ConsultationRequested tells the doctor a patient is waiting
func (n *TelegramNotifier) ConsultationRequested(ctx context.Context, doctorTelegramID int64, c *domain.Consultation) error {
	text := fmt.Sprintf("New consultation request #%d", c.ID)
	if c.PriceRub > 0 {
		text += fmt.Sprintf(" (%d RUB)", c.PriceRub)
	}
	return n.send(ctx, doctorTelegramID, text)
}

// ConsultationDecided tells the patient whether the doctor took the consultation
func (n *TelegramNotifier) ConsultationDecided(ctx context.Context, patientID int64, c *domain.Consultation) error {
	var text string
	switch c.Status {
	case domain.ConsultationAccepted:
		text = fmt.Sprintf("Your consultation #%d was accepted", c.ID)
		if c.PaidAt == nil && c.PriceRub > 0 {
			text += ". The chat opens once payment is confirmed."
		}
	case domain.ConsultationDeclined:
		text = fmt.Sprintf("Your consultation #%d was declined", c.ID)
	default:
		return nil
	}
	return n.send(ctx, patientID, text)
}

func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Noop drops every notification
type Noop struct{}

func (Noop) ConsultationRequested(context.Context, int64, *domain.Consultation) error { return nil }
func (Noop) ConsultationDecided(context.Context, int64, *domain.Consultation) error   { return nil }
