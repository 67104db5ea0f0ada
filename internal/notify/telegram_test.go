package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"medconsult/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestConsultationRequested(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender)

	err := n.ConsultationRequested(context.Background(), 77, &domain.Consultation{ID: 3, PriceRub: 1500})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(77), sender.sent[0].ChatID)
	assert.Equal(t, "New consultation request #3 (1500 RUB)", sender.sent[0].Text)
}

func TestConsultationDecided(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender)
	ctx := context.Background()

	require.NoError(t, n.ConsultationDecided(ctx, 9, &domain.Consultation{ID: 1, Status: domain.ConsultationAccepted, PriceRub: 100}))
	require.NoError(t, n.ConsultationDecided(ctx, 9, &domain.Consultation{ID: 2, Status: domain.ConsultationDeclined}))
	require.NoError(t, n.ConsultationDecided(ctx, 9, &domain.Consultation{ID: 3, Status: domain.ConsultationClosed}))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Text, "accepted")
	assert.Contains(t, sender.sent[0].Text, "payment")
	assert.Contains(t, sender.sent[1].Text, "declined")

	paid := time.Now()
	require.NoError(t, n.ConsultationDecided(ctx, 9, &domain.Consultation{ID: 4, Status: domain.ConsultationAccepted, PriceRub: 100, PaidAt: &paid}))
	assert.NotContains(t, sender.sent[2].Text, "payment")
}

func TestSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("blocked by user")}
	n := NewTelegramNotifierWithSender(sender)
	assert.Error(t, n.ConsultationRequested(context.Background(), 1, &domain.Consultation{ID: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.ConsultationRequested(ctx, 1, &domain.Consultation{ID: 1}), context.Canceled)
}
