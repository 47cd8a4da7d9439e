// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"youtrack_notification_bot/internal/app"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Sender is the subset of *telebot.Bot used for outgoing messages.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// chatRecipient addresses a chat by numeric ID or "@username".
type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }

// Recipient resolves a channel name to a Telegram chat.
func Recipient(channelName string) (telebot.Recipient, error) {
	name := strings.TrimSpace(channelName)
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		return telebot.ChatID(id), nil
	}
	if strings.HasPrefix(name, "@") && len(name) > 1 {
		return chatRecipient(name), nil
	}
	return nil, fmt.Errorf("channel %q is neither a chat ID nor an @username", channelName)
}

// TelebotAdapter implements chat.Deliverer on top of gopkg.in/telebot.v3.
// Messages are split to the Telegram size limit and sent through a shared
// rate limiter.
type TelebotAdapter struct {
	sender         Sender
	limiter        *rate.Limiter
	maxMessageSize int
	logger         *logrus.Entry
}

func NewTelebotAdapter(s Sender, ratePerSec, maxMessageSize int, logger *logrus.Entry) *TelebotAdapter {
	return &TelebotAdapter{
		sender:         s,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		maxMessageSize: maxMessageSize,
		logger:         logger,
	}
}

// Deliver sends message to the chat named channelName. Markdown is tried first;
// a chunk Telegram refuses to parse is resent as plain text.
func (tba *TelebotAdapter) Deliver(ctx context.Context, channelName, message string) error {
	to, err := Recipient(channelName)
	if err != nil {
		return err
	}

	for _, part := range app.Chunk(message, tba.maxMessageSize) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if err := tba.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		_, err := tba.sender.Send(to, part, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, DisableWebPagePreview: true})
		if err == nil {
			continue
		}
		tba.logger.WithError(err).WithField("channel", channelName).Warn("Markdown send failed, retrying as plain text")

		if _, err := tba.sender.Send(to, part, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("send to %s: %w", channelName, err)
		}
	}
	return nil
}
