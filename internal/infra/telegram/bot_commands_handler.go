// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"strconv"

	"youtrack_notification_bot/internal/domain/chat"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// CommandHandler answers bot commands for a channel.
type CommandHandler interface {
	Handle(ctx context.Context, channelName, text string) (reply string, handled bool)
}

// CommandRouter feeds incoming chat text to the command handler and sends the
// reply back to the same chat.
type CommandRouter struct {
	commands  CommandHandler
	deliverer chat.Deliverer
	logger    *logrus.Entry
}

func NewCommandRouter(commands CommandHandler, deliverer chat.Deliverer, logger *logrus.Entry) *CommandRouter {
	return &CommandRouter{commands: commands, deliverer: deliverer, logger: logger}
}

// Register attaches the router to group messages, private messages and channel posts.
func (r *CommandRouter) Register(ctx context.Context, b *telebot.Bot) {
	handler := func(c telebot.Context) error {
		if c.Chat() == nil {
			return nil
		}
		if sender := c.Sender(); sender != nil && sender.IsBot {
			return nil
		}
		return r.Route(ctx, c.Chat().ID, c.Text())
	}
	b.Handle(telebot.OnText, handler)
	b.Handle(telebot.OnChannelPost, handler)
}

// Route handles one message. Text that is not a command is ignored.
func (r *CommandRouter) Route(ctx context.Context, chatID int64, text string) error {
	channelName := strconv.FormatInt(chatID, 10)
	reply, handled := r.commands.Handle(ctx, channelName, text)
	if !handled {
		return nil
	}

	logCtx := r.logger.WithField("channel", channelName)
	logCtx.Debug("Command handled, sending reply")
	if err := r.deliverer.Deliver(ctx, channelName, reply); err != nil {
		logCtx.WithError(err).Error("Failed to send command reply")
		return err
	}
	return nil
}
