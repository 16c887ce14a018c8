// internal/infra/telegram/gateway.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm_reminders/internal/domain/push"
	"crm_reminders/internal/domain/user"

	"gopkg.in/telebot.v3"
)

var ErrNoChatLinked = errors.New("user has no linked Telegram chat")

// Sender is the part of *telebot.Bot the gateway needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Gateway delivers reminder notifications as Telegram messages to the
// owning user's linked chat.
type Gateway struct {
	sender Sender
	users  user.Repository
}

func NewGateway(s Sender, users user.Repository) *Gateway {
	return &Gateway{sender: s, users: users}
}

// Send delivers n. telebot does not take a context, so ctx is only checked
// before the request; the bot's HTTP client timeout bounds the request itself.
func (g *Gateway) Send(ctx context.Context, n push.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram send for reminder %s: %w", n.ReminderID, err)
	}
	u, err := g.users.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", n.UserID, err)
	}
	if !u.TelegramChatID.Valid {
		return fmt.Errorf("user %s: %w", n.UserID, ErrNoChatLinked)
	}

	options := &telebot.SendOptions{}
	// Telegram only accepts absolute URLs on inline buttons.
	if strings.HasPrefix(n.Data.Link, "https://") || strings.HasPrefix(n.Data.Link, "http://") {
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("Open "+n.Data.ClientName, n.Data.Link)))
		options.ReplyMarkup = markup
	}

	text := fmt.Sprintf("%s\n%s", n.Title, n.Body)
	recipient := &telebot.User{ID: u.TelegramChatID.Int64} // Direct user chat
	if _, err := g.sender.Send(recipient, text, options); err != nil {
		return fmt.Errorf("telegram send for reminder %s: %w", n.ReminderID, err)
	}
	return nil
}
