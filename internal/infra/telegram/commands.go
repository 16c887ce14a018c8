package telegram

import (
	"context"
	"errors"
	"fmt"

	"crm_reminders/internal/domain/user"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// PendingCounter reports how many reminders a user has pending.
type PendingCounter interface {
	GetPendingReminderCount(ctx context.Context, userID string) (int, error)
}

// Commands answers the bot's /start and /pending commands.
type Commands struct {
	users   user.Repository
	counter PendingCounter
	logger  *logrus.Entry
}

func NewCommands(users user.Repository, counter PendingCounter, logger *logrus.Entry) *Commands {
	return &Commands{users: users, counter: counter, logger: logger.WithField("handler_group", "bot_commands")}
}

// Register wires the commands into b.
func (c *Commands) Register(ctx context.Context, b *telebot.Bot) {
	b.Handle("/start", func(tc telebot.Context) error {
		return tc.Send(c.StartReply(ctx, tc.Sender().ID, tc.Sender().FirstName))
	})
	b.Handle("/pending", func(tc telebot.Context) error {
		return tc.Send(c.PendingReply(ctx, tc.Sender().ID))
	})
}

func (c *Commands) StartReply(ctx context.Context, chatID int64, firstName string) string {
	logCtx := c.logger.WithField("command", "/start").WithField("sender_id", chatID)

	u, err := c.users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logCtx.Info("User is unknown")
			return "Hi! This chat is not linked to a CRM account yet. Ask an administrator to link it."
		}
		logCtx.WithError(err).Error("Error checking user for /start command")
		return "Something went wrong while checking your account. Please try again later."
	}
	if !u.IsActive {
		logCtx.WithField("user_id", u.ID).Info("User identified as inactive")
		return "Your CRM account is inactive. Please contact an administrator."
	}
	logCtx.WithField("user_id", u.ID).Info("User identified")
	return fmt.Sprintf("Hi, %s! I will message you here when a client follow-up is due. Use /pending to see how many are scheduled.", firstName)
}

func (c *Commands) PendingReply(ctx context.Context, chatID int64) string {
	logCtx := c.logger.WithField("command", "/pending").WithField("sender_id", chatID)

	u, err := c.users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "This chat is not linked to a CRM account."
		}
		logCtx.WithError(err).Error("Error checking user for /pending command")
		return "Something went wrong while checking your account. Please try again later."
	}

	n, err := c.counter.GetPendingReminderCount(ctx, u.ID)
	if err != nil {
		logCtx.WithError(err).WithField("user_id", u.ID).Error("Failed to count pending reminders")
		return "Could not load your reminders right now. Please try again later."
	}
	switch n {
	case 0:
		return "You have no pending follow-ups."
	case 1:
		return "You have 1 pending follow-up."
	default:
		return fmt.Sprintf("You have %d pending follow-ups.", n)
	}
}
