package push

import (
	"context"

	"crm_reminders/internal/domain/push"

	"github.com/sirupsen/logrus"
)

// LogGateway writes notifications to the log instead of delivering them.
// Default channel for local runs.
type LogGateway struct {
	logger *logrus.Entry
}

func NewLogGateway(logger *logrus.Entry) *LogGateway {
	return &LogGateway{logger: logger.WithField("component", "log_gateway")}
}

func (g *LogGateway) Send(_ context.Context, n push.Notification) error {
	g.logger.WithFields(logrus.Fields{
		"reminder_id": n.ReminderID,
		"user_id":     n.UserID,
		"client_id":   n.Data.ClientID,
		"link":        n.Data.Link,
	}).Infof("%s: %s", n.Title, n.Body)
	return nil
}
