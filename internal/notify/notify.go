// Package notify tells athletes about events that need their attention.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier delivers a short message to a user.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Message is one notification. To is the recipient's e-mail address.
type Message struct {
	To      string
	Subject string
	Body    string
}

// ReviewPending builds the message sent when a coach logs a workout on an
// athlete's behalf.
func ReviewPending(to, athleteName, coachName, templateName string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Review your %s workout", templateName),
		Body: fmt.Sprintf(
			"Hi %s,\n\n%s logged your %s workout for you. Open the app to approve it or edit the numbers.\n",
			athleteName, coachName, templateName,
		),
	}
}

// LogNotifier only writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification", "to", msg.To, "subject", msg.Subject)
	return nil
}
