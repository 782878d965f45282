// Package notifxconsole logs emails instead of sending them.
package notifxconsole

import (
	"context"
	"strings"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
)

// ConsoleProvider prints emails via logx. Intended for development and testing.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		logx.Debugf("notifx/console: html body:\n%s", msg.HTMLBody)
	}
	return nil
}
