// Package notifxses sends email through Amazon SES.
package notifxses

import (
	"context"
	"errors"

	"github.com/Abraxas-365/jobqueue/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const charset = "UTF-8"

// SESProvider implements notifx.EmailSender using AWS SES.
type SESProvider struct {
	client *ses.Client
}

func NewSESProvider(client *ses.Client) *SESProvider {
	return &SESProvider{client: client}
}

// SendEmail sends one message. Messages SES refuses outright are reported as
// validation errors so the job is not retried.
func (p *SESProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage) error {
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = content(msg.TextBody)
	}
	if msg.HTMLBody != "" {
		body.Html = content(msg.HTMLBody)
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: content(msg.Subject),
			Body:    body,
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		code := ErrSendFailed
		var rejected *types.MessageRejected
		var unverified *types.MailFromDomainNotVerifiedException
		if errors.As(err, &rejected) || errors.As(err, &unverified) {
			code = ErrRejected
		}
		return sesErrors.NewWithCause(code, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}
	return nil
}

func content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String(charset)}
}
