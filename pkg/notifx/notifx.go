// Package notifx delivers emails produced by queue jobs through a pluggable
// provider, rendering named templates on the way.
package notifx

import (
	"context"
	"strings"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Client validates, renders and hands messages to the provider.
type Client struct {
	provider    EmailSender
	templates   *TemplateRegistry
	defaultFrom string
}

// NewClient creates a new notification client. defaultFrom is used for
// messages without a sender.
func NewClient(provider EmailSender, defaultFrom string) *Client {
	return &Client{
		provider:    provider,
		templates:   NewTemplateRegistry(),
		defaultFrom: defaultFrom,
	}
}

// RegisterTemplate parses and stores a named template for later use.
func (c *Client) RegisterTemplate(name, tmplString string) error {
	return c.templates.Register(name, tmplString)
}

// Render executes a registered template.
func (c *Client) Render(name string, data any) (string, error) {
	return c.templates.Render(name, data)
}

// SendEmail validates msg and sends it through the provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	if msg.From == "" {
		msg.From = c.defaultFrom
	}
	if err := validate(msg); err != nil {
		return err
	}
	if err := c.provider.SendEmail(ctx, msg); err != nil {
		return notifxErrors.NewWithCause(ErrSendFailed, err).WithDetail("to", strings.Join(msg.To, ","))
	}
	return nil
}

// SendTemplatedEmail renders a template into the HTML body and sends the email.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage) error {
	body, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}
	msg.HTMLBody = body
	return c.SendEmail(ctx, msg)
}

func validate(msg EmailMessage) error {
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "invalid recipient").WithDetail("to", to)
		}
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "email content is required")
	}
	return nil
}
