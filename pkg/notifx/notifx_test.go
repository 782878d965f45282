package notifx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sent []notifx.EmailMessage
	err  error
}

func (r *recorder) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestSendEmail(t *testing.T) {
	rec := &recorder{}
	client := notifx.NewClient(rec, "noreply@example.com")

	err := client.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"a@example.com"},
		Subject:  "Hi",
		TextBody: "hello",
	})
	require.NoError(t, err)
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "noreply@example.com", rec.sent[0].From)
}

func TestSendEmail_Validation(t *testing.T) {
	client := notifx.NewClient(&recorder{}, "noreply@example.com")

	tests := []struct {
		name string
		msg  notifx.EmailMessage
	}{
		{"no recipients", notifx.EmailMessage{Subject: "s", TextBody: "b"}},
		{"bad recipient", notifx.EmailMessage{To: []string{"nobody"}, Subject: "s", TextBody: "b"}},
		{"no subject", notifx.EmailMessage{To: []string{"a@example.com"}, TextBody: "b"}},
		{"no content", notifx.EmailMessage{To: []string{"a@example.com"}, Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.SendEmail(context.Background(), tt.msg)
			assert.True(t, errx.IsCode(err, notifx.ErrInvalidMessage.Code), "%v", err)
			assert.True(t, notifx.IsPermanent(err))
		})
	}
}

func TestSendEmail_ProviderFailureIsRetryable(t *testing.T) {
	client := notifx.NewClient(&recorder{err: errors.New("smtp 421")}, "noreply@example.com")

	err := client.SendEmail(context.Background(), notifx.EmailMessage{
		To: []string{"a@example.com"}, Subject: "s", TextBody: "b",
	})
	assert.True(t, errx.IsCode(err, notifx.ErrSendFailed.Code))
	assert.False(t, notifx.IsPermanent(err))
}

func TestSendTemplatedEmail(t *testing.T) {
	rec := &recorder{}
	client := notifx.NewClient(rec, "noreply@example.com")
	require.NoError(t, client.RegisterTemplate("welcome", `<p>Hello {{.name}}</p>`))

	msg := notifx.EmailMessage{To: []string{"a@example.com"}, Subject: "Welcome"}
	require.NoError(t, client.SendTemplatedEmail(context.Background(), "welcome", map[string]any{"name": "<Ann>"}, msg))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "<p>Hello &lt;Ann&gt;</p>", rec.sent[0].HTMLBody)

	err := client.SendTemplatedEmail(context.Background(), "missing", nil, msg)
	assert.True(t, errx.IsCode(err, notifx.ErrTemplateNotFound.Code))

	_, err = client.Render("welcome", map[string]any{})
	assert.True(t, errx.IsCode(err, notifx.ErrTemplateRender.Code))

	err = client.RegisterTemplate("broken", `{{.name`)
	assert.True(t, errx.IsCode(err, notifx.ErrTemplateParse.Code))
}
