package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobWith(t *testing.T, name string, payload any) *jobx.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &jobx.Job{ID: "job-1", Name: name, Payload: data}
}

func TestRecipients_AcceptsStringOrList(t *testing.T) {
	var one EmailJobData
	require.NoError(t, json.Unmarshal([]byte(`{"to":"a@example.com","subject":"hi"}`), &one))
	assert.Equal(t, Recipients{"a@example.com"}, one.To)

	var many EmailJobData
	require.NoError(t, json.Unmarshal([]byte(`{"to":["a@example.com","b@example.com"],"subject":"hi"}`), &many))
	assert.Len(t, many.To, 2)

	var bad EmailJobData
	assert.Error(t, json.Unmarshal([]byte(`{"to":42}`), &bad))
}

type outbox struct {
	sent []notifx.EmailMessage
	err  error
}

func (o *outbox) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func newTestHandlers(t *testing.T) (*jobHandlers, *outbox) {
	t.Helper()
	box := &outbox{}
	mail := notifx.NewClient(box, "noreply@example.com")
	for name, tmpl := range emailTemplates {
		require.NoError(t, mail.RegisterTemplate(name, tmpl))
	}
	return &jobHandlers{mail: mail}, box
}

func TestSendEmail(t *testing.T) {
	ctx := context.Background()
	h, box := newTestHandlers(t)

	err := h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{To: Recipients{"a@example.com"}, Subject: "Welcome", Text: "hi"}))
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	assert.Equal(t, "noreply@example.com", box.sent[0].From)

	err = h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{To: Recipients{"not-an-address"}, Subject: "Welcome", Text: "hi"}))
	require.Error(t, err)
	assert.True(t, jobx.IsPermanent(err))

	err = h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{To: Recipients{"a@example.com"}, Subject: "Welcome"}))
	require.Error(t, err, "content is required")
	assert.True(t, jobx.IsPermanent(err))

	err = h.sendEmail(ctx, &jobx.Job{ID: "job-2", Payload: []byte(`"garbage"`)})
	require.Error(t, err)
	assert.True(t, jobx.IsPermanent(err))
}

func TestSendEmail_TemplateAndProviderFailure(t *testing.T) {
	ctx := context.Background()
	h, box := newTestHandlers(t)

	err := h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{
		To: Recipients{"a@example.com"}, Subject: "Welcome",
		Template: "welcome", Variables: map[string]any{"name": "Ann"},
	}))
	require.NoError(t, err)
	assert.Contains(t, box.sent[0].HTMLBody, "Welcome, Ann!")

	err = h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{
		To: Recipients{"a@example.com"}, Subject: "x", Template: "missing",
	}))
	assert.True(t, jobx.IsPermanent(err))

	box.err = errors.New("smtp 421")
	err = h.sendEmail(ctx, jobWith(t, "send-email", EmailJobData{To: Recipients{"a@example.com"}, Subject: "x", Text: "y"}))
	require.Error(t, err)
	assert.False(t, jobx.IsPermanent(err), "provider outages are retried")
}

func TestRenderTemplate(t *testing.T) {
	ctx := context.Background()
	h, box := newTestHandlers(t)

	err := h.renderTemplate(ctx, jobWith(t, "render-template", RenderTemplateJobData{
		Template:  "report-ready",
		Variables: map[string]any{"report": "sales"},
		EmailData: EmailJobData{To: Recipients{"a@example.com"}, Subject: "Report"},
	}))
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	assert.Contains(t, box.sent[0].HTMLBody, "<b>sales</b>")

	err = h.renderTemplate(ctx, jobWith(t, "render-template", RenderTemplateJobData{}))
	assert.True(t, jobx.IsPermanent(err))
}

func TestSendBulkEmail(t *testing.T) {
	ctx := context.Background()
	h, box := newTestHandlers(t)

	err := h.sendBulkEmail(ctx, jobWith(t, "send-bulk-email", BulkEmailJobData{Emails: []EmailJobData{
		{To: Recipients{"a@example.com"}, Subject: "one", Text: "1"},
		{To: Recipients{"broken"}, Subject: "two", Text: "2"},
	}}))
	assert.NoError(t, err)
	assert.Len(t, box.sent, 1)

	err = h.sendBulkEmail(ctx, jobWith(t, "send-bulk-email", BulkEmailJobData{Emails: []EmailJobData{
		{To: Recipients{"broken"}, Subject: "two", Text: "2"},
	}}))
	require.Error(t, err)
	assert.False(t, jobx.IsPermanent(err))

	err = h.sendBulkEmail(ctx, jobWith(t, "send-bulk-email", BulkEmailJobData{}))
	assert.True(t, jobx.IsPermanent(err))

	box.err = errors.New("smtp 421")
	err = h.sendBulkEmail(ctx, jobWith(t, "send-bulk-email", BulkEmailJobData{Emails: []EmailJobData{
		{To: Recipients{"a@example.com"}, Subject: "one", Text: "1"},
	}}))
	require.Error(t, err)
	assert.False(t, jobx.IsPermanent(err))
}

func TestFileJobData_Validate(t *testing.T) {
	valid := FileJobData{FilePath: "/tmp/a.png", FileName: "a.png", FileType: "image/png", FileSize: 1024}
	assert.NoError(t, valid.validate())

	tests := []struct {
		name string
		edit func(*FileJobData)
	}{
		{"missing path", func(f *FileJobData) { f.FilePath = "" }},
		{"empty file", func(f *FileJobData) { f.FileSize = 0 }},
		{"too large", func(f *FileJobData) { f.FileSize = maxFileSize + 1 }},
		{"unknown operation", func(f *FileJobData) { f.Operations = []FileOperation{{Type: "shred"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.edit(&f)
			assert.Error(t, f.validate())
		})
	}
}

func TestProcessFile_ReportsProgressPerOperation(t *testing.T) {
	job := jobWith(t, "process-file", FileJobData{
		FilePath: "/tmp/a.png", FileName: "a.png", FileSize: 10,
		Operations: []FileOperation{{Type: "resize"}, {Type: "compress"}},
	})
	assert.NoError(t, processFile(context.Background(), job))
}

func TestGenerateReport_RejectsInvertedRange(t *testing.T) {
	err := generateReport(context.Background(), &jobx.Job{
		ID:      "r",
		Payload: []byte(`{"report":"sales","from":"2025-03-02T00:00:00Z","to":"2025-03-01T00:00:00Z"}`),
	})
	require.Error(t, err)
	assert.True(t, jobx.IsPermanent(err))
}

func TestSimulateWork_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, simulateWork(ctx, 0), context.Canceled)
}
