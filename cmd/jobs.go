package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
)

// ============================================================================
// Payloads
// ============================================================================

// Recipients accepts a single address or a list.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = Recipients{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

// EmailJobData is the payload of send-email.
type EmailJobData struct {
	To        Recipients     `json:"to"`
	From      string         `json:"from,omitempty"`
	Subject   string         `json:"subject"`
	Template  string         `json:"template,omitempty"`
	HTML      string         `json:"html,omitempty"`
	Text      string         `json:"text,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// BulkEmailJobData is the payload of send-bulk-email.
type BulkEmailJobData struct {
	Emails []EmailJobData `json:"emails"`
}

// RenderTemplateJobData is the payload of render-template.
type RenderTemplateJobData struct {
	Template  string         `json:"template"`
	Variables map[string]any `json:"variables,omitempty"`
	EmailData EmailJobData   `json:"emailData"`
}

// FileJobData is the payload of the file queue jobs.
type FileJobData struct {
	FilePath   string          `json:"filePath"`
	FileName   string          `json:"fileName"`
	FileType   string          `json:"fileType"`
	FileSize   int64           `json:"fileSize"`
	UserID     string          `json:"userId,omitempty"`
	Operations []FileOperation `json:"operations,omitempty"`
}

// FileOperation is one step applied by process-file.
type FileOperation struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// BatchFileJobData is the payload of batch-process.
type BatchFileJobData struct {
	Files []FileJobData `json:"files"`
}

// NotificationJobData is the payload of send-notification.
type NotificationJobData struct {
	UserID  string `json:"userId"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// ReportJobData is the payload of generate-report.
type ReportJobData struct {
	Report string    `json:"report"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

const maxFileSize = 100 << 20

var fileOperations = map[string]bool{
	"compress": true, "resize": true, "watermark": true,
	"convert": true, "scan": true, "upload": true,
}

// ============================================================================
// Registration
// ============================================================================

// emailTemplates are registered on the mail client at startup.
var emailTemplates = map[string]string{
	"welcome":        `<h1>Welcome, {{.name}}!</h1><p>Your account is ready.</p>`,
	"password-reset": `<p>Hi {{.name}}, reset your password here: <a href="{{.link}}">{{.link}}</a></p>`,
	"report-ready":   `<p>Your report <b>{{.report}}</b> is ready.</p>`,
}

// jobHandlers holds the collaborators the demo handlers deliver through.
type jobHandlers struct {
	mail *notifx.Client
}

// registerJobHandlers binds the demo handlers to the built-in queues.
// Queues not served by this process are skipped.
func registerJobHandlers(m *jobx.Manager, mail *notifx.Client) {
	h := &jobHandlers{mail: mail}

	handlers := []struct {
		queue   string
		name    string
		handler jobx.HandlerFunc
	}{
		{"email", "send-email", h.sendEmail},
		{"email", "send-bulk-email", h.sendBulkEmail},
		{"email", "render-template", h.renderTemplate},
		{"file", "upload-file", uploadFile},
		{"file", "process-file", processFile},
		{"file", "batch-process", batchProcess},
		{"notification", "send-notification", sendNotification},
		{"data", "process-data", processData},
		{"report", "generate-report", generateReport},
	}

	for _, r := range handlers {
		if _, err := m.Queue(r.queue); err != nil {
			continue
		}
		if err := m.RegisterHandler(r.queue, r.name, r.handler); err != nil {
			logx.Fatalf("Failed to register handler %s/%s: %v", r.queue, r.name, err)
		}
		logx.Debugf("  ✓ handler %s/%s registered", r.queue, r.name)
	}
}

// ============================================================================
// Email
// ============================================================================

func (e EmailJobData) message() notifx.EmailMessage {
	return notifx.EmailMessage{
		From:     e.From,
		To:       e.To,
		Subject:  e.Subject,
		TextBody: e.Text,
		HTMLBody: e.HTML,
	}
}

// deliver sends one email, rendering its template when set. Errors that a
// resend cannot fix are marked permanent.
func (h *jobHandlers) deliver(ctx context.Context, data EmailJobData) error {
	var err error
	if data.Template != "" {
		err = h.mail.SendTemplatedEmail(ctx, data.Template, data.Variables, data.message())
	} else {
		err = h.mail.SendEmail(ctx, data.message())
	}
	if err != nil && notifx.IsPermanent(err) {
		return jobx.Permanent(err)
	}
	return err
}

func (h *jobHandlers) sendEmail(ctx context.Context, job *jobx.Job) error {
	var data EmailJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}

	if err := h.deliver(ctx, data); err != nil {
		return err
	}

	logx.WithFields(logx.Fields{
		"job_id":  job.ID,
		"to":      strings.Join(data.To, ","),
		"subject": data.Subject,
	}).Info("📧 Email sent")
	return nil
}

func (h *jobHandlers) sendBulkEmail(ctx context.Context, job *jobx.Job) error {
	var data BulkEmailJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if len(data.Emails) == 0 {
		return jobx.Permanent(fmt.Errorf("no emails to send"))
	}

	failed := 0
	for i, email := range data.Emails {
		if err := h.deliver(ctx, email); err != nil {
			if !jobx.IsPermanent(err) {
				return err
			}
			failed++
			logx.WithError(err).WithField("job_id", job.ID).Warn("📧 Bulk email entry rejected")
		}
		if err := job.ReportProgress(ctx, (i+1)*100/len(data.Emails)); err != nil {
			return err
		}
	}

	logx.WithFields(logx.Fields{
		"job_id": job.ID,
		"total":  len(data.Emails),
		"failed": failed,
	}).Info("📧 Bulk email finished")

	if failed == len(data.Emails) {
		return fmt.Errorf("all %d emails failed", failed)
	}
	return nil
}

func (h *jobHandlers) renderTemplate(ctx context.Context, job *jobx.Job) error {
	var data RenderTemplateJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if data.Template == "" {
		return jobx.Permanent(fmt.Errorf("template is required"))
	}

	email := data.EmailData
	email.Template = data.Template
	email.Variables = data.Variables
	if err := h.deliver(ctx, email); err != nil {
		return err
	}

	logx.WithFields(logx.Fields{"job_id": job.ID, "template": data.Template}).Info("📧 Templated email sent")
	return nil
}

// ============================================================================
// Files
// ============================================================================

func (f FileJobData) validate() error {
	switch {
	case f.FilePath == "" || f.FileName == "":
		return fmt.Errorf("file path and name are required")
	case f.FileSize <= 0:
		return fmt.Errorf("file size must be positive")
	case f.FileSize > maxFileSize:
		return fmt.Errorf("file %s exceeds %d bytes", f.FileName, maxFileSize)
	}
	for _, op := range f.Operations {
		if !fileOperations[op.Type] {
			return fmt.Errorf("unsupported file operation %q", op.Type)
		}
	}
	return nil
}

func uploadFile(ctx context.Context, job *jobx.Job) error {
	var data FileJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if err := data.validate(); err != nil {
		return jobx.Permanent(err)
	}

	if err := simulateWork(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{"job_id": job.ID, "file": data.FileName}).Info("📁 File uploaded")
	return nil
}

func processFile(ctx context.Context, job *jobx.Job) error {
	var data FileJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if err := data.validate(); err != nil {
		return jobx.Permanent(err)
	}

	for i, op := range data.Operations {
		if err := simulateWork(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		logx.WithFields(logx.Fields{"job_id": job.ID, "operation": op.Type}).Debug("file operation applied")
		if err := job.ReportProgress(ctx, (i+1)*100/len(data.Operations)); err != nil {
			return err
		}
	}
	logx.WithFields(logx.Fields{"job_id": job.ID, "file": data.FileName}).Info("📁 File processed")
	return nil
}

func batchProcess(ctx context.Context, job *jobx.Job) error {
	var data BatchFileJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if len(data.Files) == 0 {
		return jobx.Permanent(fmt.Errorf("no files to process"))
	}

	failed := 0
	for i, file := range data.Files {
		if err := file.validate(); err != nil {
			failed++
		} else if err := simulateWork(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		if err := job.ReportProgress(ctx, (i+1)*100/len(data.Files)); err != nil {
			return err
		}
	}

	logx.WithFields(logx.Fields{
		"job_id": job.ID,
		"total":  len(data.Files),
		"failed": failed,
	}).Info("📁 Batch processed")
	return nil
}

// ============================================================================
// Notifications, data, reports
// ============================================================================

func sendNotification(ctx context.Context, job *jobx.Job) error {
	var data NotificationJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if data.UserID == "" || data.Message == "" {
		return jobx.Permanent(fmt.Errorf("user and message are required"))
	}
	if err := simulateWork(ctx, 20*time.Millisecond); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{"job_id": job.ID, "user_id": data.UserID, "channel": data.Channel}).Info("🔔 Notification sent")
	return nil
}

func processData(ctx context.Context, job *jobx.Job) error {
	if err := simulateWork(ctx, 200*time.Millisecond); err != nil {
		return err
	}
	logx.WithField("job_id", job.ID).Info("📊 Data processed")
	return nil
}

func generateReport(ctx context.Context, job *jobx.Job) error {
	var data ReportJobData
	if err := job.Decode(&data); err != nil {
		return jobx.Permanent(err)
	}
	if data.Report == "" {
		return jobx.Permanent(fmt.Errorf("report name is required"))
	}
	if !data.To.IsZero() && data.To.Before(data.From) {
		return jobx.Permanent(fmt.Errorf("report range ends before it starts"))
	}

	for pct := 25; pct <= 100; pct += 25 {
		if err := simulateWork(ctx, 250*time.Millisecond); err != nil {
			return err
		}
		if err := job.ReportProgress(ctx, pct); err != nil {
			return err
		}
	}
	logx.WithFields(logx.Fields{"job_id": job.ID, "report": data.Report}).Info("📈 Report generated")
	return nil
}

func simulateWork(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
