package notifxses_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx"
	"github.com/Abraxas-365/jobqueue/pkg/notifx/notifxses"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentResponse = `<SendEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendEmailResult><MessageId>0100-msg</MessageId></SendEmailResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</SendEmailResponse>`

const errorResponse = `<ErrorResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <Error><Type>Sender</Type><Code>%s</Code><Message>%s</Message></Error>
  <RequestId>req-2</RequestId>
</ErrorResponse>`

// fakeSES records the decoded form of every request.
type fakeSES struct {
	mu       sync.Mutex
	requests []url.Values
	status   int
	code     string
}

func (f *fakeSES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	if f.code != "" {
		w.WriteHeader(f.status)
		fmt.Fprintf(w, errorResponse, f.code, "refused by test server")
		return
	}
	fmt.Fprint(w, sentResponse)
}

func newProvider(t *testing.T, fake *fakeSES) *notifxses.SESProvider {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := ses.New(ses.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
		RetryMaxAttempts: 1,
	})
	return notifxses.NewSESProvider(client)
}

func TestSESProvider_SendEmail(t *testing.T) {
	fake := &fakeSES{}
	provider := newProvider(t, fake)

	err := provider.SendEmail(context.Background(), notifx.EmailMessage{
		From:     "noreply@example.com",
		To:       []string{"a@example.com", "b@example.com"},
		Subject:  "Report ready",
		TextBody: "see attachment",
		HTMLBody: "<p>see attachment</p>",
	})
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	form := fake.requests[0]
	assert.Equal(t, "SendEmail", form.Get("Action"))
	assert.Equal(t, "noreply@example.com", form.Get("Source"))
	assert.Equal(t, "a@example.com", form.Get("Destination.ToAddresses.member.1"))
	assert.Equal(t, "b@example.com", form.Get("Destination.ToAddresses.member.2"))
	assert.Equal(t, "Report ready", form.Get("Message.Subject.Data"))
	assert.Equal(t, "see attachment", form.Get("Message.Body.Text.Data"))
	assert.Equal(t, "<p>see attachment</p>", form.Get("Message.Body.Html.Data"))
	assert.Equal(t, "UTF-8", form.Get("Message.Body.Html.Charset"))
}

func TestSESProvider_RejectedIsPermanent(t *testing.T) {
	provider := newProvider(t, &fakeSES{status: http.StatusBadRequest, code: "MessageRejected"})

	err := provider.SendEmail(context.Background(), notifx.EmailMessage{
		From: "noreply@example.com", To: []string{"a@example.com"}, Subject: "s", TextBody: "b",
	})
	assert.True(t, errx.IsCode(err, notifxses.ErrRejected.Code), "%v", err)
	assert.True(t, notifx.IsPermanent(err))
}

func TestSESProvider_ThrottleIsRetryable(t *testing.T) {
	provider := newProvider(t, &fakeSES{status: http.StatusBadRequest, code: "Throttling"})

	client := notifx.NewClient(provider, "noreply@example.com")
	err := client.SendEmail(context.Background(), notifx.EmailMessage{
		To: []string{"a@example.com"}, Subject: "s", TextBody: "b",
	})
	assert.True(t, errx.IsCode(err, notifxses.ErrSendFailed.Code), "%v", err)
	assert.True(t, errx.IsCode(err, notifx.ErrSendFailed.Code))
	assert.False(t, notifx.IsPermanent(err))
}
