package notifxses

import "github.com/Abraxas-365/jobqueue/pkg/errx"

var sesErrors = errx.NewRegistry("NOTIFX_SES")

var (
	ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 502, "SES send email failed")
	ErrRejected   = sesErrors.Register("REJECTED", errx.TypeValidation, 400, "SES rejected the email")
)
