package alerts

import (
	"fmt"
	"net/mail"
	"unicode/utf8"

	"github.com/good-yellow-bee/blazealert/internal/alert"
)

const (
	maxSourceLength  = 256
	maxMessageLength = 4096
	maxSubjectLength = 512
	maxContextKeys   = 32
	maxRecipients    = 50
)

func validateSubmit(req *SubmitRequest) (alert.Type, alert.Severity, error) {
	typ, ok := alert.ParseType(req.Type)
	if !ok {
		return "", "", fmt.Errorf("unknown alert type %q", req.Type)
	}

	severity, ok := alert.ParseSeverity(req.Severity)
	if !ok {
		return "", "", fmt.Errorf("unknown severity %q", req.Severity)
	}

	if req.Source == "" {
		return "", "", fmt.Errorf("source is required")
	}
	if utf8.RuneCountInString(req.Source) > maxSourceLength {
		return "", "", fmt.Errorf("source must be at most %d characters", maxSourceLength)
	}
	if req.Message == "" {
		return "", "", fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return "", "", fmt.Errorf("message must be at most %d characters", maxMessageLength)
	}
	if len(req.Context) > maxContextKeys {
		return "", "", fmt.Errorf("context must have at most %d keys", maxContextKeys)
	}

	return typ, severity, nil
}

func validateEmail(req *EmailRequest) error {
	if req.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if utf8.RuneCountInString(req.Subject) > maxSubjectLength {
		return fmt.Errorf("subject must be at most %d characters", maxSubjectLength)
	}
	if req.Text == "" && req.HTML == "" {
		return fmt.Errorf("text or html body is required")
	}
	if len(req.To) > maxRecipients {
		return fmt.Errorf("at most %d recipients allowed", maxRecipients)
	}
	for _, addr := range req.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid recipient %q", addr)
		}
	}
	return nil
}
