package dispatch

import (
	"errors"
	"strings"

	"github.com/good-yellow-bee/blazealert/internal/mailer"
)

// transientStatusCodes are server replies expected to clear on retry:
// rate limiting (429), service unavailable (503), and the SMTP 4xx
// transient-failure family.
var transientStatusCodes = map[int]bool{
	429: true,
	503: true,
	421: true,
	450: true,
	451: true,
	452: true,
}

// transientHints mark errors transient by message when no status code
// is available, typically dial and socket failures.
var transientHints = []string{
	"timeout",
	"timed out",
	"network",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily",
}

// IsTransient classifies a send failure as retryable. Every error
// classifies to exactly one bucket:
//
//   - transport errors with a rate-limit or service-unavailable status,
//     or whose message points at a timeout or network fault, are
//     transient;
//   - all other transport errors (auth, bad recipient, unknown) are
//     terminal;
//   - errors that are not transport errors at all are treated as
//     retryable, since nothing proves a retry would fail.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *mailer.TransportError
	if !errors.As(err, &te) {
		return true
	}

	if transientStatusCodes[te.StatusCode] {
		return true
	}

	msg := strings.ToLower(te.Msg)
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}

	return false
}
