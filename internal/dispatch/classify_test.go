package dispatch

import (
	"errors"
	"testing"

	"github.com/good-yellow-bee/blazealert/internal/mailer"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "rate limited",
			err:  &mailer.TransportError{StatusCode: 429, Msg: "slow down"},
			want: true,
		},
		{
			name: "service unavailable",
			err:  &mailer.TransportError{StatusCode: 503, Msg: "try again"},
			want: true,
		},
		{
			name: "smtp service not available",
			err:  &mailer.TransportError{StatusCode: 421, Msg: "closing channel"},
			want: true,
		},
		{
			name: "smtp mailbox busy",
			err:  &mailer.TransportError{StatusCode: 450, Msg: "mailbox busy"},
			want: true,
		},
		{
			name: "smtp local error",
			err:  &mailer.TransportError{StatusCode: 451, Msg: "local error in processing"},
			want: true,
		},
		{
			name: "smtp insufficient storage",
			err:  &mailer.TransportError{StatusCode: 452, Msg: "insufficient storage"},
			want: true,
		},
		{
			name: "auth failure",
			err:  &mailer.TransportError{StatusCode: 401, Msg: "bad credentials"},
			want: false,
		},
		{
			name: "smtp auth failure",
			err:  &mailer.TransportError{StatusCode: 535, Msg: "authentication credentials invalid"},
			want: false,
		},
		{
			name: "bad recipient",
			err:  &mailer.TransportError{StatusCode: 550, Msg: "no such user"},
			want: false,
		},
		{
			name: "unknown status",
			err:  &mailer.TransportError{StatusCode: 599, Msg: "weird"},
			want: false,
		},
		{
			name: "timeout by message",
			err:  &mailer.TransportError{Msg: "dial tcp: i/o timeout"},
			want: true,
		},
		{
			name: "connection refused by message",
			err:  &mailer.TransportError{Msg: "dial tcp 127.0.0.1:25: connection refused"},
			want: true,
		},
		{
			name: "connection reset by message",
			err:  &mailer.TransportError{Msg: "read: connection reset by peer"},
			want: true,
		},
		{
			name: "network unreachable by message",
			err:  &mailer.TransportError{Msg: "network is unreachable"},
			want: true,
		},
		{
			name: "plain message is terminal",
			err:  &mailer.TransportError{Msg: "message rejected"},
			want: false,
		},
		{
			name: "non-transport error is retryable",
			err:  errors.New("something unexpected"),
			want: true,
		},
		{
			name: "wrapped transport error classifies through",
			err:  wrapped{&mailer.TransportError{StatusCode: 503, Msg: "busy"}},
			want: true,
		},
		{
			name: "nil is not transient",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }
