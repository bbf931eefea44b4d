package email

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason Reason
		wantDetail string
	}{
		{
			name:       "auth failure",
			err:        &SendError{Reason: ReasonAuthFailed, Err: errors.New("535 5.7.8 bad credentials")},
			wantReason: ReasonAuthFailed,
			wantDetail: "Authentication failed. Check your username and password.",
		},
		{
			name:       "connect failure",
			err:        &SendError{Reason: ReasonConnectFailed, Err: errors.New("dial tcp: connection refused")},
			wantReason: ReasonConnectFailed,
			wantDetail: "Failed to connect to the SMTP server.",
		},
		{
			name:       "recipient rejected",
			err:        &SendError{Reason: ReasonRecipientRejected, Err: errors.New("550 no such user")},
			wantReason: ReasonRecipientRejected,
			wantDetail: "Recipient address rejected by the server.",
		},
		{
			name:       "sender rejected",
			err:        &SendError{Reason: ReasonSenderRejected, Err: errors.New("550 not allowed")},
			wantReason: ReasonSenderRejected,
			wantDetail: "Sender address rejected by the server.",
		},
		{
			name:       "data rejected",
			err:        &SendError{Reason: ReasonDataRejected, Err: errors.New("554 message rejected")},
			wantReason: ReasonDataRejected,
			wantDetail: "The SMTP server refused to accept the message data.",
		},
		{
			name:       "transport error",
			err:        &SendError{Reason: ReasonTransportError, Err: errors.New("421 closing channel")},
			wantReason: ReasonTransportError,
			wantDetail: "An SMTP error occurred: 421 closing channel",
		},
		{
			name:       "attachment unavailable",
			err:        &SendError{Reason: ReasonAttachmentUnavailable, Err: errors.New("object not found: abc_report.pdf")},
			wantReason: ReasonAttachmentUnavailable,
			wantDetail: "Attachment could not be retrieved: object not found: abc_report.pdf",
		},
		{
			name:       "untagged error",
			err:        errors.New("boom"),
			wantReason: ReasonUnexpected,
			wantDetail: "An unexpected error occurred: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, detail := Classify(tt.err)
			if reason != tt.wantReason {
				t.Errorf("Classify() reason = %q, want %q", reason, tt.wantReason)
			}
			if detail != tt.wantDetail {
				t.Errorf("Classify() detail = %q, want %q", detail, tt.wantDetail)
			}
		})
	}
}

func TestClassify_WrappedSendError(t *testing.T) {
	inner := &SendError{Reason: ReasonAuthFailed, Err: errors.New("535")}
	wrapped := fmt.Errorf("delivery failed: %w", inner)

	reason, _ := Classify(wrapped)
	if reason != ReasonAuthFailed {
		t.Errorf("Classify() through wrapping = %q, want %q", reason, ReasonAuthFailed)
	}
}

func TestSendError_Unwrap(t *testing.T) {
	inner := errors.New("underlying")
	se := &SendError{Reason: ReasonTransportError, Err: inner}

	if !errors.Is(se, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if se.Error() != "transport_error: underlying" {
		t.Errorf("Error() = %q", se.Error())
	}
}
