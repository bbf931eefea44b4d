package email

import (
	"errors"
	"fmt"
)

// Reason tags a delivery failure with its pipeline stage. The set is
// closed: every failed job is recorded under exactly one of these.
type Reason string

const (
	ReasonAuthFailed            Reason = "auth_failed"
	ReasonConnectFailed         Reason = "connect_failed"
	ReasonRecipientRejected     Reason = "recipient_rejected"
	ReasonSenderRejected        Reason = "sender_rejected"
	ReasonDataRejected          Reason = "data_rejected"
	ReasonTransportError        Reason = "transport_error"
	ReasonAttachmentUnavailable Reason = "attachment_unavailable"
	ReasonUnexpected            Reason = "unexpected_error"
)

// SendError wraps a pipeline failure with its stage tag. The transport
// client and attachment resolver return these; everything untagged is
// classified as unexpected.
type SendError struct {
	Reason Reason
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Classify maps a pipeline error to its failure reason and the
// user-facing detail text recorded in the audit trail.
func Classify(err error) (Reason, string) {
	var se *SendError
	if !errors.As(err, &se) {
		return ReasonUnexpected, fmt.Sprintf("An unexpected error occurred: %v", err)
	}

	switch se.Reason {
	case ReasonAuthFailed:
		return se.Reason, "Authentication failed. Check your username and password."
	case ReasonConnectFailed:
		return se.Reason, "Failed to connect to the SMTP server."
	case ReasonRecipientRejected:
		return se.Reason, "Recipient address rejected by the server."
	case ReasonSenderRejected:
		return se.Reason, "Sender address rejected by the server."
	case ReasonDataRejected:
		return se.Reason, "The SMTP server refused to accept the message data."
	case ReasonTransportError:
		return se.Reason, fmt.Sprintf("An SMTP error occurred: %v", se.Err)
	case ReasonAttachmentUnavailable:
		return se.Reason, fmt.Sprintf("Attachment could not be retrieved: %v", se.Err)
	default:
		return ReasonUnexpected, fmt.Sprintf("An unexpected error occurred: %v", err)
	}
}
