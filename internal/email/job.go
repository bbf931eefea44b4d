package email

import (
	"fmt"

	"github.com/google/uuid"
)

// Field limits enforced at intake. Attachment staging additionally caps
// each uploaded file at MaxAttachmentSize bytes.
const (
	MaxRecipientLength = 64
	MaxSubjectLength   = 255
	MaxBodyLength      = 2000
	MaxAttachments     = 2
	MaxAttachmentSize  = 2 * 1024 * 1024
)

// BodyFormat selects the MIME type of the message body part.
type BodyFormat string

const (
	FormatPlain BodyFormat = "plain"
	FormatHTML  BodyFormat = "html"
)

// ClientMetadata captures submitter details for the audit trail.
// It is never forwarded to the mail transport.
type ClientMetadata struct {
	IP      string            `json:"client_ip"`
	Headers map[string]string `json:"headers"`
}

// Job is one accepted email-send request. It is constructed once at
// intake, immutable afterwards, and consumed exactly once by the
// dispatcher. AttachmentKeys reference objects previously staged in
// storage under "{uuid}_{original-filename}" names.
type Job struct {
	ID             uuid.UUID
	Recipient      string
	Subject        string
	Body           string
	Format         BodyFormat
	Debug          bool
	AttachmentKeys []string
	Client         ClientMetadata
}

// NewJob validates the submitted fields and constructs a Job with a
// freshly assigned id. The id is the correlation key for every
// downstream artifact (Message-ID, audit record, debug capture).
func NewJob(recipient, subject, body string, format BodyFormat, debug bool, attachmentKeys []string, client ClientMetadata) (*Job, error) {
	job := &Job{
		ID:             uuid.New(),
		Recipient:      recipient,
		Subject:        subject,
		Body:           body,
		Format:         format,
		Debug:          debug,
		AttachmentKeys: attachmentKeys,
		Client:         client,
	}
	if job.Format == "" {
		job.Format = FormatPlain
	}

	if err := job.validate(); err != nil {
		return nil, err
	}

	return job, nil
}

func (j *Job) validate() error {
	if j.Recipient == "" {
		return fmt.Errorf("recipient email is required")
	}
	if len(j.Recipient) > MaxRecipientLength {
		return fmt.Errorf("recipient email must be at most %d characters", MaxRecipientLength)
	}
	if len(j.Subject) > MaxSubjectLength {
		return fmt.Errorf("subject must be at most %d characters", MaxSubjectLength)
	}
	if len(j.Body) > MaxBodyLength {
		return fmt.Errorf("body must be at most %d characters", MaxBodyLength)
	}
	if j.Format != FormatPlain && j.Format != FormatHTML {
		return fmt.Errorf("body format must be either %q or %q", FormatPlain, FormatHTML)
	}
	if len(j.AttachmentKeys) > MaxAttachments {
		return fmt.Errorf("at most %d attachments are allowed", MaxAttachments)
	}
	return nil
}
