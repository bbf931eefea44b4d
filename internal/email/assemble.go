package email

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/wneessen/go-mail"
)

// Message is the immutable assembled form of a job. Raw holds the full
// serialized message; its length is the byte count recorded on success
// and the exact bytes handed to the transport.
type Message struct {
	Raw []byte
}

// Length returns the serialized byte length of the message.
func (m *Message) Length() int {
	return len(m.Raw)
}

// Assembler builds the outgoing MIME message for a job. Sender address
// and Message-ID domain come from configuration; the clock drives the
// Date header so assembly is deterministic under test.
type Assembler struct {
	sender string
	domain string
	clock  clockwork.Clock
}

// NewAssembler creates a message assembler.
func NewAssembler(sender, domain string, clock clockwork.Clock) *Assembler {
	return &Assembler{
		sender: sender,
		domain: domain,
		clock:  clock,
	}
}

// Assemble builds and serializes the message for a job and its resolved
// attachment parts. Parts are appended in the order supplied. The
// Message-ID is derived from the job id and the configured domain, so
// the same job always yields the same correlation header.
func (a *Assembler) Assemble(job *Job, parts []*Part) (*Message, error) {
	msg := mail.NewMsg()

	if err := msg.From(a.sender); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(job.Recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(job.Subject)
	msg.SetDateWithValue(a.clock.Now())
	msg.SetMessageIDWithValue(fmt.Sprintf("%s@%s", job.ID, a.domain))

	switch job.Format {
	case FormatHTML:
		msg.SetBodyString(mail.TypeTextHTML, job.Body)
	default:
		msg.SetBodyString(mail.TypeTextPlain, job.Body)
	}

	for _, part := range parts {
		opts := []mail.FileOption{
			mail.WithFileContentType(mail.ContentType(part.ContentType)),
		}
		// Text attachments stay readable on the wire; everything else is
		// base64. go-mail silently ignores EncodingQP for attachments, so
		// 8bit (NoEncoding) is the option that keeps the content as text.
		if strings.HasPrefix(part.ContentType, "text/") {
			opts = append(opts, mail.WithFileEncoding(mail.NoEncoding))
		}
		if err := msg.AttachReader(part.Filename, bytes.NewReader(part.Content), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", part.Filename, err)
		}
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	return &Message{Raw: buf.Bytes()}, nil
}
