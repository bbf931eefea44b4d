package email

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dukerupert/muninn/internal"
)

// Client delivers assembled messages over SMTP. Each delivery opens one
// connection and releases it on every exit path, including mid-handshake
// failures. Failures come back as SendError values tagged with the stage
// that rejected the message, so classification never inspects error text.
type Client struct {
	cfg     internal.SMTPConfig
	timeout time.Duration
}

// NewClient creates an SMTP transport client.
func NewClient(cfg internal.SMTPConfig) *Client {
	return &Client{
		cfg:     cfg,
		timeout: 30 * time.Second,
	}
}

// Deliver hands the serialized message to the transport for exactly one
// recipient. Implicit TLS (UseSSL) takes precedence over STARTTLS
// (UseTLS) when both are configured. Returns nil only after the server
// accepts the complete message data.
func (c *Client) Deliver(ctx context.Context, recipient string, raw []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(int(c.cfg.Port)))

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &SendError{Reason: ReasonConnectFailed, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if c.cfg.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: c.cfg.Host})
	}

	// NewClient reads the server greeting; on the implicit-TLS path this
	// also performs the handshake.
	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return &SendError{Reason: ReasonConnectFailed, Err: err}
	}
	defer client.Close()

	if !c.cfg.UseSSL && c.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return &SendError{Reason: ReasonConnectFailed, Err: err}
		}
	}

	if c.cfg.UsePassword {
		auth := smtp.PlainAuth("", c.cfg.SenderEmail, c.cfg.SenderPassword, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &SendError{Reason: ReasonAuthFailed, Err: err}
		}
	}

	if err := client.Mail(c.cfg.SenderEmail); err != nil {
		return &SendError{Reason: ReasonSenderRejected, Err: err}
	}
	if err := client.Rcpt(recipient); err != nil {
		return &SendError{Reason: ReasonRecipientRejected, Err: err}
	}

	w, err := client.Data()
	if err != nil {
		return &SendError{Reason: ReasonDataRejected, Err: err}
	}
	if _, err := w.Write(raw); err != nil {
		return &SendError{Reason: ReasonDataRejected, Err: err}
	}
	if err := w.Close(); err != nil {
		return &SendError{Reason: ReasonDataRejected, Err: err}
	}

	if err := client.Quit(); err != nil {
		return &SendError{Reason: ReasonTransportError, Err: err}
	}

	return nil
}
