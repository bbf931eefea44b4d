package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/muninn/internal/audit"
	"github.com/dukerupert/muninn/internal/telemetry"
)

// successDetail is the detail text recorded on every successful dispatch.
const successDetail = "Email sent successfully"

// Transport delivers a serialized message to one recipient.
type Transport interface {
	Deliver(ctx context.Context, recipient string, raw []byte) error
}

// OutcomeRecorder persists delivery outcomes and debug captures.
type OutcomeRecorder interface {
	Record(outcome audit.Outcome) error
	CaptureMessage(emailID string, raw []byte) error
}

// Dispatcher runs one job through resolve, assemble and deliver, then
// records the terminal outcome. Every invocation reaches a terminal
// state: a job is never abandoned without an audit record, and nothing
// is reported back to the submitter.
type Dispatcher struct {
	resolver  *Resolver
	assembler *Assembler
	transport Transport
	recorder  OutcomeRecorder
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(
	resolver *Resolver,
	assembler *Assembler,
	transport Transport,
	recorder OutcomeRecorder,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver:  resolver,
		assembler: assembler,
		transport: transport,
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics,
	}
}

// Dispatch processes a single job to its terminal state. Failures are
// classified and recorded, never returned; no retries occur.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) {
	logger := d.logger.With(slog.String("email_id", job.ID.String()))
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Staged attachments are single-use; drop them once the job is
	// terminal, whichever way it went.
	defer func() {
		if len(job.AttachmentKeys) == 0 {
			return
		}
		if err := d.resolver.Discard(ctx, job.AttachmentKeys); err != nil {
			logger.Warn("failed to discard staged attachments", slog.String("error", err.Error()))
		}
	}()

	msg, err := d.run(ctx, job)
	if err != nil {
		reason, detail := Classify(err)
		d.record(job, audit.StatusFailure, detail, 0, logger)
		d.count(audit.StatusFailure, reason)
		logger.Warn("email dispatch failed",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		return
	}

	d.record(job, audit.StatusSuccess, successDetail, msg.Length(), logger)
	d.count(audit.StatusSuccess, "")

	// Debug capture is best-effort and happens only after the outcome is
	// durably recorded.
	if job.Debug {
		if err := d.recorder.CaptureMessage(job.ID.String(), msg.Raw); err != nil {
			logger.Warn("debug capture failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("email dispatched",
		slog.String("recipient", job.Recipient),
		slog.Int("bytes", msg.Length()),
	)
}

// run performs the fallible stages: resolve all attachments, assemble,
// deliver. Attachment resolution aborts the job before any transport
// connection; a panic anywhere surfaces as an error so the caller still
// records a terminal outcome.
func (d *Dispatcher) run(ctx context.Context, job *Job) (msg *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	parts := make([]*Part, 0, len(job.AttachmentKeys))
	for _, key := range job.AttachmentKeys {
		part, rerr := d.resolver.Resolve(ctx, key)
		if rerr != nil {
			return nil, rerr
		}
		parts = append(parts, part)
	}

	m, aerr := d.assembler.Assemble(job, parts)
	if aerr != nil {
		return nil, aerr
	}

	if derr := d.transport.Deliver(ctx, job.Recipient, m.Raw); derr != nil {
		return nil, derr
	}

	return m, nil
}

func (d *Dispatcher) record(job *Job, status audit.Status, detail string, length int, logger *slog.Logger) {
	outcome := audit.Outcome{
		EmailID:       job.ID.String(),
		Status:        status,
		Detail:        detail,
		ClientIP:      job.Client.IP,
		Headers:       job.Client.Headers,
		MessageLength: length,
	}

	if err := d.recorder.Record(outcome); err != nil {
		// The audit record is the only durable evidence of the job; a
		// failed write is the one condition we can only log.
		logger.Error("failed to record delivery outcome", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) count(status audit.Status, reason Reason) {
	if d.metrics == nil {
		return
	}
	d.metrics.DispatchedTotal.WithLabelValues(string(status), string(reason)).Inc()
}
