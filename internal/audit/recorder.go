// Package audit persists the durable per-job delivery record. The
// partition layout data/<YYYY-MM-DD>/<success|failure>/<id>.json is the
// system's sole source of truth about what happened to a job.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Status is the terminal result of a dispatch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrOutcomeNotFound is returned by Lookup when no record exists for
// the id under the given date partition.
var ErrOutcomeNotFound = errors.New("outcome not found")

// Outcome is the durable record of one dispatch. MessageLength is the
// serialized byte length of the assembled message, zero on failure.
type Outcome struct {
	EmailID       string            `json:"email_id"`
	Status        Status            `json:"status"`
	Detail        string            `json:"detail"`
	Timestamp     time.Time         `json:"timestamp"`
	ClientIP      string            `json:"client_ip"`
	Headers       map[string]string `json:"headers"`
	MessageLength int               `json:"message_length"`
}

// sensitiveHeaders are stripped from every persisted record. Keys are
// canonical lowercase.
var sensitiveHeaders = []string{
	"x-api-key",
	"authorization",
	"proxy-authorization",
	"cookie",
}

// Recorder writes outcome records and debug captures under a
// date-partitioned base directory.
type Recorder struct {
	basePath string
	clock    clockwork.Clock
}

// NewRecorder creates a recorder rooted at basePath.
func NewRecorder(basePath string, clock clockwork.Clock) *Recorder {
	return &Recorder{
		basePath: basePath,
		clock:    clock,
	}
}

// Record persists exactly one outcome under
// <base>/<date>/<status>/<email_id>.json, creating partition directories
// as needed. Authentication-bearing headers are stripped before the
// write. A second call for the same id deterministically overwrites the
// previous record; it never leaves two divergent records for one id.
func (r *Recorder) Record(outcome Outcome) error {
	outcome.Headers = stripSensitive(outcome.Headers)

	now := r.clock.Now()
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = now
	}

	dir := filepath.Join(r.basePath, now.Format("2006-01-02"), string(outcome.Status))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create outcome partition: %w", err)
	}

	data, err := json.MarshalIndent(outcome, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	path := filepath.Join(dir, outcome.EmailID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write outcome: %w", err)
	}

	return nil
}

// CaptureMessage persists the raw serialized message under
// <base>/<date>/debug/<email_id>_email.txt. Callers treat failures as
// best-effort; a failed capture never invalidates the outcome record.
func (r *Recorder) CaptureMessage(emailID string, raw []byte) error {
	dir := filepath.Join(r.basePath, r.clock.Now().Format("2006-01-02"), "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create debug partition: %w", err)
	}

	path := filepath.Join(dir, emailID+"_email.txt")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write debug capture: %w", err)
	}

	return nil
}

// Lookup reads back the outcome for an id under the given date,
// checking the success partition first. Returns ErrOutcomeNotFound when
// neither partition has a record.
func (r *Recorder) Lookup(emailID string, date time.Time) (*Outcome, error) {
	day := date.Format("2006-01-02")

	for _, status := range []Status{StatusSuccess, StatusFailure} {
		path := filepath.Join(r.basePath, day, string(status), emailID+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read outcome: %w", err)
		}

		var outcome Outcome
		if err := json.Unmarshal(data, &outcome); err != nil {
			return nil, fmt.Errorf("failed to decode outcome: %w", err)
		}
		return &outcome, nil
	}

	return nil, ErrOutcomeNotFound
}

// stripSensitive returns a copy of headers without authentication-bearing
// entries. Matching is case-insensitive on the header name.
func stripSensitive(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}

	cleaned := make(map[string]string, len(headers))
	for name, value := range headers {
		if isSensitive(name) {
			continue
		}
		cleaned[name] = value
	}
	return cleaned
}

func isSensitive(name string) bool {
	for _, s := range sensitiveHeaders {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}
