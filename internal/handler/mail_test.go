package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/muninn/internal/audit"
	"github.com/dukerupert/muninn/internal/email"
	"github.com/dukerupert/muninn/internal/router"
	"github.com/dukerupert/muninn/internal/storage"
	"github.com/dukerupert/muninn/internal/worker"
)

var handlerTime = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

// noopDispatcher accepts jobs without doing anything; handler tests only
// exercise the submission boundary.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, job *email.Job) {}

type handlerFixture struct {
	handler  http.Handler
	store    storage.Storage
	storeDir string
	recorder *audit.Recorder
	pool     *worker.Pool
}

// newHandlerFixture wires a mail handler behind the real router. The
// pool is started unless startPool is false (left idle, its queue fills
// after queueSize submissions).
func newHandlerFixture(t *testing.T, queueSize int, startPool bool) *handlerFixture {
	t.Helper()

	storeDir := t.TempDir()
	store, err := storage.NewLocalStorage(storeDir)
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	clock := clockwork.NewFakeClockAt(handlerTime)
	recorder := audit.NewRecorder(t.TempDir(), clock)

	pool := worker.NewPool(noopDispatcher{}, worker.Config{Workers: 1, QueueSize: queueSize}, nil, nil)
	if startPool {
		pool.Start(context.Background())
		t.Cleanup(pool.Stop)
	}

	h := NewMailHandler(pool, store, recorder, clock, nil)

	r := router.New()
	r.Post("/mail/send", h.Send)
	r.Post("/mail/send-with-attachments", h.SendWithAttachments)
	r.Get("/mail/outcome/{email_id}", h.Outcome)

	return &handlerFixture{
		handler:  r,
		store:    store,
		storeDir: storeDir,
		recorder: recorder,
		pool:     pool,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response body does not parse: %v", err)
	}
	return body
}

func TestMailHandler_Send(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	payload := `{"recipient_email":"user@example.com","subject":"hi","body":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/mail/send", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["message"] != "Email is being sent in the background" {
		t.Errorf("message = %v", body["message"])
	}
	id, _ := body["email_id"].(string)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("email_id %q is not a uuid: %v", id, err)
	}
}

func TestMailHandler_Send_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"recipient_email":`},
		{"missing recipient", `{"subject":"s","body":"b"}`},
		{"recipient too long", `{"recipient_email":"` + strings.Repeat("a", 65) + `","subject":"s","body":"b"}`},
		{"body too long", `{"recipient_email":"u@example.com","subject":"s","body":"` + strings.Repeat("b", 2001) + `"}`},
		{"bad body type", `{"recipient_email":"u@example.com","subject":"s","body":"b","body_type":"markdown"}`},
	}

	f := newHandlerFixture(t, 8, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mail/send", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestMailHandler_Send_QueueFull(t *testing.T) {
	// Idle pool with a single queue slot: the second submission is
	// rejected instead of blocking the request.
	f := newHandlerFixture(t, 1, false)

	payload := `{"recipient_email":"user@example.com","subject":"hi","body":"hello"}`
	for i, want := range []int{http.StatusAccepted, http.StatusServiceUnavailable} {
		req := httptest.NewRequest(http.MethodPost, "/mail/send", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
		if want == http.StatusServiceUnavailable {
			body := decodeBody(t, rec)
			if body["detail"] != "Server is busy, try again later." {
				t.Errorf("detail = %v", body["detail"])
			}
		}
	}
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("attachments", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/mail/send-with-attachments", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestMailHandler_SendWithAttachments(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	req := multipartRequest(t,
		map[string]string{
			"recipient_email": "user@example.com",
			"subject":         "with file",
			"body":            "see attached",
		},
		map[string][]byte{"report.txt": []byte("numbers")},
	)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	// The attachment is staged under "{uuid}_{filename}" before the job
	// is queued.
	entries, err := os.ReadDir(f.storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("staged %d objects, want 1", len(entries))
	}
	key := entries[0].Name()
	if !strings.HasSuffix(key, "_report.txt") {
		t.Errorf("staged key = %q, want uuid prefix and original filename", key)
	}

	obj, err := f.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	defer obj.Close()
	staged, _ := io.ReadAll(obj)
	if string(staged) != "numbers" {
		t.Errorf("staged content = %q", staged)
	}
}

func TestMailHandler_SendWithAttachments_TooMany(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	req := multipartRequest(t,
		map[string]string{"recipient_email": "user@example.com", "subject": "s", "body": "b"},
		map[string][]byte{"a.txt": []byte("a"), "b.txt": []byte("b"), "c.txt": []byte("c")},
	)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["detail"] != "You can only upload up to 2 attachments." {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestMailHandler_SendWithAttachments_TooLarge(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	req := multipartRequest(t,
		map[string]string{"recipient_email": "user@example.com", "subject": "s", "body": "b"},
		map[string][]byte{"big.bin": bytes.Repeat([]byte{0x55}, email.MaxAttachmentSize+1)},
	)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["detail"] != "Attachments must be smaller than 2MB." {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestMailHandler_SendWithAttachments_QueueFullDiscardsStaged(t *testing.T) {
	// Idle pool with one queue slot, filled by a plain send.
	f := newHandlerFixture(t, 1, false)

	payload := `{"recipient_email":"user@example.com","subject":"hi","body":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/mail/send", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("setup submission: status = %d", rec.Code)
	}

	req = multipartRequest(t,
		map[string]string{"recipient_email": "user@example.com", "subject": "s", "body": "b"},
		map[string][]byte{"report.txt": []byte("numbers")},
	)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	// The rejected submission's staged object must not be orphaned.
	entries, err := os.ReadDir(f.storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d staged objects left behind after rejection", len(entries))
	}
}

func TestMailHandler_Outcome(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	err := f.recorder.Record(audit.Outcome{
		EmailID:       "abc-123",
		Status:        audit.StatusSuccess,
		Detail:        "Email sent successfully",
		MessageLength: 321,
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/mail/outcome/abc-123", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["email_id"] != "abc-123" || body["status"] != "success" {
		t.Errorf("outcome body = %v", body)
	}
	if body["message_length"] != float64(321) {
		t.Errorf("message_length = %v", body["message_length"])
	}
}

func TestMailHandler_Outcome_ExplicitDate(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	if err := f.recorder.Record(audit.Outcome{EmailID: "xyz-9", Status: audit.StatusFailure, Detail: "nope"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	// The record lives under the fixture clock's date.
	req := httptest.NewRequest(http.MethodGet, "/mail/outcome/xyz-9?date=2025-04-10", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// A different date misses.
	req = httptest.NewRequest(http.MethodGet, "/mail/outcome/xyz-9?date=2025-04-09", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for wrong date", rec.Code)
	}

	// A malformed date is rejected up front.
	req = httptest.NewRequest(http.MethodGet, "/mail/outcome/xyz-9?date=04-10-2025", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed date", rec.Code)
	}
}

func TestMailHandler_Outcome_NotFound(t *testing.T) {
	f := newHandlerFixture(t, 8, true)

	req := httptest.NewRequest(http.MethodGet, "/mail/outcome/never-sent", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["detail"] != "No outcome recorded for this email id." {
		t.Errorf("detail = %v", body["detail"])
	}
}
