package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/muninn/internal/audit"
	"github.com/dukerupert/muninn/internal/email"
	"github.com/dukerupert/muninn/internal/middleware"
	"github.com/dukerupert/muninn/internal/storage"
	"github.com/dukerupert/muninn/internal/worker"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// larger parts spill to temp files.
const maxMultipartMemory = 8 << 20

// MailHandler handles email submission and outcome lookup.
type MailHandler struct {
	pool     *worker.Pool
	store    storage.Storage
	recorder *audit.Recorder
	clock    clockwork.Clock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewMailHandler creates a mail handler.
func NewMailHandler(
	pool *worker.Pool,
	store storage.Storage,
	recorder *audit.Recorder,
	clock clockwork.Clock,
	logger *slog.Logger,
) *MailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailHandler{
		pool:     pool,
		store:    store,
		recorder: recorder,
		clock:    clock,
		validate: validator.New(),
		logger:   logger,
	}
}

// sendRequest is the submission payload, shared by the JSON and
// multipart endpoints.
type sendRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"required,max=64"`
	Subject        string `json:"subject" validate:"required,max=255"`
	Body           string `json:"body" validate:"required,max=2000"`
	BodyType       string `json:"body_type" validate:"omitempty,oneof=plain html"`
	Debug          bool   `json:"debug"`
}

type sendResponse struct {
	Message string `json:"message"`
	EmailID string `json:"email_id"`
}

// Send handles POST /mail/send. The request is validated and queued;
// the response carries only the generated email id, before any delivery
// outcome is known.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.BodyType == "" {
		req.BodyType = string(email.FormatPlain)
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.submit(w, r, req, nil)
}

// SendWithAttachments handles POST /mail/send-with-attachments. Up to
// two attachments of at most 2 MB each are staged into storage before
// the job is queued; the dispatch pipeline reads them back by key.
func (h *MailHandler) SendWithAttachments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	debug, _ := strconv.ParseBool(r.FormValue("debug"))
	req := sendRequest{
		RecipientEmail: r.FormValue("recipient_email"),
		Subject:        r.FormValue("subject"),
		Body:           r.FormValue("body"),
		BodyType:       r.FormValue("body_type"),
		Debug:          debug,
	}
	if req.BodyType == "" {
		req.BodyType = string(email.FormatPlain)
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File["attachments"]
	if len(files) > email.MaxAttachments {
		respondError(w, http.StatusBadRequest, "You can only upload up to 2 attachments.")
		return
	}

	keys := make([]string, 0, len(files))
	for _, fh := range files {
		if fh.Size > email.MaxAttachmentSize {
			respondError(w, http.StatusBadRequest, "Attachments must be smaller than 2MB.")
			return
		}

		file, err := fh.Open()
		if err != nil {
			h.discardStaged(r.Context(), keys)
			respondError(w, http.StatusInternalServerError, "failed to read attachment")
			return
		}

		key := uuid.New().String() + "_" + filepath.Base(fh.Filename)
		ctype := fh.Header.Get("Content-Type")
		if ctype == "" {
			ctype = "application/octet-stream"
		}

		err = h.store.Put(r.Context(), key, io.LimitReader(file, email.MaxAttachmentSize), ctype)
		file.Close()
		if err != nil {
			h.discardStaged(r.Context(), keys)
			respondError(w, http.StatusInternalServerError, "failed to stage attachment")
			return
		}

		keys = append(keys, key)
	}

	h.submit(w, r, req, keys)
}

// Outcome handles GET /mail/outcome/{email_id}. The audit record is the
// only place a caller can learn the result of a queued job. An optional
// date query (YYYY-MM-DD) selects the partition; defaults to today.
func (h *MailHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("email_id")

	date := h.clock.Now()
	if ds := r.URL.Query().Get("date"); ds != "" {
		parsed, err := time.Parse("2006-01-02", ds)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		date = parsed
	}

	outcome, err := h.recorder.Lookup(id, date)
	if err != nil {
		if errors.Is(err, audit.ErrOutcomeNotFound) {
			respondError(w, http.StatusNotFound, "No outcome recorded for this email id.")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to read outcome")
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

// submit builds the job and hands it to the dispatch pool.
func (h *MailHandler) submit(w http.ResponseWriter, r *http.Request, req sendRequest, attachmentKeys []string) {
	job, err := email.NewJob(
		req.RecipientEmail,
		req.Subject,
		req.Body,
		email.BodyFormat(req.BodyType),
		req.Debug,
		attachmentKeys,
		h.clientMetadata(r),
	)
	if err != nil {
		h.discardStaged(r.Context(), attachmentKeys)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pool.Submit(job); err != nil {
		h.discardStaged(r.Context(), attachmentKeys)
		if errors.Is(err, worker.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, "Server is busy, try again later.")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to queue email")
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Info("email queued",
		slog.String("email_id", job.ID.String()),
		slog.Int("attachments", len(attachmentKeys)),
	)

	respondJSON(w, http.StatusAccepted, sendResponse{
		Message: "Email is being sent in the background",
		EmailID: job.ID.String(),
	})
}

// discardStaged removes objects staged for a submission that was then
// rejected. The dispatch pipeline never sees their keys, so nothing
// else would ever clean them up.
func (h *MailHandler) discardStaged(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := h.store.Delete(ctx, key); err != nil {
			h.logger.Warn("failed to discard staged attachment",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// clientMetadata captures the submitter's IP and request headers for the
// audit record. The recorder strips authentication headers before
// persisting.
func (h *MailHandler) clientMetadata(r *http.Request) email.ClientMetadata {
	ip := middleware.GetClientIPFromContext(r.Context())
	if ip == "" {
		ip = middleware.GetClientIP(r)
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ", ")
	}

	return email.ClientMetadata{IP: ip, Headers: headers}
}
