package email

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dukerupert/muninn/internal/storage"
)

// Part is a resolved attachment, ready for MIME assembly. It lives only
// for the duration of one job.
type Part struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Resolver fetches staged attachments from storage and turns them into
// MIME-ready parts.
type Resolver struct {
	store storage.Storage
}

// NewResolver creates an attachment resolver backed by the given storage.
func NewResolver(store storage.Storage) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches the object staged under key and builds a Part from it.
// The stored object name is "{uuid}_{original-filename}"; the original
// filename is restored for the Content-Disposition header. A missing or
// unreadable object is tagged ReasonAttachmentUnavailable so the job
// fails before any transport connection is attempted.
func (r *Resolver) Resolve(ctx context.Context, key string) (*Part, error) {
	obj, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, &SendError{Reason: ReasonAttachmentUnavailable, Err: err}
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, &SendError{Reason: ReasonAttachmentUnavailable, Err: err}
	}

	filename := originalFilename(key)

	return &Part{
		Filename:    filename,
		ContentType: inferContentType(filename),
		Content:     content,
	}, nil
}

// Discard removes staged objects once their job has reached a terminal
// state. Removal is best-effort; the first failure is returned so the
// caller can log it.
func (r *Resolver) Discard(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// originalFilename strips the staging prefix from a stored object name.
func originalFilename(key string) string {
	if i := strings.Index(key, "_"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// inferContentType derives the MIME type from the filename extension,
// falling back to a generic binary type when unknown.
func inferContentType(filename string) string {
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ctype == "" {
		return "application/octet-stream"
	}
	return ctype
}
