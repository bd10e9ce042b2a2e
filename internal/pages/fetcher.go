package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/session"
)

// DefaultMaxPageBytes caps the size of a single page image
const DefaultMaxPageBytes = 64 << 20

// transientError is a failed page attempt that is answered by re-authenticating
type transientError struct {
	Status int
	Err    error
}

func (e *transientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page request failed: %v", e.Err)
	}
	return fmt.Sprintf("page request returned status %d", e.Status)
}

func (e *transientError) Unwrap() error { return e.Err }

// Fetcher downloads page images, replacing the session whenever a request fails
type Fetcher struct {
	Auth         session.Authenticator
	Credential   models.Credential
	Policy       RetryPolicy
	Logger       *slog.Logger
	MaxPageBytes int64
}

// NewFetcher creates a page fetcher that re-authenticates with cred
func NewFetcher(auth session.Authenticator, cred models.Credential, policy RetryPolicy, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		Auth:         auth,
		Credential:   cred,
		Policy:       policy,
		Logger:       logger,
		MaxPageBytes: DefaultMaxPageBytes,
	}
}

// FetchPage downloads page n of a book. The returned session is the one that
// produced the page: s itself, or a fresh session when s was discarded after a failure.
func (f *Fetcher) FetchPage(ctx context.Context, s *session.Session, entry models.CatalogEntry, n int) (models.PageImage, *session.Session, error) {
	if n < 1 {
		return models.PageImage{}, s, fmt.Errorf("invalid page number %d", n)
	}

	if s == nil {
		fresh, err := f.Auth.Establish(ctx, f.Credential)
		if err != nil {
			return models.PageImage{}, nil, err
		}
		s = fresh
	}

	var lastErr error
	for retry := 0; ; retry++ {
		if retry > 0 {
			if f.Policy.exhausted(retry) {
				return models.PageImage{}, s, &models.RetriesExhaustedError{
					CatalogID: f.Credential.CatalogID,
					Book:      entry.Name,
					Page:      n,
					Attempts:  retry,
					LastErr:   lastErr,
				}
			}
			if err := f.Policy.wait(ctx, retry); err != nil {
				return models.PageImage{}, s, err
			}

			// The failed session is dropped here and never used again
			fresh, err := f.Auth.Establish(ctx, f.Credential)
			if err != nil {
				return models.PageImage{}, nil, err
			}
			s = fresh
		}

		data, err := f.attempt(ctx, s, entry, n)
		if err == nil {
			f.Logger.Debug("Downloaded page", "catalog", s.CatalogID(), "book", entry.Name, "page", n, "bytes", len(data), "retries", retry)
			return models.PageImage{Number: n, Data: data}, s, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PageImage{}, s, ctxErr
		}

		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			if !f.Policy.RetryNotFound {
				return models.PageImage{}, s, err
			}
			err = &transientError{Status: notFound.Status}
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			return models.PageImage{}, s, err
		}

		lastErr = err
		f.Logger.Warn("Page request failed, starting a new session",
			"catalog", s.CatalogID(),
			"book", entry.Name,
			"page", n,
			"status", transient.Status,
			"generation", s.Generation(),
			"retry", retry+1,
			"error", transient.Err)
	}
}

// attempt performs one GET for the page image
func (f *Fetcher) attempt(ctx context.Context, s *session.Session, entry models.CatalogEntry, n int) ([]byte, error) {
	resp, err := s.Get(ctx, s.URL(entry.Slug, "pages", strconv.Itoa(n)))
	if err != nil {
		return nil, &transientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &models.NotFoundError{
			CatalogID: s.CatalogID(),
			Book:      entry.Name,
			Page:      n,
			Status:    resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &transientError{Status: resp.StatusCode}
	}

	limit := f.MaxPageBytes
	if limit <= 0 {
		limit = DefaultMaxPageBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &transientError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read page body: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("page %d of book %q exceeds %d bytes", n, entry.Name, limit)
	}
	return data, nil
}
