package models

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is wrapped by RetriesExhaustedError
var ErrRetriesExhausted = errors.New("page retries exhausted")

// AuthError means the bookshelf could not be opened with the given credential.
// It is fatal for a whole run.
type AuthError struct {
	CatalogID string
	Stage     string // "landing", "payload", "xsrf" or "login"
	Status    int    // HTTP status when the failure came from a response, else 0
	Err       error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for catalog %s at %s", e.CatalogID, e.Stage)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProtocolError reports a JSON response that is missing expected fields
type ProtocolError struct {
	CatalogID string
	Book      string
	Field     string
	Err       error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("unexpected response for catalog %s", e.CatalogID)
	if e.Book != "" {
		msg += fmt.Sprintf(", book %q", e.Book)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %s", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NotFoundError reports a book or page resource that does not resolve.
// Page is 0 when the book itself is missing.
type NotFoundError struct {
	CatalogID string
	Book      string
	Page      int
	Status    int
}

func (e *NotFoundError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("page %d of book %q in catalog %s not found (status %d)", e.Page, e.Book, e.CatalogID, e.Status)
	}
	return fmt.Sprintf("book %q in catalog %s not found (status %d)", e.Book, e.CatalogID, e.Status)
}

// EncodingError reports page data that is not a supported raster image
type EncodingError struct {
	Book string
	Page int
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Book != "" {
		return fmt.Sprintf("page %d of book %q is not a readable image: %v", e.Page, e.Book, e.Err)
	}
	return fmt.Sprintf("page %d is not a readable image: %v", e.Page, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned when a bounded retry policy gives up on a page
type RetriesExhaustedError struct {
	CatalogID string
	Book      string
	Page      int
	Attempts  int
	LastErr   error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("page %d of book %q in catalog %s failed after %d attempts: %v",
		e.Page, e.Book, e.CatalogID, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.LastErr}
}

// IsFatal reports whether err must stop a whole run rather than a single book
func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
