package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/session"
)

// Client reads the book listing and per-book metadata of a bookshelf
type Client struct {
	Logger *slog.Logger
}

// NewClient creates a new catalog client
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Logger: logger}
}

// listingResponse is the page object returned by the login call
type listingResponse struct {
	Props struct {
		Books []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"books"`
	} `json:"props"`
}

// bookResponse is the page object returned for a single book
type bookResponse struct {
	Props struct {
		Book *struct {
			Name      string `json:"name"`
			PageCount *int   `json:"page_count"`
		} `json:"book"`
	} `json:"props"`
}

// ListBooks returns the books listed for the session, in server order
func (c *Client) ListBooks(s *session.Session) ([]models.CatalogEntry, error) {
	return ParseListing(s.CatalogID(), s.Listing())
}

// ParseListing validates a listing payload and converts it to catalog entries
func ParseListing(catalogID string, payload []byte) ([]models.CatalogEntry, error) {
	var resp struct {
		Props *struct {
			Books *json.RawMessage `json:"books"`
		} `json:"props"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &models.ProtocolError{CatalogID: catalogID, Err: fmt.Errorf("failed to decode listing: %w", err)}
	}
	if resp.Props == nil {
		return nil, &models.ProtocolError{CatalogID: catalogID, Field: "props"}
	}
	if resp.Props.Books == nil {
		return nil, &models.ProtocolError{CatalogID: catalogID, Field: "props.books"}
	}

	var listing listingResponse
	if err := json.Unmarshal(payload, &listing); err != nil {
		return nil, &models.ProtocolError{CatalogID: catalogID, Field: "props.books", Err: err}
	}

	entries := make([]models.CatalogEntry, 0, len(listing.Props.Books))
	for i, book := range listing.Props.Books {
		if book.Name == "" {
			return nil, &models.ProtocolError{CatalogID: catalogID, Field: fmt.Sprintf("props.books[%d].name", i)}
		}
		if book.URL == "" {
			return nil, &models.ProtocolError{CatalogID: catalogID, Book: book.Name, Field: fmt.Sprintf("props.books[%d].url", i)}
		}
		entries = append(entries, models.CatalogEntry{
			Name:    book.Name,
			Slug:    book.URL,
			Ordinal: i + 1,
		})
	}

	return entries, nil
}

// GetBookMetadata fetches the page count and display name of one book
func (c *Client) GetBookMetadata(ctx context.Context, s *session.Session, entry models.CatalogEntry) (models.BookMetadata, error) {
	bookURL := s.URL(entry.Slug)
	c.Logger.Debug("Fetching book metadata", "catalog", s.CatalogID(), "book", entry.Name, "url", bookURL)

	resp, err := s.Get(ctx, bookURL)
	if err != nil {
		return models.BookMetadata{}, fmt.Errorf("failed to fetch book %q: %w", entry.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return models.BookMetadata{}, &models.NotFoundError{
			CatalogID: s.CatalogID(),
			Book:      entry.Name,
			Status:    resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.BookMetadata{}, fmt.Errorf("book %q returned status %d: %s", entry.Name, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.BookMetadata{}, fmt.Errorf("failed to read book %q: %w", entry.Name, err)
	}

	return ParseBookMetadata(s.CatalogID(), entry, body)
}

// ParseBookMetadata validates a book payload
func ParseBookMetadata(catalogID string, entry models.CatalogEntry, payload []byte) (models.BookMetadata, error) {
	var resp bookResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return models.BookMetadata{}, &models.ProtocolError{
			CatalogID: catalogID,
			Book:      entry.Name,
			Err:       fmt.Errorf("failed to decode book: %w", err),
		}
	}

	book := resp.Props.Book
	if book == nil {
		return models.BookMetadata{}, &models.ProtocolError{CatalogID: catalogID, Book: entry.Name, Field: "props.book"}
	}
	if book.Name == "" {
		return models.BookMetadata{}, &models.ProtocolError{CatalogID: catalogID, Book: entry.Name, Field: "props.book.name"}
	}
	if book.PageCount == nil {
		return models.BookMetadata{}, &models.ProtocolError{CatalogID: catalogID, Book: entry.Name, Field: "props.book.page_count"}
	}
	if *book.PageCount < 1 {
		return models.BookMetadata{}, &models.ProtocolError{
			CatalogID: catalogID,
			Book:      entry.Name,
			Field:     "props.book.page_count",
			Err:       fmt.Errorf("page count must be positive, got %d", *book.PageCount),
		}
	}

	return models.BookMetadata{
		Name:      book.Name,
		Slug:      entry.Slug,
		PageCount: *book.PageCount,
	}, nil
}
