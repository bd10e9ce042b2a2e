package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/shelfripper/internal/catalog"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/pages"
	"github.com/lehigh-university-libraries/shelfripper/internal/session"
)

// Assembler builds a document from pages in final order
type Assembler interface {
	Assemble(pages []models.PageImage) (models.Document, error)
}

// Sink receives each finished document and returns where it was stored
type Sink interface {
	Write(ctx context.Context, entry models.CatalogEntry, meta models.BookMetadata, doc models.Document) (string, error)
}

// ProgressFunc is called after every downloaded page
type ProgressFunc func(entry models.CatalogEntry, page, total int)

// Result is the outcome for one selected book. Err is set when the book was skipped.
type Result struct {
	Entry    models.CatalogEntry
	Metadata models.BookMetadata
	Document models.Document
	Path     string
	Err      error
}

// Orchestrator drives listing, page downloads and assembly for a bookshelf
type Orchestrator struct {
	Auth      session.Authenticator
	Catalog   *catalog.Client
	Policy    pages.RetryPolicy
	Assembler Assembler
	Sink      Sink
	Progress  ProgressFunc
	Logger    *slog.Logger

	// KeepDocuments retains document bytes on results even when a Sink stored them
	KeepDocuments bool
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Open authenticates and lists the bookshelf
func (o *Orchestrator) Open(ctx context.Context, cred models.Credential) (*session.Session, []models.CatalogEntry, error) {
	s, err := o.Auth.Establish(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	entries, err := o.Catalog.ListBooks(s)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list books: %w", err)
	}
	o.logger().Info("Bookshelf opened", "catalog", cred.CatalogID, "books", len(entries))
	return s, entries, nil
}

// Run opens the bookshelf and downloads the selected books
func (o *Orchestrator) Run(ctx context.Context, cred models.Credential, selected []models.CatalogEntry) ([]Result, error) {
	s, err := o.Auth.Establish(ctx, cred)
	if err != nil {
		return nil, err
	}
	return o.Download(ctx, cred, s, selected)
}

// Download processes the selected books in order using s as the starting session.
// Book-level failures are recorded on their Result and the run continues; an
// authentication failure or cancellation stops the run and is returned.
func (o *Orchestrator) Download(ctx context.Context, cred models.Credential, s *session.Session, selected []models.CatalogEntry) ([]Result, error) {
	log := o.logger()
	fetcher := pages.NewFetcher(o.Auth, cred, o.Policy, log)
	results := make([]Result, 0, len(selected))

	for i, entry := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		log.Info("Processing book", "catalog", cred.CatalogID, "book", entry.Name, "progress", fmt.Sprintf("%d/%d", i+1, len(selected)))

		var result Result
		result, s = o.book(ctx, fetcher, s, entry)
		if result.Err != nil {
			if fatal(ctx, result.Err) {
				return results, result.Err
			}
			log.Error("Skipping book", "catalog", cred.CatalogID, "book", entry.Name, "error", result.Err)
		}
		results = append(results, result)
	}

	return results, nil
}

// book downloads and assembles one entry, returning the session to continue with
func (o *Orchestrator) book(ctx context.Context, fetcher *pages.Fetcher, s *session.Session, entry models.CatalogEntry) (Result, *session.Session) {
	result := Result{Entry: entry}

	meta, err := o.Catalog.GetBookMetadata(ctx, s, entry)
	if err != nil {
		result.Err = err
		return result, s
	}
	result.Metadata = meta

	images := make([]models.PageImage, meta.PageCount)
	for n := 1; n <= meta.PageCount; n++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result, s
		}

		page, next, err := fetcher.FetchPage(ctx, s, entry, n)
		if next != nil {
			s = next
		}
		if err != nil {
			result.Err = err
			return result, s
		}
		images[n-1] = page

		if o.Progress != nil {
			o.Progress(entry, n, meta.PageCount)
		}
	}

	doc, err := o.Assembler.Assemble(images)
	if err != nil {
		var encErr *models.EncodingError
		if errors.As(err, &encErr) {
			encErr.Book = meta.Name
		}
		result.Err = err
		return result, s
	}
	result.Document = doc

	if o.Sink != nil {
		path, err := o.Sink.Write(ctx, entry, meta, doc)
		if err != nil {
			result.Err = fmt.Errorf("failed to save %q: %w", meta.Name, err)
			return result, s
		}
		result.Path = path
		if !o.KeepDocuments {
			result.Document.Data = nil
		}
	}

	o.logger().Info("Book saved", "book", meta.Name, "pages", doc.Pages, "path", result.Path)
	return result, s
}

// fatal reports errors that end the whole run
func fatal(ctx context.Context, err error) bool {
	if models.IsFatal(err) {
		return true
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return true
	}
	return false
}
