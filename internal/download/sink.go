package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

// FileSink writes each document to Dir as "<book name>.pdf"
type FileSink struct {
	Dir string
}

// Write stores the document through a temporary file so partial PDFs never appear
func (f *FileSink) Write(ctx context.Context, entry models.CatalogEntry, meta models.BookMetadata, doc models.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := FileName(meta.Name)
	if name == "" {
		name = FileName(entry.Name)
	}
	if name == "" {
		name = FileName(meta.Slug)
	}
	if name == "" {
		name = "book"
	}
	path := filepath.Join(f.Dir, name+".pdf")

	tmp, err := os.CreateTemp(f.Dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(doc.Data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move document into place: %w", err)
	}

	return path, nil
}

// FileName makes a book display name safe to use as a file name
func FileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")
	return strings.TrimSpace(name)
}
