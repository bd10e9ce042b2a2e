package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

func sampleResults() []download.Result {
	return []download.Result{
		{
			Entry:    models.CatalogEntry{Name: "Algebra", Slug: "algebra", Ordinal: 1},
			Metadata: models.BookMetadata{Name: "Algebra", Slug: "algebra", PageCount: 3},
			Document: models.Document{Pages: 3},
			Path:     "/out/Algebra.pdf",
		},
		{
			Entry: models.CatalogEntry{Name: "Gone", Slug: "gone", Ordinal: 2},
			Err:   &models.NotFoundError{CatalogID: "abc12", Book: "gone", Status: 404},
		},
	}
}

func TestNew(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	r := New("abc12", started, started.Add(1500*time.Millisecond), sampleResults())

	if r.Run.Timestamp != "2024-03-01_09-30-00" {
		t.Errorf("Unexpected timestamp %s", r.Run.Timestamp)
	}
	if r.Run.Duration != "1.5s" {
		t.Errorf("Expected duration 1.5s, got %s", r.Run.Duration)
	}
	if r.Run.Selected != 2 || r.Run.Succeeded != 1 || r.Run.Failed != 1 {
		t.Errorf("Unexpected counts %+v", r.Run)
	}
	if r.Books[0].Pages != 3 || r.Books[0].Path != "/out/Algebra.pdf" || r.Books[0].Error != "" {
		t.Errorf("Unexpected first book %+v", r.Books[0])
	}
	if r.Books[1].Error == "" {
		t.Error("Expected the failed book to carry its error")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	r := New("abc12", started, started, sampleResults())

	path, err := r.Save(dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "shelfripper-abc12-2024-03-01_09-30-00.yaml" {
		t.Errorf("Unexpected report name %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "catalog: abc12") {
		t.Errorf("Report is missing the catalog:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Books) != 2 || loaded.Books[1].Slug != "gone" {
		t.Errorf("Unexpected books after reload %+v", loaded.Books)
	}
}
