package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/shelfripper/internal/download"
)

const timestampLayout = "2006-01-02_15-04-05"

// RunInfo represents the header section of a run report
type RunInfo struct {
	Catalog   string `yaml:"catalog"`
	Timestamp string `yaml:"timestamp"`
	Duration  string `yaml:"duration"`
	Selected  int    `yaml:"selected"`
	Succeeded int    `yaml:"succeeded"`
	Failed    int    `yaml:"failed"`
}

// BookReport represents the outcome for one book
type BookReport struct {
	Ordinal int    `yaml:"ordinal,omitempty"`
	Name    string `yaml:"name"`
	Slug    string `yaml:"slug"`
	Pages   int    `yaml:"pages"`
	Path    string `yaml:"path,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Report is the complete summary of a download run. It never carries the access code.
type Report struct {
	Run   RunInfo      `yaml:"run"`
	Books []BookReport `yaml:"books"`
}

// New builds a report from orchestrator results
func New(catalogID string, started time.Time, finished time.Time, results []download.Result) Report {
	r := Report{
		Run: RunInfo{
			Catalog:   catalogID,
			Timestamp: started.Format(timestampLayout),
			Duration:  finished.Sub(started).Round(time.Millisecond).String(),
			Selected:  len(results),
		},
		Books: make([]BookReport, 0, len(results)),
	}

	for _, res := range results {
		book := BookReport{
			Ordinal: res.Entry.Ordinal,
			Name:    res.Entry.Name,
			Slug:    res.Entry.Slug,
			Pages:   res.Document.Pages,
			Path:    res.Path,
		}
		if res.Metadata.Name != "" {
			book.Name = res.Metadata.Name
		}
		if res.Err != nil {
			book.Error = res.Err.Error()
			r.Run.Failed++
		} else {
			r.Run.Succeeded++
		}
		r.Books = append(r.Books, book)
	}

	return r
}

// Save writes the report as YAML into dir and returns the file path
func (r Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(&r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("shelfripper-%s-%s.yaml", r.Run.Catalog, r.Run.Timestamp))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	return filename, nil
}

// Load reads a report written by Save
func Load(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}
