package models

import "time"

// JobStatus is the lifecycle state of a background download job
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Done reports whether the job has stopped
func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobBook tracks one selected book inside a job
type JobBook struct {
	Ordinal     int    `json:"ordinal"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	PageCount   int    `json:"page_count"`
	PagesDone   int    `json:"pages_done"`
	DocumentURL string `json:"document_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Job is a download run started through the HTTP API. The access code is
// used to start the run and never stored.
type Job struct {
	ID         string     `json:"id"`
	CatalogID  string     `json:"catalog"`
	Selection  string     `json:"select"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Books      []JobBook  `json:"books"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Documents holds finished PDFs by book ordinal
	Documents map[int][]byte `json:"-"`
}

// Clone returns a copy that shares no mutable state with j
func (j *Job) Clone() *Job {
	c := *j
	c.Books = append([]JobBook(nil), j.Books...)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	c.Documents = make(map[int][]byte, len(j.Documents))
	for k, v := range j.Documents {
		c.Documents[k] = v
	}
	return &c
}

// Book returns the tracked book with the given ordinal
func (j *Job) Book(ordinal int) (*JobBook, bool) {
	for i := range j.Books {
		if j.Books[i].Ordinal == ordinal {
			return &j.Books[i], true
		}
	}
	return nil, false
}
