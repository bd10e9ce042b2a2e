package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfripper/internal/catalog"
	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/storage"
)

type createJobRequest struct {
	Catalog    string `json:"catalog"`
	AccessCode string `json:"access_code"`
	Select     string `json:"select"`
}

func (h *Handler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.jobStore.GetAll())
	case "POST":
		h.createJob(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleJobDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/"), "/")
	jobID := parts[0]

	job, ok := h.getJobOrError(w, jobID)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case "GET":
			h.writeJSON(w, job)
		case "DELETE":
			h.deleteJob(w, job)
		default:
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[1] == "documents":
		if r.Method != "GET" {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.serveDocument(w, job, parts[2])
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var request createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	cred := models.NewCredential(request.Catalog, request.AccessCode)
	if cred.CatalogID == "" {
		h.writeError(w, "catalog is required", http.StatusBadRequest)
		return
	}
	if cred.AccessCode == "" {
		h.writeError(w, "access_code is required", http.StatusBadRequest)
		return
	}

	job := h.jobStore.Create(cred.CatalogID, request.Select)
	ctx, cancel := context.WithCancel(h.baseCtx)
	h.jobStore.SetCancel(job.ID, cancel)

	h.wg.Add(1)
	go h.runJob(ctx, job.ID, cred, request.Select)

	slog.Info("Job created", "job_id", job.ID, "catalog", cred.CatalogID)
	h.writeJSONStatus(w, http.StatusAccepted, job)
}

func (h *Handler) deleteJob(w http.ResponseWriter, job *models.Job) {
	if !job.Status.Done() {
		h.jobStore.Cancel(job.ID)
		slog.Info("Job cancellation requested", "job_id", job.ID)
		h.writeJSONStatus(w, http.StatusAccepted, job)
		return
	}

	h.jobStore.Delete(job.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveDocument(w http.ResponseWriter, job *models.Job, rawOrdinal string) {
	ordinal, err := strconv.Atoi(rawOrdinal)
	if err != nil {
		h.writeError(w, "Invalid book number", http.StatusBadRequest)
		return
	}
	data, exists := job.Documents[ordinal]
	if !exists {
		h.writeError(w, "Document not found", http.StatusNotFound)
		return
	}

	name := "book"
	if book, ok := job.Book(ordinal); ok {
		if n := download.FileName(book.Name); n != "" {
			name = n
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write document", "job_id", job.ID, "ordinal", ordinal, "err", err)
	}
}

// runJob opens the bookshelf, resolves the selection and downloads every selected book
func (h *Handler) runJob(ctx context.Context, jobID string, cred models.Credential, selection string) {
	defer h.wg.Done()
	defer h.jobStore.Finish(jobID)

	log := slog.With("job_id", jobID, "catalog", cred.CatalogID)
	h.jobStore.Update(jobID, func(j *models.Job) { j.Status = models.JobRunning })

	o := h.newOrchestrator()
	o.Logger = log
	s, entries, err := o.Open(ctx, cred)
	if err != nil {
		h.finishJob(ctx, jobID, err)
		return
	}

	ordinals, err := catalog.ParseSelection(selection, len(entries))
	if err != nil {
		h.finishJob(ctx, jobID, err)
		return
	}
	selected, err := catalog.Select(entries, ordinals)
	if err != nil {
		h.finishJob(ctx, jobID, err)
		return
	}

	h.jobStore.Update(jobID, func(j *models.Job) {
		for _, entry := range selected {
			j.Books = append(j.Books, models.JobBook{Ordinal: entry.Ordinal, Name: entry.Name, Slug: entry.Slug})
		}
	})

	o.Sink = &jobSink{store: h.jobStore, jobID: jobID}
	o.Progress = func(entry models.CatalogEntry, page, total int) {
		h.jobStore.Update(jobID, func(j *models.Job) {
			if book, ok := j.Book(entry.Ordinal); ok {
				book.PageCount = total
				book.PagesDone = page
			}
		})
	}

	results, err := o.Download(ctx, cred, s, selected)
	h.jobStore.Update(jobID, func(j *models.Job) {
		for _, res := range results {
			book, ok := j.Book(res.Entry.Ordinal)
			if !ok {
				continue
			}
			if res.Metadata.Name != "" {
				book.Name = res.Metadata.Name
			}
			book.DocumentURL = res.Path
			if res.Err != nil {
				book.Error = res.Err.Error()
			}
		}
	})
	h.finishJob(ctx, jobID, err)
}

func (h *Handler) finishJob(ctx context.Context, jobID string, err error) {
	now := time.Now()
	h.jobStore.Update(jobID, func(j *models.Job) {
		j.FinishedAt = &now
		switch {
		case ctx.Err() != nil:
			j.Status = models.JobCancelled
		case err != nil:
			j.Status = models.JobFailed
			j.Error = err.Error()
		default:
			j.Status = models.JobCompleted
		}
	})

	job, _ := h.jobStore.Get(jobID)
	if job != nil {
		slog.Info("Job finished", "job_id", jobID, "status", job.Status)
	}
}

// jobSink keeps finished documents on the job so the API can serve them
type jobSink struct {
	store *storage.JobStore
	jobID string
}

func (s *jobSink) Write(ctx context.Context, entry models.CatalogEntry, meta models.BookMetadata, doc models.Document) (string, error) {
	if !s.store.Update(s.jobID, func(j *models.Job) { j.Documents[entry.Ordinal] = doc.Data }) {
		return "", fmt.Errorf("job %s no longer exists", s.jobID)
	}
	return fmt.Sprintf("/api/jobs/%s/documents/%d", s.jobID, entry.Ordinal), nil
}
