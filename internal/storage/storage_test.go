package storage

import (
	"context"
	"testing"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

func TestCreateAndGet(t *testing.T) {
	store := New()
	job := store.Create("abc12", "1,2")

	if job.ID == "" {
		t.Fatal("Expected a job ID")
	}
	if job.Status != models.JobQueued {
		t.Errorf("Expected queued, got %s", job.Status)
	}

	got, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("Job not found")
	}
	if got.CatalogID != "abc12" || got.Selection != "1,2" {
		t.Errorf("Unexpected job %+v", got)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Expected missing job to be absent")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	job := store.Create("abc12", "")
	store.Update(job.ID, func(j *models.Job) {
		j.Books = append(j.Books, models.JobBook{Ordinal: 1, Name: "A"})
		j.Documents[1] = []byte("pdf")
	})

	got, _ := store.Get(job.ID)
	got.Books[0].Name = "changed"
	got.Documents[2] = []byte("other")
	got.Status = models.JobFailed

	again, _ := store.Get(job.ID)
	if again.Books[0].Name != "A" {
		t.Error("Book changes on a copy leaked into the store")
	}
	if len(again.Documents) != 1 {
		t.Error("Document changes on a copy leaked into the store")
	}
	if again.Status != models.JobQueued {
		t.Error("Status change on a copy leaked into the store")
	}
}

func TestUpdateMissing(t *testing.T) {
	if New().Update("missing", func(*models.Job) {}) {
		t.Error("Expected Update on a missing job to report false")
	}
}

func TestGetAllOrder(t *testing.T) {
	store := New()
	first := store.Create("a", "")
	second := store.Create("b", "")
	third := store.Create("c", "")

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	ids := map[string]bool{first.ID: true, second.ID: true, third.ID: true}
	for i, job := range all {
		if !ids[job.ID] {
			t.Errorf("Unexpected job %s", job.ID)
		}
		if i > 0 && job.CreatedAt.Before(all[i-1].CreatedAt) {
			t.Error("Jobs are not ordered by creation time")
		}
	}
}

func TestCancel(t *testing.T) {
	store := New()
	job := store.Create("abc12", "")

	if store.Cancel(job.ID) {
		t.Error("Expected Cancel without a registered function to report false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.SetCancel(job.ID, cancel)

	if !store.Cancel(job.ID) {
		t.Error("Expected Cancel to report true")
	}
	if ctx.Err() == nil {
		t.Error("Expected the job context to be cancelled")
	}
	if store.Cancel(job.ID) {
		t.Error("Expected a second Cancel to report false")
	}
}

func TestDeleteCancels(t *testing.T) {
	store := New()
	job := store.Create("abc12", "")
	ctx, cancel := context.WithCancel(context.Background())
	store.SetCancel(job.ID, cancel)

	store.Delete(job.ID)

	if ctx.Err() == nil {
		t.Error("Expected Delete to cancel the job")
	}
	if _, ok := store.Get(job.ID); ok {
		t.Error("Expected job to be gone")
	}
}
