// Package testutils provides a fake bookshelf service for tests.
package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	sessionCookie = "bookshelf_session"
	xsrfCookie    = "XSRF-TOKEN"
)

// Book is one book served by the fake bookshelf
type Book struct {
	Name  string
	Slug  string
	Pages [][]byte

	// MetadataStatus forces a status for the book resource, e.g. 404
	MetadataStatus int
	// MetadataBody replaces the JSON body of the book resource
	MetadataBody string
}

// Bookshelf is an httptest server speaking the bookshelf protocol
type Bookshelf struct {
	CatalogID  string
	AccessCode string
	Version    string

	// OmitPayload drops the data-page attribute from the landing page
	OmitPayload bool
	// FailStatus is the status used for injected page failures, default 429
	FailStatus int

	server *httptest.Server
	books  []Book

	mu           sync.Mutex
	nextID       int
	sessions     map[string]*fakeSession
	failures     map[string]int
	pageStatus   map[string]int
	landings     int
	loginPosts   int
	logins       int
	staleReuse   int
	pageRequests int
	failedLogins int
}

type fakeSession struct {
	xsrf          string
	authenticated bool
	burned        bool
}

// NewBookshelf starts a fake bookshelf that is closed when the test ends
func NewBookshelf(t testing.TB, catalogID, accessCode string, books ...Book) *Bookshelf {
	t.Helper()
	b := &Bookshelf{
		CatalogID:  catalogID,
		AccessCode: accessCode,
		Version:    "a1b2c3d4",
		books:      books,
		sessions:   make(map[string]*fakeSession),
		failures:   make(map[string]int),
		pageStatus: make(map[string]int),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the service base URL
func (b *Bookshelf) URL() string {
	return b.server.URL
}

// FailPage makes the next n requests for a page fail with FailStatus
func (b *Bookshelf) FailPage(slug string, page, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[pageKey(slug, page)] = n
}

// SetPageStatus makes every request for a page answer with status
func (b *Bookshelf) SetPageStatus(slug string, page, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageStatus[pageKey(slug, page)] = status
}

// Landings counts landing page requests
func (b *Bookshelf) Landings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.landings
}

// LoginPosts counts login attempts, successful or not
func (b *Bookshelf) LoginPosts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginPosts
}

// Logins counts successful logins
func (b *Bookshelf) Logins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

// PageRequests counts page image requests
func (b *Bookshelf) PageRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageRequests
}

// StaleReuse counts requests made with a session that already received a failed page
func (b *Bookshelf) StaleReuse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.staleReuse
}

func (b *Bookshelf) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 || parts[0] != b.CatalogID {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		b.serveLanding(w, r)
	case len(parts) == 2 && parts[1] == "login" && r.Method == http.MethodPost:
		b.serveLogin(w, r)
	case len(parts) == 2 && r.Method == http.MethodGet:
		b.serveBook(w, r, parts[1])
	case len(parts) == 4 && parts[2] == "pages" && r.Method == http.MethodGet:
		n, err := strconv.Atoi(parts[3])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		b.servePage(w, r, parts[1], n)
	default:
		http.NotFound(w, r)
	}
}

func (b *Bookshelf) serveLanding(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.landings++
	b.nextID++
	id := fmt.Sprintf("s%d", b.nextID)
	xsrf := fmt.Sprintf("tok=%d/%s", b.nextID, id)
	b.sessions[id] = &fakeSession{xsrf: xsrf}
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: xsrfCookie, Value: url.QueryEscape(xsrf), Path: "/"})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if b.OmitPayload {
		fmt.Fprint(w, `<!DOCTYPE html><html><body><div id="app"></div></body></html>`)
		return
	}
	page, _ := json.Marshal(map[string]any{
		"component": "Login",
		"props":     map[string]any{"code": b.CatalogID},
		"url":       "/" + b.CatalogID,
		"version":   b.Version,
	})
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Bookshelf</title></head><body><div id="app" data-page="%s"></div></body></html>`,
		html.EscapeString(string(page)))
}

func (b *Bookshelf) serveLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginPosts++

	s := b.lookup(r)
	if s == nil || r.Header.Get("X-XSRF-TOKEN") != s.xsrf {
		http.Error(w, "page expired", 419)
		return
	}
	if r.Header.Get("X-Inertia") != "true" || r.Header.Get("X-Inertia-Version") != b.Version {
		http.Error(w, "version conflict", http.StatusConflict)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("access_code") != b.AccessCode || r.PostForm.Get("target_page") != "1" {
		b.failedLogins++
		http.Error(w, "invalid access code", http.StatusUnprocessableEntity)
		return
	}

	s.authenticated = true
	b.logins++

	books := make([]map[string]string, 0, len(b.books))
	for _, book := range b.books {
		books = append(books, map[string]string{"name": book.Name, "url": book.Slug})
	}
	writeJSON(w, map[string]any{
		"component": "Bookshelf",
		"props":     map[string]any{"books": books},
		"url":       "/" + b.CatalogID,
		"version":   b.Version,
	})
}

func (b *Bookshelf) serveBook(w http.ResponseWriter, r *http.Request, slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.authorized(w, r) {
		return
	}
	book, ok := b.book(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if book.MetadataStatus != 0 {
		http.Error(w, http.StatusText(book.MetadataStatus), book.MetadataStatus)
		return
	}
	if book.MetadataBody != "" {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, book.MetadataBody)
		return
	}
	writeJSON(w, map[string]any{
		"component": "Book",
		"props": map[string]any{
			"book": map[string]any{"name": book.Name, "url": book.Slug, "page_count": len(book.Pages)},
		},
		"url":     "/" + b.CatalogID + "/" + slug,
		"version": b.Version,
	})
}

func (b *Bookshelf) servePage(w http.ResponseWriter, r *http.Request, slug string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageRequests++

	if !b.authorized(w, r) {
		return
	}
	key := pageKey(slug, n)
	if status := b.pageStatus[key]; status != 0 {
		b.lookup(r).burned = true
		http.Error(w, http.StatusText(status), status)
		return
	}
	if b.failures[key] > 0 {
		b.failures[key]--
		b.lookup(r).burned = true
		status := b.FailStatus
		if status == 0 {
			status = http.StatusTooManyRequests
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	book, ok := b.book(slug)
	if !ok || n < 1 || n > len(book.Pages) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(book.Pages[n-1])
}

// authorized must be called with mu held
func (b *Bookshelf) authorized(w http.ResponseWriter, r *http.Request) bool {
	s := b.lookup(r)
	if s == nil || !s.authenticated {
		http.Error(w, "unauthenticated", http.StatusForbidden)
		return false
	}
	if s.burned {
		b.staleReuse++
	}
	if r.Header.Get("X-Inertia") != "true" || r.Header.Get("X-Inertia-Version") != b.Version {
		http.Error(w, "version conflict", http.StatusConflict)
		return false
	}
	if r.Header.Get("Origin") == "" || r.Header.Get("Referer") == "" {
		http.Error(w, "missing origin", http.StatusBadRequest)
		return false
	}
	return true
}

func (b *Bookshelf) lookup(r *http.Request) *fakeSession {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	return b.sessions[c.Value]
}

func (b *Bookshelf) book(slug string) (Book, bool) {
	for _, book := range b.books {
		if book.Slug == slug {
			return book, true
		}
	}
	return Book{}, false
}

func pageKey(slug string, page int) string {
	return slug + "/" + strconv.Itoa(page)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Inertia", "true")
	_ = json.NewEncoder(w).Encode(v)
}

// PNGPage renders a solid page image; the shade makes pages distinguishable
func PNGPage(t testing.TB, width, height int, shade uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(width, height, shade)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEGPage renders a solid JPEG page image
func JPEGPage(t testing.TB, width, height int, shade uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(width, height, shade), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// Pages renders n distinct PNG pages
func Pages(t testing.TB, n int) [][]byte {
	t.Helper()
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = PNGPage(t, 40, 60, uint8(20*(i+1)))
	}
	return pages
}

func solid(width, height int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := color.RGBA{R: shade, G: 255 - shade, B: shade / 2, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
