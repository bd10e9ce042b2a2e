package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/testutils"
)

func TestEstablish(t *testing.T) {
	shelf := testutils.NewBookshelf(t, "abc12", "secret",
		testutils.Book{Name: "Algebra", Slug: "algebra"},
		testutils.Book{Name: "Geometry", Slug: "geometry"},
	)

	h := NewHandshaker(Options{BaseURL: shelf.URL()})
	s, err := h.Establish(context.Background(), models.NewCredential(" ABC12 ", "secret"))
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	if s.CatalogID() != "abc12" {
		t.Errorf("Expected catalog abc12, got %s", s.CatalogID())
	}
	if s.Version() != shelf.Version {
		t.Errorf("Expected version %s, got %s", shelf.Version, s.Version())
	}
	if s.Generation() != 1 {
		t.Errorf("Expected generation 1, got %d", s.Generation())
	}

	var listing struct {
		Props struct {
			Books []struct {
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"books"`
		} `json:"props"`
	}
	if err := json.Unmarshal(s.Listing(), &listing); err != nil {
		t.Fatalf("Listing is not JSON: %v", err)
	}
	if len(listing.Props.Books) != 2 || listing.Props.Books[1].URL != "geometry" {
		t.Errorf("Unexpected listing: %+v", listing.Props.Books)
	}
	if shelf.Logins() != 1 {
		t.Errorf("Expected 1 login, got %d", shelf.Logins())
	}
}

func TestEstablishReturnsNewSessionEachTime(t *testing.T) {
	shelf := testutils.NewBookshelf(t, "abc12", "secret")
	h := NewHandshaker(Options{BaseURL: shelf.URL()})
	cred := models.NewCredential("abc12", "secret")

	first, err := h.Establish(context.Background(), cred)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	second, err := h.Establish(context.Background(), cred)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	if first == second {
		t.Fatal("Expected a distinct session object")
	}
	if first.client.Jar == second.client.Jar {
		t.Error("Expected sessions to have separate cookie jars")
	}
	if second.Generation() <= first.Generation() {
		t.Errorf("Expected increasing generations, got %d then %d", first.Generation(), second.Generation())
	}
}

func TestEstablishWrongAccessCode(t *testing.T) {
	shelf := testutils.NewBookshelf(t, "abc12", "secret")
	h := NewHandshaker(Options{BaseURL: shelf.URL()})

	s, err := h.Establish(context.Background(), models.NewCredential("abc12", "wrong"))
	if s != nil {
		t.Error("Expected no session on login failure")
	}

	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if authErr.Stage != "login" || authErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Unexpected auth error: %+v", authErr)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Error("Access code leaked into error message")
	}
}

func TestEstablishMissingPayload(t *testing.T) {
	shelf := testutils.NewBookshelf(t, "abc12", "secret")
	shelf.OmitPayload = true
	h := NewHandshaker(Options{BaseURL: shelf.URL()})

	_, err := h.Establish(context.Background(), models.NewCredential("abc12", "secret"))

	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if authErr.Stage != "payload" {
		t.Errorf("Expected payload stage, got %s", authErr.Stage)
	}
	if shelf.LoginPosts() != 0 {
		t.Errorf("Expected no login attempt, got %d", shelf.LoginPosts())
	}
}

func TestEstablishUnknownCatalog(t *testing.T) {
	shelf := testutils.NewBookshelf(t, "abc12", "secret")
	h := NewHandshaker(Options{BaseURL: shelf.URL()})

	_, err := h.Establish(context.Background(), models.NewCredential("zzz99", "secret"))

	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if authErr.Stage != "landing" || authErr.Status != http.StatusNotFound {
		t.Errorf("Unexpected auth error: %+v", authErr)
	}
}

func TestEstablishMissingXSRFCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Error("Login must not be attempted without a token")
		}
		w.Write([]byte(`<div id="app" data-page="{&quot;version&quot;:&quot;v1&quot;}"></div>`))
	}))
	defer server.Close()

	h := NewHandshaker(Options{BaseURL: server.URL})
	_, err := h.Establish(context.Background(), models.NewCredential("abc12", "secret"))

	var authErr *models.AuthError
	if !errors.As(err, &authErr) || authErr.Stage != "xsrf" {
		t.Fatalf("Expected xsrf AuthError, got %v", err)
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		expected string
		wantErr  bool
	}{
		{
			name:     "entity encoded payload",
			page:     `<html><body><div id="app" data-page="{&quot;component&quot;:&quot;Login&quot;,&quot;version&quot;:&quot;9f8e&quot;}"></div></body></html>`,
			expected: "9f8e",
		},
		{
			name:     "single quoted attribute",
			page:     `<div data-page='{"version":"abc"}'></div>`,
			expected: "abc",
		},
		{
			name:     "numeric version",
			page:     `<div data-page="{&quot;version&quot;:42}"></div>`,
			expected: "42",
		},
		{
			name:    "missing attribute",
			page:    `<div id="app"></div>`,
			wantErr: true,
		},
		{
			name:    "not json",
			page:    `<div data-page="hello"></div>`,
			wantErr: true,
		},
		{
			name:    "no version field",
			page:    `<div data-page="{&quot;component&quot;:&quot;Login&quot;}"></div>`,
			wantErr: true,
		},
		{
			name:    "empty version",
			page:    `<div data-page="{&quot;version&quot;:&quot;&quot;}"></div>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractVersion([]byte(tt.page))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got version %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSessionURL(t *testing.T) {
	s := &Session{baseURL: "https://example.org/", catalogID: "abc12"}

	if got := s.URL("my book", "pages", "3"); got != "https://example.org/abc12/my%20book/pages/3" {
		t.Errorf("Unexpected URL %s", got)
	}
	if got := s.URL(); got != "https://example.org/abc12" {
		t.Errorf("Unexpected URL %s", got)
	}
}
