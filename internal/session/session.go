package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Session is one authenticated client context for a bookshelf.
// It is never modified after Establish returns; re-authenticating yields a new Session.
type Session struct {
	catalogID  string
	baseURL    string
	version    string
	generation uint64
	client     *http.Client
	header     http.Header
	listing    []byte
}

// CatalogID returns the bookshelf this session is authenticated against
func (s *Session) CatalogID() string {
	return s.catalogID
}

// Version returns the protocol-version token negotiated during the handshake
func (s *Session) Version() string {
	return s.version
}

// Generation numbers sessions in creation order, starting at 1
func (s *Session) Generation() uint64 {
	return s.generation
}

// Listing returns a copy of the login response body, which carries the book listing
func (s *Session) Listing() []byte {
	out := make([]byte, len(s.listing))
	copy(out, s.listing)
	return out
}

// URL builds an absolute URL below the bookshelf root, escaping each path segment
func (s *Session) URL(segments ...string) string {
	return buildURL(s.baseURL, s.catalogID, segments...)
}

// Get performs an authenticated GET carrying the session's cookies and fixed headers
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, nil)
}

func (s *Session) do(ctx context.Context, method, rawURL string, body io.Reader, extra http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range s.header {
		req.Header[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		req.Header[k] = append([]string(nil), v...)
	}
	return s.client.Do(req)
}

func buildURL(baseURL, catalogID string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/")
	b.WriteString(url.PathEscape(catalogID))
	for _, seg := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}
