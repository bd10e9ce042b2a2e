package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

const (
	// DefaultBaseURL is the ebook service hosting the bookshelves
	DefaultBaseURL = "https://ebooks.zetamaths.com"

	pagePayloadAttr = "data-page"
	xsrfCookieName  = "XSRF-TOKEN"
)

var errNoPayload = errors.New("no " + pagePayloadAttr + " attribute in landing page")

// Authenticator opens a new Session for a credential
type Authenticator interface {
	Establish(ctx context.Context, cred models.Credential) (*Session, error)
}

// Options configures a Handshaker
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Handshaker performs the landing page + login exchange that authenticates a session
type Handshaker struct {
	baseURL    string
	timeout    time.Duration
	transport  http.RoundTripper
	logger     *slog.Logger
	generation atomic.Uint64
}

// NewHandshaker creates a Handshaker, applying defaults for zero options
func NewHandshaker(opts Options) *Handshaker {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handshaker{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		transport: opts.Transport,
		logger:    opts.Logger,
	}
}

// Establish authenticates against the bookshelf and returns a fresh Session.
// Any failure is returned as a *models.AuthError.
func (h *Handshaker) Establish(ctx context.Context, cred models.Credential) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, h.authError(cred, "landing", 0, fmt.Errorf("failed to create cookie jar: %w", err))
	}

	landingURL := buildURL(h.baseURL, cred.CatalogID)
	s := &Session{
		catalogID: cred.CatalogID,
		baseURL:   h.baseURL,
		client: &http.Client{
			Jar:       jar,
			Timeout:   h.timeout,
			Transport: h.transport,
		},
		header: http.Header{},
	}
	s.header.Set("Origin", h.baseURL)
	s.header.Set("Referer", landingURL)

	// Step 1: landing page, which sets the XSRF cookie and embeds the page object
	h.logger.Debug("Requesting bookshelf landing page", "catalog", cred.CatalogID)
	resp, err := s.Get(ctx, landingURL)
	if err != nil {
		return nil, h.authError(cred, "landing", 0, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, h.authError(cred, "landing", 0, fmt.Errorf("failed to read landing page: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, h.authError(cred, "landing", resp.StatusCode, nil)
	}

	// Step 2: protocol version from the embedded page object
	version, err := extractVersion(body)
	if err != nil {
		return nil, h.authError(cred, "payload", 0, err)
	}
	s.version = version

	// Step 3: ask for JSON page objects from now on
	s.header.Set("X-Inertia", "true")
	s.header.Set("X-Inertia-Version", version)

	// Step 4: login with the anti-forgery token echoed back from the cookie
	token, err := xsrfToken(jar, landingURL)
	if err != nil {
		return nil, h.authError(cred, "xsrf", 0, err)
	}

	form := url.Values{
		"access_code": {cred.AccessCode},
		"target_page": {"1"},
	}
	extra := http.Header{}
	extra.Set("Content-Type", "application/x-www-form-urlencoded")
	extra.Set("X-XSRF-TOKEN", token)

	resp, err = s.do(ctx, http.MethodPost, s.URL("login"), strings.NewReader(form.Encode()), extra)
	if err != nil {
		return nil, h.authError(cred, "login", 0, err)
	}
	listing, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, h.authError(cred, "login", 0, fmt.Errorf("failed to read login response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, h.authError(cred, "login", resp.StatusCode, nil)
	}

	// Step 5
	s.listing = listing
	s.generation = h.generation.Add(1)

	h.logger.Info("Session established", "catalog", cred.CatalogID, "generation", s.generation, "version", version)
	return s, nil
}

func (h *Handshaker) authError(cred models.Credential, stage string, status int, err error) error {
	h.logger.Warn("Handshake failed", "catalog", cred.CatalogID, "stage", stage, "status", status, "error", err)
	return &models.AuthError{
		CatalogID: cred.CatalogID,
		Stage:     stage,
		Status:    status,
		Err:       err,
	}
}

// extractVersion finds the first data-page attribute and reads its version field
func extractVersion(page []byte) (string, error) {
	payload, err := findPagePayload(page)
	if err != nil {
		return "", err
	}

	var obj struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return "", fmt.Errorf("failed to parse %s payload: %w", pagePayloadAttr, err)
	}

	raw := bytes.TrimSpace(obj.Version)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%s payload has no version", pagePayloadAttr)
	}

	var version string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &version); err != nil {
			return "", fmt.Errorf("failed to parse version: %w", err)
		}
	} else {
		// Some deployments publish a numeric asset version
		version = string(raw)
	}
	if version == "" {
		return "", fmt.Errorf("%s payload has an empty version", pagePayloadAttr)
	}
	return version, nil
}

// findPagePayload returns the entity-decoded value of the first data-page attribute
func findPagePayload(page []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", errNoPayload
			}
			return "", fmt.Errorf("failed to parse landing page: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == pagePayloadAttr {
					return string(val), nil
				}
			}
		}
	}
}

func xsrfToken(jar http.CookieJar, landingURL string) (string, error) {
	u, err := url.Parse(landingURL)
	if err != nil {
		return "", err
	}
	for _, c := range jar.Cookies(u) {
		if c.Name != xsrfCookieName {
			continue
		}
		token, err := url.PathUnescape(c.Value)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s cookie: %w", xsrfCookieName, err)
		}
		return token, nil
	}
	return "", fmt.Errorf("no %s cookie after landing page", xsrfCookieName)
}
