package models

import (
	"strings"
)

// Credential identifies one bookshelf and the shared code that unlocks it
type Credential struct {
	CatalogID  string
	AccessCode string
}

// NewCredential normalises the catalog identifier the way the bookshelf URLs expect it
func NewCredential(catalogID, accessCode string) Credential {
	return Credential{
		CatalogID:  strings.ToLower(strings.TrimSpace(catalogID)),
		AccessCode: strings.TrimSpace(accessCode),
	}
}

// String never includes the access code so credentials are safe to log
func (c Credential) String() string {
	return c.CatalogID
}

// CatalogEntry represents one book listed on a bookshelf
type CatalogEntry struct {
	Name    string `json:"name" yaml:"name"`
	Slug    string `json:"slug" yaml:"slug"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"` // 1-based position in the listing
}

// BookMetadata is the per-book detail fetched before downloading pages
type BookMetadata struct {
	Name      string `json:"name" yaml:"name"`
	Slug      string `json:"slug" yaml:"slug"`
	PageCount int    `json:"page_count" yaml:"page_count"`
}

// PageImage holds the raw image bytes of a single 1-indexed page
type PageImage struct {
	Number int
	Data   []byte
}

// Document is the assembled output for one book
type Document struct {
	Data  []byte
	Pages int
}
