package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/shelfripper/internal/models"
)

var selectionSeparator = regexp.MustCompile(`[,\s]+`)

// ParseSelection turns user input like "1, 3 4" into 1-based ordinals.
// Blank input selects every book. Duplicates keep their first position.
func ParseSelection(input string, total int) ([]int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	seen := make(map[int]bool)
	var ordinals []int
	for _, field := range selectionSeparator.Split(input, -1) {
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid book number %q", field)
		}
		if n < 1 || n > total {
			return nil, fmt.Errorf("book number %d out of range 1-%d", n, total)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		ordinals = append(ordinals, n)
	}
	return ordinals, nil
}

// Select picks entries by 1-based ordinal, in the order given
func Select(entries []models.CatalogEntry, ordinals []int) ([]models.CatalogEntry, error) {
	selected := make([]models.CatalogEntry, 0, len(ordinals))
	for _, n := range ordinals {
		if n < 1 || n > len(entries) {
			return nil, fmt.Errorf("book number %d out of range 1-%d", n, len(entries))
		}
		selected = append(selected, entries[n-1])
	}
	return selected, nil
}
