// Package ingest imports catalog listings by ASIN. Lookups are tried in
// order: the embedded catalog, the Redis cache of earlier imports, and
// finally a language-model page crawl.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/replydesk/internal/knowledge"
)

// ErrUnknownListing is returned by a Lookup that has no data for an ASIN;
// Chain moves on to the next strategy.
var ErrUnknownListing = errors.New("unknown listing")

// ErrInvalidASIN is returned for empty or malformed ASINs.
var ErrInvalidASIN = errors.New("invalid asin")

// Listing is the partial product an import produces.
type Listing = knowledge.ImportedListing

// Lookup resolves an ASIN on a marketplace to a listing.
type Lookup interface {
	Lookup(ctx context.Context, asin string, m knowledge.Marketplace) (Listing, error)
}

// Chain tries each lookup in order, skipping those that report
// ErrUnknownListing. Any other error stops the chain.
type Chain []Lookup

func (c Chain) Lookup(ctx context.Context, asin string, m knowledge.Marketplace) (Listing, error) {
	for _, l := range c {
		listing, err := l.Lookup(ctx, asin, m)
		if errors.Is(err, ErrUnknownListing) {
			continue
		}
		return listing, err
	}
	return Listing{}, fmt.Errorf("%s: %w", asin, ErrUnknownListing)
}

// NormalizeASIN trims and upper-cases an ASIN and checks it is ten
// alphanumeric characters.
func NormalizeASIN(raw string) (string, error) {
	asin := strings.ToUpper(strings.TrimSpace(raw))
	if len(asin) != 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidASIN, raw)
	}
	for _, r := range asin {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidASIN, raw)
		}
	}
	return asin, nil
}
