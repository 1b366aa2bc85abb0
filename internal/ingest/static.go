package ingest

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/replydesk/internal/knowledge"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Images map[string]string  `yaml:"images"`
	Pages  map[string]Listing `yaml:"pages"`
}

// StaticLookup serves listings and images known ahead of time.
type StaticLookup struct {
	images map[string]string
	pages  map[string]Listing
}

// NewStaticLookup parses the embedded catalog.
func NewStaticLookup() (*StaticLookup, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) (*StaticLookup, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if f.Images == nil {
		f.Images = map[string]string{}
	}
	if f.Pages == nil {
		f.Pages = map[string]Listing{}
	}
	return &StaticLookup{images: f.Images, pages: f.Pages}, nil
}

// Lookup returns the known page for asin with its known image attached.
func (s *StaticLookup) Lookup(_ context.Context, asin string, _ knowledge.Marketplace) (Listing, error) {
	page, ok := s.pages[asin]
	if !ok {
		return Listing{}, ErrUnknownListing
	}
	page.Features = append([]string(nil), page.Features...)
	page.ExpertKnowledge = append([]knowledge.QAPair(nil), page.ExpertKnowledge...)
	page.Image = s.images[asin]
	return page, nil
}

// KnownImage returns the image mapped to asin. The boolean distinguishes a
// deliberately empty mapping from no mapping at all.
func (s *StaticLookup) KnownImage(asin string) (string, bool) {
	img, ok := s.images[asin]
	return img, ok
}
