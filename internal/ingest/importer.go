package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/storage"
)

// JobTypeImport is the job queue type for asynchronous imports.
const JobTypeImport = "catalog_import"

// ProductAdder persists imported products.
type ProductAdder interface {
	AddProduct(p knowledge.Product) (knowledge.Product, error)
}

// JobQueue is the queue side of storage.Store.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
	GetJob(id string) (*storage.Job, error)
}

// Importer turns ASINs into catalog products.
type Importer struct {
	lookup   Lookup
	products ProductAdder
	jobs     JobQueue
}

// NewImporter creates an Importer. jobs may be nil when asynchronous
// imports are not needed.
func NewImporter(lookup Lookup, products ProductAdder, jobs JobQueue) *Importer {
	return &Importer{lookup: lookup, products: products, jobs: jobs}
}

// Preview resolves a listing without adding it to the catalog.
func (i *Importer) Preview(ctx context.Context, asin, marketplace string) (Listing, error) {
	a, m, err := normalize(asin, marketplace)
	if err != nil {
		return Listing{}, err
	}
	return i.lookup.Lookup(ctx, a, m)
}

// Import resolves a listing and adds it to the catalog as an Imported product.
func (i *Importer) Import(ctx context.Context, asin, marketplace string) (knowledge.Product, error) {
	a, m, err := normalize(asin, marketplace)
	if err != nil {
		return knowledge.Product{}, err
	}
	l, err := i.lookup.Lookup(ctx, a, m)
	if err != nil {
		return knowledge.Product{}, err
	}
	p, err := i.products.AddProduct(knowledge.NewImportedProduct(l, a, m))
	if err != nil {
		return knowledge.Product{}, fmt.Errorf("adding imported product: %w", err)
	}
	return p, nil
}

type importPayload struct {
	ASIN        string `json:"asin"`
	Marketplace string `json:"marketplace"`
}

type importResult struct {
	ProductID string `json:"product_id"`
}

// Enqueue queues an import for the Worker and returns the job id.
func (i *Importer) Enqueue(asin, marketplace string) (string, error) {
	if i.jobs == nil {
		return "", fmt.Errorf("import queue not configured")
	}
	a, m, err := normalize(asin, marketplace)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(importPayload{ASIN: a, Marketplace: string(m)})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := i.jobs.EnqueueJob(storage.Job{ID: id, Type: JobTypeImport, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing import: %w", err)
	}
	return id, nil
}

// Job returns the state of a queued import.
func (i *Importer) Job(id string) (*storage.Job, error) {
	if i.jobs == nil {
		return nil, storage.ErrNotFound
	}
	return i.jobs.GetJob(id)
}

func normalize(asin, marketplace string) (string, knowledge.Marketplace, error) {
	a, err := NormalizeASIN(asin)
	if err != nil {
		return "", "", err
	}
	m := knowledge.ParseMarketplace(marketplace)
	if m == "" {
		m = knowledge.MarketUS
	}
	return a, m, nil
}
