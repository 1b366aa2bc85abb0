package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collection keys used with the Persister.
const (
	ProductsKey = "products_v2"
	TicketsKey  = "tickets_v2"
)

// Persister stores whole collections as opaque JSON documents.
type Persister interface {
	LoadCollection(key string) (data []byte, ok bool, err error)
	SaveCollection(key string, data []byte) error
}

// Store owns products and tickets. Every mutation rewrites the affected
// collection through the Persister before it becomes visible to readers.
type Store struct {
	mu       sync.RWMutex
	products []Product
	tickets  []Ticket
	persist  Persister
	now      func() time.Time
}

// Open loads both collections from p. A missing or unreadable collection is
// replaced by the seed catalog. Passing a nil Persister keeps everything in memory.
func Open(p Persister) (*Store, error) {
	seedProducts, seedTickets, err := Seed()
	if err != nil {
		return nil, err
	}

	s := &Store{persist: p, now: time.Now}

	s.products = seedProducts
	s.tickets = seedTickets
	if p == nil {
		return s, nil
	}

	if err := loadInto(p, ProductsKey, &s.products); err != nil {
		return nil, err
	}
	if err := loadInto(p, TicketsKey, &s.tickets); err != nil {
		return nil, err
	}
	return s, nil
}

// loadInto overwrites dst with the stored collection when one exists and parses.
func loadInto[T any](p Persister, key string, dst *[]T) error {
	data, ok, err := p.LoadCollection(key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	var loaded []T
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.Warn("stored collection unreadable, using seed data", "key", key, "error", err)
		return nil
	}
	*dst = loaded
	return nil
}

func (s *Store) save(key string, v any) error {
	if s.persist == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.persist.SaveCollection(key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// --- Products ---

// Products returns a snapshot of all products, newest first.
func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, len(s.products))
	for i, p := range s.products {
		out[i] = cloneProduct(p)
	}
	return out
}

func (s *Store) Product(id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.productIndex(id)
	if i < 0 {
		return Product{}, ErrNotFound
	}
	return cloneProduct(s.products[i]), nil
}

// SearchProducts matches term case-insensitively against name, ASIN and model number.
// An empty term returns every product.
func (s *Store) SearchProducts(term string) []Product {
	term = strings.ToLower(strings.TrimSpace(term))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Product
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.ASIN), term) ||
			(p.ModelNumber != "" && strings.Contains(strings.ToLower(p.ModelNumber), term)) {
			out = append(out, cloneProduct(p))
		}
	}
	return out
}

// AddProduct stores p at the head of the catalog and returns it with its id set.
func (s *Store) AddProduct(p Product) (Product, error) {
	if strings.TrimSpace(p.ASIN) == "" || strings.TrimSpace(p.Name) == "" {
		return Product{}, fmt.Errorf("asin and name are required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p = cloneProduct(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.productIndex(p.ID) >= 0 {
		return Product{}, fmt.Errorf("product %s: %w", p.ID, ErrExists)
	}

	next := make([]Product, 0, len(s.products)+1)
	next = append(next, p)
	next = append(next, s.products...)
	if err := s.save(ProductsKey, next); err != nil {
		return Product{}, err
	}
	s.products = next
	return cloneProduct(p), nil
}

// UpdateProduct replaces the product with the same id.
func (s *Store) UpdateProduct(p Product) (Product, error) {
	p = cloneProduct(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(p.ID)
	if i < 0 {
		return Product{}, ErrNotFound
	}

	next := append([]Product(nil), s.products...)
	next[i] = p
	if err := s.save(ProductsKey, next); err != nil {
		return Product{}, err
	}
	s.products = next
	return cloneProduct(p), nil
}

// DeleteProduct removes a product and all of its knowledge. Admin only.
func (s *Store) DeleteProduct(role Role, id string) error {
	if !role.CanDelete() {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(id)
	if i < 0 {
		return ErrNotFound
	}

	next := make([]Product, 0, len(s.products)-1)
	next = append(next, s.products[:i]...)
	next = append(next, s.products[i+1:]...)
	if err := s.save(ProductsKey, next); err != nil {
		return err
	}
	s.products = next
	return nil
}

// AddQA appends a curated answer to a product's expert knowledge.
func (s *Store) AddQA(productID string, qa QAPair) (QAPair, error) {
	if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
		return QAPair{}, fmt.Errorf("question and answer are required")
	}
	if qa.ID == "" {
		qa.ID = uuid.New().String()
	}
	if qa.Author == "" {
		qa.Author = AuthorCustomerService
	}
	qa.Keywords = CleanKeywords(qa.Keywords)
	qa.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(productID)
	if i < 0 {
		return QAPair{}, ErrNotFound
	}

	next := append([]Product(nil), s.products...)
	p := cloneProduct(next[i])
	p.ExpertKnowledge = append(p.ExpertKnowledge, qa)
	next[i] = p
	if err := s.save(ProductsKey, next); err != nil {
		return QAPair{}, err
	}
	s.products = next
	return qa, nil
}

// DeleteQA removes one expert answer from a product. Admin only.
func (s *Store) DeleteQA(role Role, productID, qaID string) error {
	if !role.CanDelete() {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.productIndex(productID)
	if i < 0 {
		return ErrNotFound
	}

	p := cloneProduct(s.products[i])
	kept := p.ExpertKnowledge[:0]
	found := false
	for _, qa := range p.ExpertKnowledge {
		if qa.ID == qaID {
			found = true
			continue
		}
		kept = append(kept, qa)
	}
	if !found {
		return ErrNotFound
	}
	p.ExpertKnowledge = kept

	next := append([]Product(nil), s.products...)
	next[i] = p
	if err := s.save(ProductsKey, next); err != nil {
		return err
	}
	s.products = next
	return nil
}

func (s *Store) productIndex(id string) int {
	for i, p := range s.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// CleanKeywords trims keywords and drops empty ones. A single comma-separated
// entry is split, matching how agents type keywords into one field.
func CleanKeywords(in []string) []string {
	var out []string
	for _, raw := range in {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

// --- Tickets ---

// Tickets returns a snapshot of the inbox in stored order.
func (s *Store) Tickets() []Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Ticket(nil), s.tickets...)
}

func (s *Store) Ticket(id string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.ticketIndex(id)
	if i < 0 {
		return Ticket{}, ErrNotFound
	}
	return s.tickets[i], nil
}

// AddTicket persists a customer message. The new_entry sentinel id is never stored.
func (s *Store) AddTicket(t Ticket) (Ticket, error) {
	if strings.TrimSpace(t.EmailBody) == "" {
		return Ticket{}, fmt.Errorf("email body is required")
	}
	if t.ID == "" || t.ID == NewEntryID {
		t.ID = uuid.New().String()
	}
	if t.CustomerName == "" {
		t.CustomerName = "New Customer"
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if !t.Status.Valid() {
		return Ticket{}, fmt.Errorf("invalid status %q", t.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticketIndex(t.ID) >= 0 {
		return Ticket{}, fmt.Errorf("ticket %s: %w", t.ID, ErrExists)
	}

	next := make([]Ticket, 0, len(s.tickets)+1)
	next = append(next, t)
	next = append(next, s.tickets...)
	if err := s.save(TicketsKey, next); err != nil {
		return Ticket{}, err
	}
	s.tickets = next
	return t, nil
}

// SetTicketStatus records a status change and, when known, the detected language.
func (s *Store) SetTicketStatus(id string, status Status, detectedLanguage string) (Ticket, error) {
	if !status.Valid() {
		return Ticket{}, fmt.Errorf("invalid status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ticketIndex(id)
	if i < 0 {
		return Ticket{}, ErrNotFound
	}

	next := append([]Ticket(nil), s.tickets...)
	next[i].Status = status
	if detectedLanguage != "" {
		next[i].DetectedLanguage = detectedLanguage
	}
	if err := s.save(TicketsKey, next); err != nil {
		return Ticket{}, err
	}
	s.tickets = next
	return next[i], nil
}

// DeleteTicket removes a ticket from the inbox. Admin only.
func (s *Store) DeleteTicket(role Role, id string) error {
	if !role.CanDelete() {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ticketIndex(id)
	if i < 0 {
		return ErrNotFound
	}

	next := make([]Ticket, 0, len(s.tickets)-1)
	next = append(next, s.tickets[:i]...)
	next = append(next, s.tickets[i+1:]...)
	if err := s.save(TicketsKey, next); err != nil {
		return err
	}
	s.tickets = next
	return nil
}

func (s *Store) ticketIndex(id string) int {
	for i, t := range s.tickets {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// --- Imports ---

// ImportedListing carries the listing fields an import produced.
type ImportedListing struct {
	Name            string   `json:"name" yaml:"name"`
	ModelNumber     string   `json:"model_number" yaml:"model_number"`
	Image           string   `json:"main_image" yaml:"main_image"`
	Features        []string `json:"features" yaml:"features"`
	ManualContent   string   `json:"manual_content" yaml:"manual_content"`
	Troubleshooting string   `json:"troubleshooting" yaml:"troubleshooting"`
	Policy          string   `json:"policy" yaml:"policy"`
	ExpertKnowledge []QAPair `json:"expert_knowledge,omitempty" yaml:"expert_knowledge,omitempty"`
}

// NewImportedProduct builds a catalog entry from an imported listing.
func NewImportedProduct(l ImportedListing, asin string, m Marketplace) Product {
	policy := l.Policy
	if strings.TrimSpace(policy) == "" {
		policy = m.DefaultPolicy()
	}
	return Product{
		ASIN:            asin,
		ModelNumber:     l.ModelNumber,
		Name:            l.Name,
		Category:        "Imported",
		Marketplace:     m,
		Image:           l.Image,
		Features:        append([]string(nil), l.Features...),
		ManualContent:   l.ManualContent,
		Troubleshooting: l.Troubleshooting,
		Policy:          policy,
		ExpertKnowledge: append([]QAPair(nil), l.ExpertKnowledge...),
	}
}
