package knowledge

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a product, Q&A pair or ticket does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when a non-admin actor attempts a destructive operation.
	ErrPermissionDenied = errors.New("permission denied: admin role required")
	// ErrExists is returned when adding a product or ticket whose id is taken.
	ErrExists = errors.New("already exists")
)

// NewEntryID identifies a ticket that was typed in by the agent and never persisted.
const NewEntryID = "new_entry"

// Role is the privilege level of the acting agent.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleCS    Role = "cs"
)

// CanDelete reports whether the role may remove knowledge base records.
func (r Role) CanDelete() bool { return r == RoleAdmin }

// Author classifies who contributed an expert answer.
type Author string

const (
	AuthorEngineer        Author = "Engineer"
	AuthorCustomerService Author = "CustomerService"
)

// Status tracks a ticket through drafting. Transitions are recorded, not enforced.
type Status string

const (
	StatusPending Status = "pending"
	StatusDrafted Status = "drafted"
	StatusSent    Status = "sent"
)

// Valid reports whether s is a known ticket status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDrafted, StatusSent:
		return true
	}
	return false
}

// QAPair is a curated question with a gold-standard answer.
type QAPair struct {
	ID        string    `json:"id" yaml:"id"`
	Question  string    `json:"question" yaml:"question"`
	Answer    string    `json:"answer" yaml:"answer"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	Author    Author    `json:"author" yaml:"author"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Product holds the listing data and support knowledge for one catalog item.
type Product struct {
	ID              string      `json:"id" yaml:"id"`
	ASIN            string      `json:"asin" yaml:"asin"`
	ModelNumber     string      `json:"model_number,omitempty" yaml:"model_number"`
	Name            string      `json:"name" yaml:"name"`
	Category        string      `json:"category" yaml:"category"`
	Marketplace     Marketplace `json:"marketplace" yaml:"marketplace"`
	Image           string      `json:"image" yaml:"image"`
	Features        []string    `json:"features" yaml:"features"`
	ManualContent   string      `json:"manual_content" yaml:"manual_content"`
	Troubleshooting string      `json:"troubleshooting" yaml:"troubleshooting"`
	Policy          string      `json:"policy" yaml:"policy"`
	ExpertKnowledge []QAPair    `json:"expert_knowledge,omitempty" yaml:"expert_knowledge"`
}

// Ticket is a customer message awaiting a reply.
type Ticket struct {
	ID               string    `json:"id" yaml:"id"`
	CustomerName     string    `json:"customer_name" yaml:"customer_name"`
	EmailBody        string    `json:"email_body" yaml:"email_body"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	Status           Status    `json:"status" yaml:"status"`
	DetectedLanguage string    `json:"detected_language,omitempty" yaml:"detected_language"`
}

// BlankTicket returns the unsaved ticket used for manual entry.
func BlankTicket(now time.Time) Ticket {
	return Ticket{
		ID:           NewEntryID,
		CustomerName: "New Customer",
		Timestamp:    now.UTC(),
		Status:       StatusPending,
	}
}

func cloneProduct(p Product) Product {
	out := p
	out.Features = append([]string(nil), p.Features...)
	if p.ExpertKnowledge != nil {
		out.ExpertKnowledge = make([]QAPair, len(p.ExpertKnowledge))
		for i, qa := range p.ExpertKnowledge {
			qa.Keywords = append([]string(nil), qa.Keywords...)
			out.ExpertKnowledge[i] = qa
		}
	}
	return out
}
