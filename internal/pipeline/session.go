package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/replydesk/internal/composer"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
)

// Session is a snapshot of one agent's working state.
type Session struct {
	ID          string             `json:"id"`
	Role        knowledge.Role     `json:"role"`
	Ticket      knowledge.Ticket   `json:"ticket"`
	ProductID   string             `json:"product_id"`
	Tone        intent.Strategy    `json:"tone"`
	Analysis    *intent.Analysis   `json:"analysis,omitempty"`
	Results     []retrieval.Result `json:"results,omitempty"`
	Draft       *composer.Draft    `json:"draft,omitempty"`
	Generating  bool               `json:"generating"`
	Translating bool               `json:"translating"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// session is the live state behind a Session. The busy flags are atomics so
// a second Generate or Resync can be rejected without waiting on mu.
type session struct {
	mu sync.Mutex

	id        string
	role      knowledge.Role
	ticket    knowledge.Ticket
	productID string
	tone      intent.Strategy
	analysis  *intent.Analysis
	results   []retrieval.Result
	draft     *composer.Draft
	market    knowledge.Marketplace
	updatedAt time.Time

	// epoch changes whenever the active ticket is replaced so a generation
	// that finishes afterwards can tell its output is stale.
	epoch uint64
	// revision changes whenever the draft is replaced or its working body
	// edited, so a translation of an older body is not applied.
	revision uint64

	generating  atomic.Bool
	translating atomic.Bool
	cancel      context.CancelFunc
}

// snapshot copies the session. Callers hold s.mu.
func (s *session) snapshot() Session {
	out := Session{
		ID:          s.id,
		Role:        s.role,
		Ticket:      s.ticket,
		ProductID:   s.productID,
		Tone:        s.tone,
		Generating:  s.generating.Load(),
		Translating: s.translating.Load(),
		UpdatedAt:   s.updatedAt,
	}
	if s.analysis != nil {
		a := *s.analysis
		a.KeyIssues = append([]string(nil), a.KeyIssues...)
		out.Analysis = &a
	}
	if s.results != nil {
		out.Results = append([]retrieval.Result(nil), s.results...)
	}
	if s.draft != nil {
		d := *s.draft
		out.Draft = &d
	}
	return out
}

// resetTicket installs t and discards everything derived from the previous
// ticket. Callers hold s.mu.
func (s *session) resetTicket(t knowledge.Ticket) {
	s.ticket = t
	s.analysis = nil
	s.results = nil
	s.draft = nil
	s.market = ""
	s.epoch++
	s.revision++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// interrupted reports why a generation started at epoch must stop, if it must.
func (s *session) interrupted(ctx context.Context, epoch uint64) error {
	s.mu.Lock()
	changed := s.epoch != epoch
	s.mu.Unlock()
	if changed {
		return ErrTicketChanged
	}
	return ctx.Err()
}
