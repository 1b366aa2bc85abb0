// Package pipeline runs the reply workflow for agent sessions: classify the
// customer email, retrieve knowledge snippets, draft a bilingual reply and
// keep its translation in sync with the agent's edits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/replydesk/internal/composer"
	"github.com/kalambet/replydesk/internal/intent"
	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/retrieval"
	"github.com/kalambet/replydesk/internal/storage"
	"github.com/kalambet/replydesk/internal/translate"
)

var (
	// ErrEmptyQuery is returned by Generate when the email body is blank.
	ErrEmptyQuery = errors.New("email body is empty")
	// ErrBusy is returned when the same operation is already running for the session.
	ErrBusy = errors.New("operation already in progress")
	// ErrNoDraft is returned by operations that need a generated draft.
	ErrNoDraft = errors.New("no draft generated")
	// ErrNoSession is returned for unknown or expired session ids.
	ErrNoSession = errors.New("session not found")
	// ErrTicketChanged is returned by Generate when the active ticket was
	// replaced while the draft was being produced. The result is discarded.
	ErrTicketChanged = errors.New("active ticket changed during generation")
	// ErrDraftChanged is returned by Resync when the draft was regenerated or
	// edited while the translation was running. The translation is discarded.
	ErrDraftChanged = errors.New("draft changed during translation")
)

// Catalog is the knowledge store as seen by the pipeline.
type Catalog interface {
	Products() []knowledge.Product
	Product(id string) (knowledge.Product, error)
	Ticket(id string) (knowledge.Ticket, error)
	SetTicketStatus(id string, status knowledge.Status, detectedLanguage string) (knowledge.Ticket, error)
}

type Classifier interface {
	Analyze(ctx context.Context, emailBody string) intent.Analysis
}

type Drafter interface {
	Compose(ctx context.Context, req composer.Request) composer.Draft
}

type Translator interface {
	Resync(ctx context.Context, workingBody string, m knowledge.Marketplace, tone string) string
}

// ReplyArchive stores sent replies.
type ReplyArchive interface {
	SaveReply(r storage.Reply) error
}

// Recorder receives pipeline metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveStage(stage string, started time.Time)
	CountRetrieval(source string, n int)
	SessionOpened()
	SessionClosed()
}

// Options tune a Desk. Zero values select the defaults.
type Options struct {
	DefaultTone intent.Strategy
	IdleTTL     time.Duration
}

const defaultIdleTTL = 2 * time.Hour

// Desk owns the agent sessions and runs the reply pipeline for them.
type Desk struct {
	catalog    Catalog
	classifier Classifier
	drafter    Drafter
	translator Translator
	archive    ReplyArchive
	metrics    Recorder

	defaultTone intent.Strategy
	idleTTL     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewDesk wires a Desk. archive and metrics may be nil.
func NewDesk(
	catalog Catalog,
	classifier Classifier,
	drafter Drafter,
	translator Translator,
	archive ReplyArchive,
	metrics Recorder,
	opts Options,
) *Desk {
	tone, ok := intent.ParseStrategy(string(opts.DefaultTone))
	if !ok {
		tone = intent.StrategySolution
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	return &Desk{
		catalog:     catalog,
		classifier:  classifier,
		drafter:     drafter,
		translator:  translator,
		archive:     archive,
		metrics:     metrics,
		defaultTone: tone,
		idleTTL:     opts.IdleTTL,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

// Open starts a session on a blank ticket with the first catalog product selected.
func (d *Desk) Open(role knowledge.Role) Session {
	now := d.now().UTC()
	s := &session{
		id:        uuid.New().String(),
		role:      role,
		ticket:    knowledge.BlankTicket(now),
		tone:      d.defaultTone,
		updatedAt: now,
	}
	if products := d.catalog.Products(); len(products) > 0 {
		s.productID = products[0].ID
	}

	d.mu.Lock()
	d.sessions[s.id] = s
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.SessionOpened()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (d *Desk) lookup(id string) (*session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// update runs fn under the session lock and returns the resulting snapshot.
func (d *Desk) update(id string, fn func(s *session) error) (Session, error) {
	s, err := d.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s); err != nil {
		return Session{}, err
	}
	s.updatedAt = d.now().UTC()
	return s.snapshot(), nil
}

func (d *Desk) Get(id string) (Session, error) {
	s, err := d.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Close ends a session and cancels its in-flight generation, if any.
func (d *Desk) Close(id string) error {
	d.mu.Lock()
	s, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	d.closed(s)
	return nil
}

func (d *Desk) closed(s *session) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if d.metrics != nil {
		d.metrics.SessionClosed()
	}
}

// Sweep closes sessions idle for longer than the configured TTL and
// returns how many were closed. Busy sessions are never swept.
func (d *Desk) Sweep() int {
	cutoff := d.now().UTC().Add(-d.idleTTL)

	var expired []*session
	d.mu.Lock()
	for id, s := range d.sessions {
		s.mu.Lock()
		idle := s.updatedAt.Before(cutoff) && !s.generating.Load() && !s.translating.Load()
		s.mu.Unlock()
		if idle {
			delete(d.sessions, id)
			expired = append(expired, s)
		}
	}
	d.mu.Unlock()

	for _, s := range expired {
		d.closed(s)
	}
	if len(expired) > 0 {
		slog.Debug("swept idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (d *Desk) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Sweep()
		}
	}
}

// SelectTicket makes ticketID the active ticket. knowledge.NewEntryID starts
// a blank manual entry. Analysis, snippets and draft are discarded.
func (d *Desk) SelectTicket(id, ticketID string) (Session, error) {
	t := knowledge.BlankTicket(d.now())
	if ticketID != knowledge.NewEntryID {
		var err error
		if t, err = d.catalog.Ticket(ticketID); err != nil {
			return Session{}, fmt.Errorf("selecting ticket %s: %w", ticketID, err)
		}
	}
	return d.update(id, func(s *session) error {
		s.resetTicket(t)
		return nil
	})
}

// SetInput replaces the customer name and email body of the active ticket.
func (d *Desk) SetInput(id, customerName, emailBody string) (Session, error) {
	return d.update(id, func(s *session) error {
		s.ticket.CustomerName = customerName
		s.ticket.EmailBody = emailBody
		return nil
	})
}

// ClearInput returns the session to a blank manual entry.
func (d *Desk) ClearInput(id string) (Session, error) {
	t := knowledge.BlankTicket(d.now())
	return d.update(id, func(s *session) error {
		s.resetTicket(t)
		return nil
	})
}

func (d *Desk) SelectProduct(id, productID string) (Session, error) {
	if _, err := d.catalog.Product(productID); err != nil {
		return Session{}, fmt.Errorf("selecting product %s: %w", productID, err)
	}
	return d.update(id, func(s *session) error {
		s.productID = productID
		return nil
	})
}

func (d *Desk) SetTone(id string, tone intent.Strategy) (Session, error) {
	st, ok := intent.ParseStrategy(string(tone))
	if !ok {
		return Session{}, fmt.Errorf("unknown tone %q", tone)
	}
	return d.update(id, func(s *session) error {
		s.tone = st
		return nil
	})
}

// Generate classifies the active ticket, retrieves knowledge for the selected
// product and drafts a reply. The stages run in order; the draft needs the
// classification. Delegate failures surface as degraded values, not errors.
func (d *Desk) Generate(ctx context.Context, id string) (Session, error) {
	s, err := d.lookup(id)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	ticket := s.ticket
	productID := s.productID
	tone := s.tone
	epoch := s.epoch
	s.mu.Unlock()

	if strings.TrimSpace(ticket.EmailBody) == "" {
		return Session{}, ErrEmptyQuery
	}
	product, err := d.catalog.Product(productID)
	if err != nil {
		return Session{}, fmt.Errorf("loading product %q: %w", productID, err)
	}

	if !s.generating.CompareAndSwap(false, true) {
		return Session{}, ErrBusy
	}
	defer s.generating.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	start := time.Now()

	stage := time.Now()
	analysis := d.classifier.Analyze(ctx, ticket.EmailBody)
	d.observe("classify", stage)
	if err := s.interrupted(ctx, epoch); err != nil {
		return Session{}, err
	}

	stage = time.Now()
	results := retrieval.Retrieve(ticket.EmailBody, product)
	d.observe("retrieve", stage)
	if d.metrics != nil {
		for src, n := range retrieval.Count(results) {
			d.metrics.CountRetrieval(string(src), n)
		}
	}

	stage = time.Now()
	draft := d.drafter.Compose(ctx, composer.Request{
		CustomerName: ticket.CustomerName,
		EmailBody:    ticket.EmailBody,
		Product:      product,
		Context:      results,
		Analysis:     analysis,
		Tone:         tone,
	})
	d.observe("compose", stage)
	if err := s.interrupted(ctx, epoch); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return Session{}, ErrTicketChanged
	}
	s.analysis = &analysis
	s.results = results
	s.draft = &draft
	s.revision++
	s.market = product.Marketplace
	s.updatedAt = d.now().UTC()
	s.mu.Unlock()

	if ticket.ID != knowledge.NewEntryID {
		if t, err := d.catalog.SetTicketStatus(ticket.ID, knowledge.StatusDrafted, analysis.Language); err != nil {
			slog.Warn("failed to mark ticket drafted", "ticket", ticket.ID, "error", err)
		} else {
			s.mu.Lock()
			if s.epoch == epoch {
				s.ticket.Status = t.Status
				s.ticket.DetectedLanguage = t.DetectedLanguage
			}
			s.mu.Unlock()
		}
	}

	slog.Debug("draft generated",
		"session", id,
		"product", product.ID,
		"intent", analysis.Intent,
		"snippets", len(results),
		"degraded", analysis.Degraded || draft.Degraded,
		"mismatch", draft.IsMismatch(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// Generating is still set until the deferred Store runs; report the
	// finished state.
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snapshot()
	out.Generating = false
	return out, nil
}

// Cancel aborts the session's in-flight generation. It reports whether
// there was one.
func (d *Desk) Cancel(id string) (bool, error) {
	s, err := d.lookup(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false, nil
	}
	s.cancel()
	return true, nil
}

// EditDraft replaces the agent-facing body. The customer-facing body only
// changes through Resync.
func (d *Desk) EditDraft(id, workingBody string) (Session, error) {
	return d.update(id, func(s *session) error {
		if s.draft == nil {
			return ErrNoDraft
		}
		s.draft.WorkingBody = workingBody
		s.revision++
		return nil
	})
}

// Resync re-translates the working body into the customer's language. When
// translation fails the target body is kept and the failure sentinel is
// returned as notice.
func (d *Desk) Resync(ctx context.Context, id string) (Session, string, error) {
	s, err := d.lookup(id)
	if err != nil {
		return Session{}, "", err
	}

	s.mu.Lock()
	if s.draft == nil {
		s.mu.Unlock()
		return Session{}, "", ErrNoDraft
	}
	working := s.draft.WorkingBody
	tone := string(s.tone)
	market := s.market
	epoch := s.epoch
	revision := s.revision
	s.mu.Unlock()

	if !s.translating.CompareAndSwap(false, true) {
		return Session{}, "", ErrBusy
	}
	defer s.translating.Store(false)

	stage := time.Now()
	text := d.translator.Resync(ctx, working, market, tone)
	d.observe("translate", stage)

	s.mu.Lock()
	defer s.mu.Unlock()
	notice := ""
	switch {
	case translate.IsSentinel(text):
		notice = text
	case s.draft == nil || s.epoch != epoch:
		return Session{}, "", ErrTicketChanged
	case s.revision != revision:
		return Session{}, "", ErrDraftChanged
	default:
		s.draft.TargetBody = text
		s.updatedAt = d.now().UTC()
	}
	out := s.snapshot()
	out.Translating = false
	return out, notice, nil
}

// CopyText renders the draft as it is pasted into the marketplace message form.
func (d *Desk) CopyText(id string) (string, error) {
	snap, err := d.Get(id)
	if err != nil {
		return "", err
	}
	if snap.Draft == nil {
		return "", ErrNoDraft
	}
	return fmt.Sprintf("Subject: %s\n\n%s", snap.Draft.Subject, snap.Draft.TargetBody), nil
}

// MarkSent records that the draft went out: a persisted ticket moves to
// sent and the reply is archived.
func (d *Desk) MarkSent(id string) (Session, error) {
	snap, err := d.Get(id)
	if err != nil {
		return Session{}, err
	}
	if snap.Draft == nil {
		return Session{}, ErrNoDraft
	}

	if snap.Ticket.ID != knowledge.NewEntryID {
		if _, err := d.catalog.SetTicketStatus(snap.Ticket.ID, knowledge.StatusSent, ""); err != nil {
			return Session{}, fmt.Errorf("marking ticket sent: %w", err)
		}
	}

	if d.archive != nil {
		product, _ := d.catalog.Product(snap.ProductID)
		reply := storage.Reply{
			ID:           uuid.New().String(),
			TicketID:     snap.Ticket.ID,
			ProductID:    snap.ProductID,
			CustomerName: snap.Ticket.CustomerName,
			Marketplace:  string(product.Marketplace),
			Tone:         snap.Draft.Tone,
			Subject:      snap.Draft.Subject,
			WorkingBody:  snap.Draft.WorkingBody,
			TargetBody:   snap.Draft.TargetBody,
			SentBy:       string(snap.Role),
			CreatedAt:    d.now().UTC(),
		}
		if err := d.archive.SaveReply(reply); err != nil {
			return Session{}, fmt.Errorf("archiving reply: %w", err)
		}
	}

	return d.update(id, func(s *session) error {
		s.ticket.Status = knowledge.StatusSent
		return nil
	})
}

// Count returns the number of open sessions.
func (d *Desk) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *Desk) observe(stage string, started time.Time) {
	if d.metrics != nil {
		d.metrics.ObserveStage(stage, started)
	}
}
