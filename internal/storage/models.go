package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Reply is a sent draft archived for the reply history.
type Reply struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	ProductID    string    `json:"product_id"`
	CustomerName string    `json:"customer_name"`
	Marketplace  string    `json:"marketplace"`
	Tone         string    `json:"tone"`
	Subject      string    `json:"subject"`
	WorkingBody  string    `json:"working_body"`
	TargetBody   string    `json:"target_body"`
	SentBy       string    `json:"sent_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload_json"`
	ResultJSON  string    `json:"result_json,omitempty"`
	Status      string    `json:"status"` // "pending", "running", "completed", "failed"
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}
