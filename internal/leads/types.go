package leads

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRelayed Status = "relayed"
	StatusFailed  Status = "failed"
	StatusSpam    Status = "spam"
)

const maxMessageLen = 5000

var (
	ErrNotFound    = errors.New("lead not found")
	ErrRelayFailed = errors.New("lead relay failed")
)

// Submission is the raw contact form payload.
type Submission struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	Audience string `json:"audience,omitempty"`
	Honeypot string `json:"botcheck,omitempty"`
	Source   string `json:"source,omitempty"`
}

type Lead struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	Message       string    `json:"message" db:"message"`
	Audience      string    `json:"audience" db:"audience"`
	Source        string    `json:"source" db:"source"`
	Status        Status    `json:"status" db:"status"`
	Segment       string    `json:"segment,omitempty" db:"segment"`
	Priority      string    `json:"priority,omitempty" db:"priority"`
	RelayAttempts int       `json:"relay_attempts" db:"relay_attempts"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time `json:"created_at" db:"-"`
	UpdatedAt     time.Time `json:"updated_at" db:"-"`

	honeypot string
}

// NewLead trims a submission into a pending lead with a fresh ID.
func NewLead(sub Submission) *Lead {
	now := time.Now().UTC()
	source := strings.TrimSpace(sub.Source)
	if source == "" {
		source = "contact"
	}
	return &Lead{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(sub.Name),
		Email:     strings.TrimSpace(sub.Email),
		Phone:     strings.TrimSpace(sub.Phone),
		Message:   strings.TrimSpace(sub.Message),
		Audience:  strings.ToLower(strings.TrimSpace(sub.Audience)),
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		honeypot:  strings.TrimSpace(sub.Honeypot),
	}
}

// IsSpam reports whether the hidden honeypot field was filled in.
func (l *Lead) IsSpam() bool {
	return l.honeypot != ""
}

// ValidationError lists every field problem in a submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range []string{"name", "email", "phone", "message"} {
		if msg, ok := e.Fields[k]; ok {
			parts = append(parts, k+": "+msg)
		}
	}
	return "invalid lead: " + strings.Join(parts, "; ")
}

func (l *Lead) Validate() error {
	fields := map[string]string{}
	if l.Name == "" {
		fields["name"] = "is required"
	}
	if l.Email == "" {
		fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(l.Email); err != nil || addr.Address != l.Email {
		fields["email"] = "is not a valid address"
	}
	if l.Phone == "" {
		fields["phone"] = "is required"
	} else if n := countDigits(l.Phone); n < 7 || n > 15 || !phoneChars(l.Phone) {
		fields["phone"] = "must contain 7 to 15 digits"
	}
	if utf8.RuneCountInString(l.Message) > maxMessageLen {
		fields["message"] = fmt.Sprintf("must be at most %d characters", maxMessageLen)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func phoneChars(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ', r == '-', r == '+', r == '(', r == ')', r == '.':
		default:
			return false
		}
	}
	return true
}
