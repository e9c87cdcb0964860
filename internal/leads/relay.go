package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/joelkehle/solarsite/internal/leads")

// Relayer forwards a lead to the external form-relay service.
type Relayer interface {
	Relay(ctx context.Context, lead *Lead) error
}

// RelayError carries the relay's response. Transient errors are worth retrying.
type RelayError struct {
	Status    int
	Message   string
	Transient bool
}

func (e *RelayError) Error() string {
	if e.Status == 0 {
		return "relay: " + e.Message
	}
	return fmt.Sprintf("relay status=%d: %s", e.Status, e.Message)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Transient
	}
	return err != nil
}

type relayResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FormRelay posts leads as multipart form data to a third-party form API
// that answers with {"success": bool, "message": string}.
type FormRelay struct {
	endpoint    string
	accessKey   string
	http        *http.Client
	maxTries    uint
	initialWait time.Duration
}

type RelayOption func(*FormRelay)

func WithHTTPClient(c *http.Client) RelayOption {
	return func(r *FormRelay) { r.http = c }
}

// WithRetry sets how many attempts one Relay call makes and the first backoff delay.
func WithRetry(maxTries uint, initialWait time.Duration) RelayOption {
	return func(r *FormRelay) {
		r.maxTries = maxTries
		r.initialWait = initialWait
	}
}

func NewFormRelay(endpoint, accessKey string, opts ...RelayOption) *FormRelay {
	r := &FormRelay{
		endpoint:    strings.TrimSpace(endpoint),
		accessKey:   accessKey,
		http:        &http.Client{Timeout: 15 * time.Second},
		maxTries:    3,
		initialWait: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxTries == 0 {
		r.maxTries = 1
	}
	return r
}

func (r *FormRelay) Relay(ctx context.Context, lead *Lead) error {
	ctx, span := tracer.Start(ctx, "leads.relay")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	if r.endpoint == "" {
		err := &RelayError{Message: "relay endpoint not configured"}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	body, contentType, err := encodeLead(lead, r.accessKey)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initialWait
	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := r.post(ctx, body, contentType)
		if err != nil && !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(r.maxTries))
	span.SetAttributes(attribute.Int("relay.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *FormRelay) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return &RelayError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return &RelayError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var out relayResponse
	decodeErr := json.Unmarshal(blob, &out)
	if resp.StatusCode >= 400 {
		msg := out.Message
		if msg == "" {
			msg = strings.TrimSpace(string(blob))
		}
		return &RelayError{
			Status:    resp.StatusCode,
			Message:   msg,
			Transient: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if decodeErr != nil {
		return &RelayError{Status: resp.StatusCode, Message: "invalid relay response: " + decodeErr.Error(), Transient: true}
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "relay reported failure"
		}
		return &RelayError{Status: resp.StatusCode, Message: msg}
	}
	return nil
}

func encodeLead(lead *Lead, accessKey string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"name", lead.Name},
		{"email", lead.Email},
		{"phone", lead.Phone},
		{"message", lead.Message},
		{"subject", "New enquiry from " + lead.Name},
		{"audience", lead.Audience},
		{"source", lead.Source},
		{"botcheck", lead.honeypot},
	}
	if accessKey != "" {
		fields = append(fields, [2]string{"access_key", accessKey})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
