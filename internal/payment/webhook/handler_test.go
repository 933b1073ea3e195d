package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/payment"
)

// MockProcessor implements Processor for testing
type MockProcessor struct {
	provider invoice.Provider
	event    *payment.NormalizedEvent
	err      error
}

func (m *MockProcessor) Provider() invoice.Provider { return m.provider }

func (m *MockProcessor) VerifyAndParse(ctx context.Context, payload []byte, headers http.Header) (*payment.NormalizedEvent, error) {
	return m.event, m.err
}

// MockEventHandler implements EventHandler for testing
type MockEventHandler struct {
	HandleFunc func(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error)
	calls      int
}

func (m *MockEventHandler) Handle(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error) {
	m.calls++
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, ev)
	}
	return &payment.Outcome{InvoiceID: uuid.New(), Status: invoice.InvoicePaid, Applied: true}, nil
}

var sampleEvent = &payment.NormalizedEvent{
	Provider:          invoice.ProviderStripe,
	ExternalEventID:   "evt_1",
	ProviderReference: "cs_1",
	Outcome:           invoice.OutcomeSucceeded,
}

func TestHandleWebhook(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		method     string
		body       string
		processor  *MockProcessor
		handleErr  error
		duplicate  bool
		wantStatus int
		wantCalls  int
		wantBody   string
	}{
		{
			name:       "processed",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantBody:   `"status":"processed"`,
		},
		{
			name:       "duplicate is acknowledged",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			duplicate:  true,
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantBody:   `"duplicate":true`,
		},
		{
			name:       "ignored event type",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ignored"`,
		},
		{
			name:       "unknown provider",
			path:       "/api/webhook/square",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "provider not enabled",
			path:       "/api/webhook/paypal",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "bad signature",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, err: fmt.Errorf("%w: nope", domainErr.ErrInvalidSignature)},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "verification unavailable",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, err: fmt.Errorf("%w: 503", domainErr.ErrProviderUnavailable)},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "malformed payload",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, err: fmt.Errorf("unexpected end of JSON input")},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown invoice is acknowledged",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			handleErr:  fmt.Errorf("ref cs_1: %w", domainErr.ErrUnknownInvoice),
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantBody:   `"status":"unknown_invoice"`,
		},
		{
			name:       "store unavailable asks for retry",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			handleErr:  fmt.Errorf("%w: pool exhausted", domainErr.ErrStoreUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
		},
		{
			name:       "unexpected failure",
			path:       "/api/webhook/stripe",
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			handleErr:  fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
		{
			name:       "wrong method",
			path:       "/api/webhook/stripe",
			method:     http.MethodGet,
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "oversized body",
			path:       "/api/webhook/stripe",
			body:       strings.Repeat("x", MaxBodyBytes+1),
			processor:  &MockProcessor{provider: invoice.ProviderStripe, event: sampleEvent},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &MockEventHandler{}
			if tt.handleErr != nil {
				events.HandleFunc = func(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error) {
					return nil, tt.handleErr
				}
			} else if tt.duplicate {
				events.HandleFunc = func(ctx context.Context, ev payment.NormalizedEvent) (*payment.Outcome, error) {
					return &payment.Outcome{InvoiceID: uuid.New(), Status: invoice.InvoicePaid, Duplicate: true}, nil
				}
			}
			router := NewRouter(NewHandler(events, nil, tt.processor))

			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			body := tt.body
			if body == "" {
				body = `{"id":"evt_1"}`
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, events.calls)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	router := NewRouter(NewHandler(&MockEventHandler{}, nil))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
