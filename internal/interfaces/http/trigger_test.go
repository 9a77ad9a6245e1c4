package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledgersync/internal/domain/connection"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/auth"
)

func newTestRouter(t *testing.T, conns *MockConnections, submitter *MockSubmitter) (http.Handler, string) {
	t.Helper()
	tokens, err := auth.NewServiceTokens("trigger-secret")
	if err != nil {
		t.Fatalf("NewServiceTokens() failed: %v", err)
	}
	token, err := tokens.Issue("ledger-api", time.Hour)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	runner := &MockRunner{}
	router := NewRouter(RouterConfig{
		Webhooks: NewWebhookHandler(&MockTargets{}, submitter, runner, nil),
		Trigger:  NewTriggerHandler(conns, submitter, runner, nil),
		Tokens:   tokens,
	})
	return router, token
}

func TestHandleSync(t *testing.T) {
	found := &MockConnections{GetByIDFunc: func(ctx context.Context, id string) (*connection.Connection, error) {
		return &connection.Connection{ID: id}, nil
	}}

	tests := []struct {
		name           string
		conns          *MockConnections
		submitErr      func(job scheduler.Job) error
		withToken      bool
		expectedStatus int
		expectedJobs   int
	}{
		{
			name:           "Scheduled",
			conns:          found,
			withToken:      true,
			expectedStatus: http.StatusAccepted,
			expectedJobs:   1,
		},
		{
			name:           "Missing token",
			conns:          found,
			withToken:      false,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unknown connection",
			conns:          &MockConnections{},
			withToken:      true,
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Connection scheduled for deletion",
			conns: &MockConnections{GetByIDFunc: func(ctx context.Context, id string) (*connection.Connection, error) {
				return &connection.Connection{ID: id, ScheduledForDeletion: true}, nil
			}},
			withToken:      true,
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Lookup fails",
			conns: &MockConnections{GetByIDFunc: func(ctx context.Context, id string) (*connection.Connection, error) {
				return nil, errors.New("db down")
			}},
			withToken:      true,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "Queue full",
			conns:          found,
			submitErr:      func(scheduler.Job) error { return scheduler.ErrQueueFull },
			withToken:      true,
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &MockSubmitter{SubmitFunc: tt.submitErr}
			router, token := newTestRouter(t, tt.conns, submitter)

			req := httptest.NewRequest(http.MethodPost, "/connections/conn-1/sync", nil)
			if tt.withToken {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if len(submitter.Jobs) != tt.expectedJobs {
				t.Errorf("submitted %d jobs, want %d", len(submitter.Jobs), tt.expectedJobs)
			}
			if tt.expectedStatus == http.StatusAccepted {
				var resp triggerResponse
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if !resp.Scheduled {
					t.Error("expected scheduled=true")
				}
				if submitter.Jobs[0].Key() != "conn-1" {
					t.Errorf("job key = %q, want conn-1", submitter.Jobs[0].Key())
				}
			}
		})
	}
}

func TestRouter_TriggerUnmountedWithoutTokens(t *testing.T) {
	router := NewRouter(RouterConfig{
		Webhooks: NewWebhookHandler(&MockTargets{}, &MockSubmitter{}, &MockRunner{}, nil),
		Trigger:  NewTriggerHandler(&MockConnections{}, &MockSubmitter{}, &MockRunner{}, nil),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/connections/conn-1/sync", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, &MockConnections{}, &MockSubmitter{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Body.String(); got != "{\"status\":\"ok\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestRouter_WebhookMethod(t *testing.T) {
	router, _ := newTestRouter(t, &MockConnections{}, &MockSubmitter{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/yodlee", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}
