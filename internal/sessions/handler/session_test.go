package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "keyring/pkg/errors"
	"keyring/pkg/logger"
	"keyring/pkg/middleware"
	"keyring/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockSessionService struct {
	checkoutFunc       func(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error)
	returnFunc         func(ctx context.Context, req *model.ReturnRequest) (int64, error)
	activeCountFunc    func(ctx context.Context, toolID string) (int64, error)
	mergedToolViewFunc func(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error)
	expireOverdueFunc  func(ctx context.Context, batchLimit int) (int64, error)
}

func (m *mockSessionService) Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if m.checkoutFunc != nil {
		return m.checkoutFunc(ctx, req)
	}
	return &model.CheckoutResponse{}, nil
}

func (m *mockSessionService) Return(ctx context.Context, req *model.ReturnRequest) (int64, error) {
	if m.returnFunc != nil {
		return m.returnFunc(ctx, req)
	}
	return 0, nil
}

func (m *mockSessionService) ActiveCount(ctx context.Context, toolID string) (int64, error) {
	if m.activeCountFunc != nil {
		return m.activeCountFunc(ctx, toolID)
	}
	return 0, nil
}

func (m *mockSessionService) MergedToolView(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error) {
	if m.mergedToolViewFunc != nil {
		return m.mergedToolViewFunc(ctx, caller, limit, offset)
	}
	return []*model.ToolView{}, 0, nil
}

func (m *mockSessionService) ExpireOverdue(ctx context.Context, batchLimit int) (int64, error) {
	if m.expireOverdueFunc != nil {
		return m.expireOverdueFunc(ctx, batchLimit)
	}
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
}

func serveWithIdentity(h *SessionHandler, req *http.Request) *httptest.ResponseRecorder {
	router := httprouter.New()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	middleware.CallerIdentity()(router).ServeHTTP(rec, req)
	return rec
}

func TestCheckout_MissingCallerIdentity(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"tool_id":"68b0000000000000000000aa","duration_minutes":60}`))
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without caller header, got %d", rec.Code)
	}
}

func TestCheckout_HolderComesFromHeaderNotBody(t *testing.T) {
	var gotHolder string
	svc := &mockSessionService{
		checkoutFunc: func(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
			gotHolder = req.Holder
			return &model.CheckoutResponse{
				Session:     &model.Session{ID: "68b000000000000000000001"},
				Credentials: &model.Credentials{Username: "u", Password: "p"},
			}, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	// Body tries to impersonate someone else; only the header counts.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"tool_id":"68b0000000000000000000aa","duration_minutes":60,"holder":"mallory@example.com"}`))
	req.Header.Set(middleware.CallerHeader, "Casey@Example.com")
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotHolder != "casey@example.com" {
		t.Errorf("expected normalized header identity, got %q", gotHolder)
	}
}

func TestCheckout_RejectionMapsTo409(t *testing.T) {
	svc := &mockSessionService{
		checkoutFunc: func(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
			return nil, apperrors.Rejected("No seats available for this tool")
		},
	}
	h := NewSessionHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"tool_id":"68b0000000000000000000aa","duration_minutes":60}`))
	req.Header.Set(middleware.CallerHeader, "casey@example.com")
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Code != apperrors.CodeRejected {
		t.Errorf("expected code REJECTED in body, got %q", body.Code)
	}
}

func TestCheckout_MalformedBody(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{not json`))
	req.Header.Set(middleware.CallerHeader, "casey@example.com")
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReturn_ReportsCompletedCount(t *testing.T) {
	svc := &mockSessionService{
		returnFunc: func(ctx context.Context, req *model.ReturnRequest) (int64, error) {
			return 2, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/return",
		strings.NewReader(`{"tool_id":"68b0000000000000000000aa"}`))
	req.Header.Set(middleware.CallerHeader, "casey@example.com")
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data struct {
			CompletedSessions int64 `json:"completed_sessions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Data.CompletedSessions != 2 {
		t.Errorf("expected completed_sessions 2, got %d", body.Data.CompletedSessions)
	}
}

func TestListTools_AnonymousCallerGetsListing(t *testing.T) {
	var gotCaller string
	svc := &mockSessionService{
		mergedToolViewFunc: func(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error) {
			gotCaller = caller
			return []*model.ToolView{
				{ID: "68b0000000000000000000aa", Name: "Tool A", Capacity: 2, ActiveSessions: 1, AvailableSeats: 1},
			}, 1, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	// No caller header at all: browsing stays open.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous listing, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCaller != "" {
		t.Errorf("expected empty caller, got %q", gotCaller)
	}
	if strings.Contains(rec.Body.String(), `"i_have_key":true`) {
		t.Error("anonymous response must not claim held keys")
	}
}

func TestListTools_PassesCallerThrough(t *testing.T) {
	var gotCaller string
	svc := &mockSessionService{
		mergedToolViewFunc: func(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error) {
			gotCaller = caller
			return []*model.ToolView{
				{ID: "68b0000000000000000000aa", Name: "Tool A", Capacity: 2, ActiveSessions: 1, AvailableSeats: 1, IHaveKey: true},
			}, 1, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	req.Header.Set(middleware.CallerHeader, "casey@example.com")
	rec := serveWithIdentity(h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotCaller != "casey@example.com" {
		t.Errorf("caller not threaded through, got %q", gotCaller)
	}
	if strings.Contains(rec.Body.String(), "credentials") || strings.Contains(rec.Body.String(), "password") {
		t.Error("merged view must never carry credentials")
	}
}
