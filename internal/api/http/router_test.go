package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/api/http/handlers"
	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/domain"
	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/observability"
	"github.com/testimonioya/recovery-service/internal/repository"
	"github.com/testimonioya/recovery-service/internal/service"
)

const (
	testOwner    = "user-owner"
	testBusiness = "biz-1"
)

type testServer struct {
	app    *fiber.App
	store  *repository.MemoryStore
	tokens *auth.CaseTokens
	jwt    *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutBusiness(domain.Business{ID: testBusiness, UserID: testOwner, BusinessName: "Café Sol", UseRecoveryFlow: true})
	store.PutUser(testOwner, "owner@cafesol.com")

	tokens, err := auth.NewCaseTokens("test-secret")
	require.NoError(t, err)
	jwtManager := auth.NewTokenManager("jwt-secret", 5)
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	svc := service.NewRecoveryService(service.RecoveryDependencies{
		CaseRepo:     store.Cases(),
		BusinessRepo: store.Businesses(),
		NPSRepo:      store.NPS(),
		Tokens:       tokens,
		Dispatcher:   events.NewInMemoryDispatcher(logger),
		Metrics:      metrics,
		Logger:       logger,
		BaseURL:      "https://testimonioya.com",
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{Timeout: 5 * time.Second, AllowOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("recovery-service", "test", nil),
		Recovery:       handlers.NewRecoveryHandler(svc),
		Customer:       handlers.NewCustomerHandler(svc),
		NPS:            handlers.NewNPSHandler(svc),
		AuthMiddleware: auth.NewAuthMiddleware(jwtManager),
	})
	return &testServer{app: app, store: store, tokens: tokens, jwt: jwtManager}
}

func (s *testServer) seedCase(t *testing.T, id string, email *string, status domain.CaseStatus, messages int) {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.RecoveryCase{ID: id, BusinessID: testBusiness, CustomerEmail: email, Status: status, CreatedAt: now, UpdatedAt: now}
	for i := 0; i < messages; i++ {
		c.Messages = append(c.Messages, domain.Message{Role: domain.RoleCustomer, Text: "seed", CreatedAt: now})
	}
	require.NoError(t, s.store.Cases().Create(context.Background(), c))
}

func (s *testServer) bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := s.jwt.GenerateToken(userID, "owner@cafesol.com")
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, method, path string, body any, authz string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func email(s string) *string { return &s }

func TestBusinessReplyEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "case-1", email("a@b.com"), domain.CaseStatusOpen, 0)

	status, body := s.do(t, http.MethodPost, "/v1/recovery-reply",
		map[string]string{"case_id": "case-1", "message": "Lamentamos..."}, s.bearer(t, testOwner))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "in_progress", body["status"])
}

func TestBusinessReplyRequiresSession(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "case-1", email("a@b.com"), domain.CaseStatusOpen, 0)

	status, body := s.do(t, http.MethodPost, "/v1/recovery-reply",
		map[string]string{"case_id": "case-1", "message": "hola"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, _ = s.do(t, http.MethodPost, "/v1/recovery-reply",
		map[string]string{"case_id": "case-1", "message": "hola"}, s.bearer(t, "someone-else"))
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCustomerReplyEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "case-1", email("a@b.com"), domain.CaseStatusInProgress, 1)

	status, body := s.do(t, http.MethodPost, "/v1/recovery-customer-reply", map[string]string{
		"case_id": "case-1",
		"token":   s.tokens.Generate("case-1", "a@b.com"),
		"message": "Gracias por responder",
	}, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["message_count"])

	status, body = s.do(t, http.MethodPost, "/v1/recovery-customer-reply", map[string]string{
		"case_id": "case-1", "token": "bad", "message": "hola",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid or expired link", body["error"])
}

func TestReplyErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "closed", email("a@b.com"), domain.CaseStatusClosed, 1)
	s.seedCase(t, "full", email("a@b.com"), domain.CaseStatusInProgress, domain.MaxCaseMessages)
	s.seedCase(t, "open", email("a@b.com"), domain.CaseStatusOpen, 0)
	authz := s.bearer(t, testOwner)

	cases := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"closed", map[string]string{"case_id": "closed", "message": "hola"}, http.StatusUnprocessableEntity, "CASE_CLOSED"},
		{"full", map[string]string{"case_id": "full", "message": "hola"}, http.StatusUnprocessableEntity, "MESSAGE_LIMIT_REACHED"},
		{"blank", map[string]string{"case_id": "open", "message": "  "}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing case id", map[string]string{"message": "hola"}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"not found", map[string]string{"case_id": "nope", "message": "hola"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/v1/recovery-reply", tc.body, authz)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCaseReadAndCloseEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "case-1", email("a@b.com"), domain.CaseStatusOpen, 1)
	authz := s.bearer(t, testOwner)

	status, body := s.do(t, http.MethodGet, "/v1/recovery/cases?business_id="+testBusiness, nil, authz)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/v1/recovery/cases/case-1", nil, authz)
	assert.Equal(t, http.StatusOK, status)
	detail := body["data"].(map[string]any)
	assert.Equal(t, float64(4), detail["remaining_messages"])

	status, body = s.do(t, http.MethodGet, "/v1/recovery/cases/case-1/link", nil, authz)
	assert.Equal(t, http.StatusOK, status)
	link := body["data"].(map[string]any)["url"]
	assert.Equal(t, "https://testimonioya.com/recovery/case-1?token="+s.tokens.Generate("case-1", "a@b.com"), link)

	status, body = s.do(t, http.MethodPost, "/v1/recovery/cases/case-1/close", nil, authz)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "closed", body["data"].(map[string]any)["status"])
}

func TestPublicCaseEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedCase(t, "case-1", email("a@b.com"), domain.CaseStatusOpen, 1)

	status, body := s.do(t, http.MethodGet, "/v1/recovery/public/case-1?token="+s.tokens.Generate("case-1", "a@b.com"), nil, "")
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Café Sol", data["business_name"])
	assert.NotContains(t, data, "customer_email")

	status, _ = s.do(t, http.MethodGet, "/v1/recovery/public/case-1?token=nope", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestNPSEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/v1/nps/responses", map[string]any{
		"business_id": testBusiness, "score": 2, "feedback": "lento", "customer_email": "a@b.com",
	}, "")
	assert.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "detractor", data["category"])
	assert.NotEmpty(t, data["case_id"])

	status, body = s.do(t, http.MethodPost, "/v1/nps/responses", map[string]any{"business_id": testBusiness}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "recovery_http_requests_total")
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/v1/nothing", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
