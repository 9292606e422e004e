package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jobboard-trust/internal/config"
	"github.com/go-jobboard-trust/internal/domain"
	jwtinfra "github.com/go-jobboard-trust/internal/infrastructure/jwt"
	"github.com/go-jobboard-trust/internal/infrastructure/memory"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []string
}

func (o *outbox) Dispatch(_ context.Context, _ domain.Channel, destination, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, destination)
	return nil
}

type server struct {
	t      *testing.T
	h      http.Handler
	jwt    *jwtinfra.Provider
	users  *memory.UserDirectory
	outbox *outbox
}

func newServer(t *testing.T, burst int) *server {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	provider := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)

	users := memory.NewUserDirectory()
	phone := "+15550100"
	seed := []*domain.User{
		{UserID: "seeker-1", Email: "s1@example.com", Phone: &phone, Role: domain.RoleUser},
		{UserID: "seeker-2", Email: "s2@example.com", Role: domain.RoleUser},
		{UserID: "seeker-3", Email: "s3@example.com", Role: domain.RoleUser},
		{UserID: "emp-1", Email: "hr@example.com", Role: domain.RoleEmployer},
		{UserID: "admin-1", Email: "ops@example.com", Role: domain.RoleAdmin},
	}
	for _, u := range seed {
		require.NoError(t, users.Put(context.Background(), u))
	}

	reg := prometheus.NewRegistry()
	ob := &outbox{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewRouter(ctx, &config.Config{AllowedOrigins: []string{"*"}}, &Deps{
		UserRepo:          users,
		JobRepo:           memory.NewJobDirectory(),
		ReportRepo:        memory.NewReportLog(),
		VerificationStore: memory.NewVerificationStore(),
		Dispatcher:        ob,
		JWTProvider:       provider,
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		Clock:             clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Settings: Settings{
			CodeTTL:       10 * time.Minute,
			DispatchWait:  time.Second,
			ExposeCodes:   true,
			FlagThreshold: 3,
			SendCodeRate:  1,
			SendCodeBurst: burst,
		},
	})
	return &server{t: t, h: h, jwt: provider, users: users, outbox: ob}
}

// do sends a request as userID (anonymous when empty) and decodes a JSON
// response into out when out is non-nil.
func (s *server) do(method, path, userID, role string, body interface{}, out interface{}) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		tok, err := s.jwt.Sign(userID, role)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	if out != nil {
		require.NoError(s.t, json.NewDecoder(rr.Body).Decode(out), rr.Body.String())
	}
	return rr.Code
}

func TestRouter_Health(t *testing.T) {
	s := newServer(t, 3)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/health-check/ping", "", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/health-check/pong", "", "", nil, nil))
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newServer(t, 3)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/verify/email/send", "", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/jobs/x", "", "", nil, nil))
}

func TestRouter_RoleGates(t *testing.T) {
	s := newServer(t, 3)
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPost, "/v1/jobs", "seeker-1", domain.RoleUser, domain.CreateJobRequest{Title: "Cook"}, nil))
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPatch, "/v1/admin/employers/emp-1/approve", "emp-1", domain.RoleEmployer, map[string]bool{"approved": true}, nil))
}

func TestRouter_VerifyEmail(t *testing.T) {
	s := newServer(t, 3)

	var sent map[string]interface{}
	code := s.do(http.MethodPost, "/v1/verify/email/send", "seeker-1", domain.RoleUser, nil, &sent)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sent", sent["delivery"])
	otp, _ := sent["code"].(string)
	require.Len(t, otp, 6)
	assert.Equal(t, []string{"s1@example.com"}, s.outbox.sent)

	var st map[string]interface{}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/verify/email", "seeker-1", domain.RoleUser, nil, &st))
	assert.Equal(t, true, st["pending"])
	assert.Equal(t, otp, st["code"])

	assert.Equal(t, http.StatusOK,
		s.do(http.MethodPost, "/v1/verify/email/confirm", "seeker-1", domain.RoleUser, domain.ConfirmCodeRequest{Code: otp}, nil))
	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPost, "/v1/verify/email/confirm", "seeker-1", domain.RoleUser, domain.ConfirmCodeRequest{Code: otp}, nil))

	u, err := s.users.Get(context.Background(), "seeker-1")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	assert.False(t, u.PhoneVerified)

	st = nil
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/verify/email", "seeker-1", domain.RoleUser, nil, &st))
	assert.Equal(t, true, st["verified"])
	assert.Equal(t, false, st["pending"])
}

func TestRouter_SendIsRateLimited(t *testing.T) {
	s := newServer(t, 2)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/verify/email/send", "seeker-1", domain.RoleUser, nil, nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/v1/verify/email/send", "seeker-1", domain.RoleUser, nil, nil))
	// Confirm is not limited.
	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPost, "/v1/verify/email/confirm", "seeker-1", domain.RoleUser, domain.ConfirmCodeRequest{Code: "000000"}, nil))
}

func TestRouter_ModerationLifecycle(t *testing.T) {
	s := newServer(t, 3)

	var job domain.Job
	require.Equal(t, http.StatusCreated,
		s.do(http.MethodPost, "/v1/jobs", "emp-1", domain.RoleEmployer, domain.CreateJobRequest{Title: "Line cook"}, &job))
	assert.Equal(t, domain.JobPending, job.Status)

	var promoted map[string]int
	require.Equal(t, http.StatusOK,
		s.do(http.MethodPatch, "/v1/admin/employers/emp-1/approve", "admin-1", domain.RoleAdmin, map[string]bool{"approved": true}, &promoted))
	assert.Equal(t, 1, promoted["promoted"])

	// Not flagged yet.
	assert.Equal(t, http.StatusConflict,
		s.do(http.MethodPatch, "/v1/admin/jobs/"+job.JobID+"/decision", "admin-1", domain.RoleAdmin, domain.DecisionRequest{Decision: "approve"}, nil))

	for _, reporter := range []string{"seeker-1", "seeker-2", "seeker-3"} {
		require.Equal(t, http.StatusOK,
			s.do(http.MethodPost, "/v1/jobs/"+job.JobID+"/flag", reporter, domain.RoleUser, domain.FlagJobRequest{Reason: "scam"}, nil))
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/jobs/"+job.JobID, "seeker-1", domain.RoleUser, nil, &job))
	assert.Equal(t, domain.JobFlagged, job.Status)

	var reports struct {
		Data []domain.FlagReport `json:"data"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/admin/jobs/"+job.JobID+"/reports", "admin-1", domain.RoleAdmin, nil, &reports))
	assert.Len(t, reports.Data, 3)

	require.Equal(t, http.StatusOK,
		s.do(http.MethodPatch, "/v1/admin/jobs/"+job.JobID+"/decision", "admin-1", domain.RoleAdmin, domain.DecisionRequest{Decision: "remove"}, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/jobs/"+job.JobID, "seeker-1", domain.RoleUser, nil, &job))
	assert.Equal(t, domain.JobClosed, job.Status)

	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/v1/admin/jobs/"+job.JobID+"/reopen", "admin-1", domain.RoleAdmin, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/jobs/"+job.JobID, "seeker-1", domain.RoleUser, nil, &job))
	assert.Equal(t, domain.JobActive, job.Status)
	assert.Zero(t, job.FlagCount)
}

func TestRouter_Metrics(t *testing.T) {
	s := newServer(t, 3)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/verify/email/send", "seeker-1", domain.RoleUser, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `jobboard_verification_codes_issued_total{channel="email"} 1`)
}
