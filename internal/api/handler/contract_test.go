package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/api"
	"github.com/kiranshivaraju/contractsentinel/internal/api/handler"
	mw "github.com/kiranshivaraju/contractsentinel/internal/api/middleware"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/internal/ledger"
	"github.com/kiranshivaraju/contractsentinel/internal/store"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const (
	testTenantID  = "tenant-1"
	otherTenantID = "tenant-2"
	testRawKey    = "cs_test_contract_key_1234567890"
	otherRawKey   = "cs_othr_contract_key_0987654321"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type published struct {
	id  uuid.UUID
	ref string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, id uuid.UUID, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{id: id, ref: ref})
	return nil
}

type memCounter struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (c *memCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server    *httptest.Server
	ledger    *ledger.Ledger
	publisher *fakePublisher
}

func createKey(t *testing.T, st store.Store, tenantID, rawKey string) {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, st.CreateAPIKey(context.Background(), &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "key-" + tenantID,
		KeyHash:   string(h),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.OpenSQLite(context.Background(), "file:"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	createKey(t, st, testTenantID, testRawKey)
	createKey(t, st, otherTenantID, otherRawKey)

	l := ledger.New(st, nil, 0)
	pub := &fakePublisher{}

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(&memCounter{counters: map[string]int64{}}, 10), // low limit for rate-limit tests

		CreateJobHandler: handler.NewCreateJobHandler(l, pub, "mock-v1"),
		GetJobHandler:    handler.NewGetJobHandler(l),
		JobStatusHandler: handler.NewJobStatusHandler(l),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, ledger: l, publisher: pub}
}

func (ts *testServer) request(t *testing.T, rawKey, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if rawKey != "" {
		req.Header.Set("Authorization", "Bearer "+rawKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func errCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	return parseBody(t, resp)["error"].(map[string]any)["code"].(string)
}

func (ts *testServer) createJob(t *testing.T, ref string) uuid.UUID {
	t.Helper()
	resp := ts.request(t, testRawKey, "POST", "/api/v1/jobs", map[string]string{"document_reference": ref})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, err := uuid.Parse(parseBody(t, resp)["data"].(map[string]any)["job_id"].(string))
	require.NoError(t, err)
	return id
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// ─── POST /api/v1/jobs ───────────────────────────────────────────────────────

func TestCreateJob_202_QueuesAndPublishes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, testRawKey, "POST", "/api/v1/jobs", map[string]string{"document_reference": "file://msa.md"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "QUEUED", data["status"])
	id, err := uuid.Parse(data["job_id"].(string))
	require.NoError(t, err)

	require.Len(t, ts.publisher.msgs, 1)
	assert.Equal(t, id, ts.publisher.msgs[0].id)
	assert.Equal(t, "file://msa.md", ts.publisher.msgs[0].ref)

	job, err := ts.ledger.GetJob(context.Background(), id, testTenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "mock-v1", job.ModelVersion)
	require.Len(t, job.AuditTrail, 1)
	assert.Equal(t, "JOB_CREATED", job.AuditTrail[0].Action)
	assert.Equal(t, "file://msa.md", job.AuditTrail[0].Details["document_reference"])
}

func TestCreateJob_400_MissingReference(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, testRawKey, "POST", "/api/v1/jobs", map[string]string{"document_reference": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, resp))
	assert.Empty(t, ts.publisher.msgs)
}

func TestCreateJob_400_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, testRawKey, "POST", "/api/v1/jobs", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateJob_401_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, "", "POST", "/api/v1/jobs", map[string]string{"document_reference": "file://a.txt"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errCode(t, resp))
}

func TestCreateJob_503_PublishFailureFailsJob(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.err = fault.Unavailable("publish job", errors.New("nats down"))

	resp := ts.request(t, testRawKey, "POST", "/api/v1/jobs", map[string]string{"document_reference": "file://a.txt"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "QUEUE_UNAVAILABLE", errObj["code"])
	id, err := uuid.Parse(errObj["details"].(map[string]any)["job_id"].(string))
	require.NoError(t, err)

	job, err := ts.ledger.GetJob(context.Background(), id, testTenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "unavailable", job.AuditTrail[len(job.AuditTrail)-1].Details["error_kind"])
}

// ─── GET /api/v1/jobs/{jobID} ────────────────────────────────────────────────

func TestGetJob_200_WithAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createJob(t, "file://msa.md")

	_, err := ts.ledger.TransitionStatus(context.Background(), id, models.JobStatusProcessing, nil)
	require.NoError(t, err)

	resp := ts.request(t, testRawKey, "GET", "/api/v1/jobs/"+id.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, id.String(), data["job_id"])
	assert.Equal(t, "PROCESSING", data["status"])
	assert.Equal(t, "file://msa.md", data["document_reference"])
	trail := data["audit_trail"].([]any)
	require.Len(t, trail, 2)
	assert.Equal(t, "STATUS_CHANGED_TO_PROCESSING", trail[1].(map[string]any)["action"])
}

func TestGetJob_404_OtherTenant(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createJob(t, "file://msa.md")

	resp := ts.request(t, otherRawKey, "GET", "/api/v1/jobs/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", errCode(t, resp))
}

func TestGetJob_404_Unknown(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, testRawKey, "GET", "/api/v1/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJob_400_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, testRawKey, "GET", "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, resp))
}

// ─── GET /api/v1/jobs/{jobID}/status ─────────────────────────────────────────

func TestJobStatus_200(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createJob(t, "file://msa.md")

	resp := ts.request(t, testRawKey, "GET", "/api/v1/jobs/"+id.String()+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, id.String(), data["job_id"])
	assert.Equal(t, "QUEUED", data["status"])
}

func TestJobStatus_404_OtherTenant(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createJob(t, "file://msa.md")

	resp := ts.request(t, otherRawKey, "GET", "/api/v1/jobs/"+id.String()+"/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── rate limiting ───────────────────────────────────────────────────────────

func TestRateLimit_429_AfterLimit(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/jobs/" + uuid.NewString()

	for i := 0; i < 10; i++ {
		resp := ts.request(t, testRawKey, "GET", path, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "request %d", i+1)
	}

	resp := ts.request(t, testRawKey, "GET", path, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, resp))

	// other keys have their own window
	resp = ts.request(t, otherRawKey, "GET", path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
