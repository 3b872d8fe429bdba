package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/conversation"
	"github.com/pario-ai/parley/pkg/exchange"
	"github.com/pario-ai/parley/pkg/metrics"
	"github.com/pario-ai/parley/pkg/models"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(context.Context, []models.ChatMessage) (string, error) {
	return f.reply, f.err
}

type testEnv struct {
	ts     *httptest.Server
	audits *audit.MemoryStore
}

func newTestEnv(t *testing.T, completer *fakeCompleter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	convs, err := conversation.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = convs.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	audits := audit.NewMemoryStore()
	svc := exchange.NewService(convs, completer, audit.NewWriter(audits, logger, audit.WithMetrics(m)), m, logger, nil)

	ts := httptest.NewServer(New(convs, svc, audits, reg, logger).Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, audits: audits}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func (e *testEnv) createConversation(t *testing.T, title string) models.Conversation {
	t.Helper()
	res := e.do(t, http.MethodPost, "/conversations", map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decode[models.Conversation](t, res)
}

func TestConversationCRUD(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "hi"})

	created := env.createConversation(t, "First")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "First", created.Title)

	res := env.do(t, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decode[[]models.Conversation](t, res)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	res = env.do(t, http.MethodPut, "/conversations/"+created.ID, map[string]string{"title": "Renamed"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Renamed", decode[models.Conversation](t, res).Title)

	res = env.do(t, http.MethodGet, "/conversations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Renamed", decode[models.Conversation](t, res).Title)

	res = env.do(t, http.MethodDelete, "/conversations/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = env.do(t, http.MethodGet, "/conversations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[errorResponse](t, res).Error)
}

func TestNotFoundRoutes(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "hi"})

	res := env.do(t, http.MethodPut, "/conversations/missing", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = env.do(t, http.MethodDelete, "/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = env.do(t, http.MethodPost, "/conversations/missing/prompt", map[string]string{"role": "user", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateConversationValidation(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})

	res := env.do(t, http.MethodPost, "/conversations", map[string]string{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/conversations", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestPromptMasksAuditButReturnsRawReply(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "Sure, I will contact you at john@example.com"})
	conv := env.createConversation(t, "Support")

	res := env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{
		"role":    "user",
		"content": "My NRIC is S1234567D and email john@example.com",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	updated := decode[models.Conversation](t, res)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, "Sure, I will contact you at john@example.com", updated.Messages[1].Content)

	res = env.do(t, http.MethodGet, "/audits?conversation_id="+conv.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	records := decode[[]models.AuditRecord](t, res)
	require.Len(t, records, 1)
	assert.Equal(t, "My NRIC is [MASKED_NRIC] and email [MASKED_EMAIL]", records[0].PromptMasked)
	assert.Equal(t, "Sure, I will contact you at [MASKED_EMAIL]", records[0].ResponseMasked)
}

func TestPromptRejectsNonUserRole(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "hi"})
	conv := env.createConversation(t, "Roles")

	res := env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{
		"role":    "assistant",
		"content": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_role", decode[errorResponse](t, res).Error)
	assert.Equal(t, 0, env.audits.Len())
}

func TestPromptUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{err: errors.New("connection refused")})
	conv := env.createConversation(t, "Down")

	res := env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{
		"role":    "user",
		"content": "hello",
	})
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Equal(t, "LLM service error.", decode[errorResponse](t, res).Detail)
	assert.Equal(t, 0, env.audits.Len())
}

func TestListAudits(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "ok"})

	res := env.do(t, http.MethodGet, "/audits", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[[]models.AuditRecord](t, res))

	conv := env.createConversation(t, "Audits")
	for _, content := range []string{"one", "two", "three"} {
		res := env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{"role": "user", "content": content})
		require.Equal(t, http.StatusOK, res.StatusCode)
	}

	res = env.do(t, http.MethodGet, "/audits?limit=2", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	records := decode[[]models.AuditRecord](t, res)
	require.Len(t, records, 2)
	assert.True(t, strings.HasSuffix(records[0].PromptMasked, "three"), "newest first")

	res = env.do(t, http.MethodGet, "/audits?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = env.do(t, http.MethodGet, "/audits?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestDeleteConversationKeepsAudits(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "ok"})
	conv := env.createConversation(t, "Ephemeral")

	res := env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{"role": "user", "content": "hi"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = env.do(t, http.MethodDelete, "/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, 1, env.audits.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{reply: "ok"})

	res := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	conv := env.createConversation(t, "Metrics")
	res = env.do(t, http.MethodPost, "/conversations/"+conv.ID+"/prompt", map[string]string{"role": "user", "content": "a@b.com"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_exchanges_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), `test_pii_masked_total{field="prompt",rule="email"} 1`)
}
