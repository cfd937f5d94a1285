package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

// memoryStore mimics the Redis calls the middleware makes.
type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]string{}} }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.keys[key]; taken {
		return false, nil
	}
	m.keys[key], _ = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// idempotentCall sends one create-payment style request through mw.
type idempotentCall struct {
	method string
	key    string
	body   string
	actor  uuid.UUID
}

func (c idempotentCall) serve(mw func(http.Handler) http.Handler, h http.Handler) *httptest.ResponseRecorder {
	method := c.method
	if method == "" {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, "/api/v1/payments", strings.NewReader(c.body))
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	if c.actor != uuid.Nil {
		req = req.WithContext(WithActor(req.Context(), c.actor, enums.ActorRoleStudent))
	}
	rec := httptest.NewRecorder()
	mw(h).ServeHTTP(rec, req)
	return rec
}

// countingHandler answers with the given statuses in order, repeating the last.
func countingHandler(calls *int, statuses ...int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := statuses[min(*calls, len(statuses)-1)]
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":{"id":"pay_1"}}`))
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestIdempotencyRejectsMissingOrOversizedKey(t *testing.T) {
	for name, key := range map[string]string{
		"missing":   "",
		"oversized": strings.Repeat("k", maxIdempotencyKeySize+1),
	} {
		t.Run(name, func(t *testing.T) {
			var calls int
			rec := idempotentCall{key: key, body: `{}`}.serve(Idempotency(newMemoryStore(), IdempotencyOptions{}, nil), countingHandler(&calls, http.StatusCreated))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
			assert.Zero(t, calls)
		})
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newMemoryStore(), IdempotencyOptions{}, nil)
	var calls int
	h := countingHandler(&calls, http.StatusCreated)
	call := idempotentCall{key: "abc", body: `{"amount":"10.00"}`}

	first := call.serve(mw, h)
	second := call.serve(mw, h)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(idempotentReplayHeader))
	assert.Empty(t, first.Header().Get(idempotentReplayHeader))
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	mw := Idempotency(newMemoryStore(), IdempotencyOptions{}, nil)
	var calls int
	h := countingHandler(&calls, http.StatusCreated)

	idempotentCall{key: "xyz", body: `{"amount":"10.00"}`}.serve(mw, h)
	rec := idempotentCall{key: "xyz", body: `{"amount":"99.00"}`}.serve(mw, h)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsDuplicateWhileFirstIsInFlight(t *testing.T) {
	mw := Idempotency(newMemoryStore(), IdempotencyOptions{}, nil)
	call := idempotentCall{key: "race", body: `{}`}

	var nested *httptest.ResponseRecorder
	outer := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		nested = call.serve(mw, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("duplicate reached the handler")
		}))
		w.WriteHeader(http.StatusCreated)
	})
	call.serve(mw, outer)

	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, nested))
}

func TestIdempotencyReleasesClaimAfterServerError(t *testing.T) {
	store := newMemoryStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	var calls int
	h := countingHandler(&calls, http.StatusServiceUnavailable, http.StatusCreated)
	call := idempotentCall{key: "retry-me", body: `{}`}

	assert.Equal(t, http.StatusServiceUnavailable, call.serve(mw, h).Code)
	assert.Zero(t, store.size())
	assert.Equal(t, http.StatusCreated, call.serve(mw, h).Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, store.size())
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store := newMemoryStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	var calls int
	h := countingHandler(&calls, http.StatusCreated)

	for range 2 {
		idempotentCall{key: "shared", body: `{}`, actor: uuid.New()}.serve(mw, h)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.size())
}

func TestIdempotencyIgnoresSafeMethodsAndNilStore(t *testing.T) {
	var calls int
	h := countingHandler(&calls, http.StatusOK)

	idempotentCall{method: http.MethodGet}.serve(Idempotency(newMemoryStore(), IdempotencyOptions{}, nil), h)
	idempotentCall{body: `{}`}.serve(Idempotency(nil, IdempotencyOptions{}, nil), h)

	assert.Equal(t, 2, calls)
}
