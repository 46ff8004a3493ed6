package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/syncd/internal/application/optimistic"
	syncapp "github.com/erp/syncd/internal/application/sync"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/infrastructure/transport"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	state transport.ConnectionState
}

func (f *fakeConn) State() transport.ConnectionState { return f.state }

func setupSyncAPI(t *testing.T) (*gin.Engine, *syncapp.Cache[testCategory], *optimistic.Tracker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracker := optimistic.NewTracker(optimistic.WithTimeout(time.Minute))
	t.Cleanup(func() { _ = tracker.Close() })

	cache := newTestCategoryCache(tracker)
	conn := &fakeConn{state: transport.ConnectionState{Status: transport.StatusConnected}}

	h := NewSyncHandler([]syncapp.View{cache}, tracker, conn, zap.NewNop())
	engine := gin.New()
	api := engine.Group("/api/v1")
	h.RegisterRoutes(api)
	return engine, cache, tracker
}

// testCategory is a minimal entity for exercising the handlers
type testCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c testCategory) EntityID() string { return c.ID }

func newTestCategoryCache(tracker *optimistic.Tracker) *syncapp.Cache[testCategory] {
	decodeOne := func(raw json.RawMessage) (testCategory, error) {
		var c testCategory
		err := json.Unmarshal(raw, &c)
		return c, err
	}
	decodeList := func(raw json.RawMessage) ([]testCategory, error) {
		var list []testCategory
		err := json.Unmarshal(raw, &list)
		return list, err
	}
	return syncapp.NewCache(shared.DomainCategory, decodeOne, decodeList,
		syncapp.WithTracker[testCategory](tracker))
}

func applySnapshot(t *testing.T, cache *syncapp.Cache[testCategory]) {
	t.Helper()
	_, err := cache.Apply(syncapp.Envelope{
		Domain:   shared.DomainCategory,
		Action:   shared.ActionSnapshot,
		Sequence: 5,
		Payload:  json.RawMessage(`[{"id":"c-1","name":"Drinks"},{"id":"c-2","name":"Snacks"}]`),
	})
	require.NoError(t, err)
}

func TestSyncHandler_Status(t *testing.T) {
	engine, cache, tracker := setupSyncAPI(t)
	applySnapshot(t, cache)
	tracker.BeginWrite(shared.DomainCategory, "c-1", map[string]any{"name": "Beverages"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/sync/status", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Connection struct {
				Status string `json:"status"`
			} `json:"connection"`
			Domains []struct {
				Domain              string `json:"domain"`
				LastAppliedSequence uint64 `json:"last_applied_sequence"`
				Entities            int    `json:"entities"`
			} `json:"domains"`
			PendingWrites int `json:"pending_writes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "connected", resp.Data.Connection.Status)
	assert.Equal(t, 1, resp.Data.PendingWrites)
	require.Len(t, resp.Data.Domains, 1)
	assert.Equal(t, "category", resp.Data.Domains[0].Domain)
	assert.Equal(t, uint64(5), resp.Data.Domains[0].LastAppliedSequence)
	assert.Equal(t, 2, resp.Data.Domains[0].Entities)
}

func TestSyncHandler_Snapshot(t *testing.T) {
	t.Run("returns annotated entries", func(t *testing.T) {
		engine, cache, tracker := setupSyncAPI(t)
		applySnapshot(t, cache)
		tracker.BeginWrite(shared.DomainCategory, "c-1", map[string]any{"name": "Beverages"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/sync/category/snapshot", nil)
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data struct {
				Domain  string `json:"domain"`
				Entries []struct {
					Entity  testCategory `json:"entity"`
					Pending bool         `json:"pending"`
				} `json:"entries"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.Equal(t, "category", resp.Data.Domain)
		require.Len(t, resp.Data.Entries, 2)
		assert.Equal(t, "c-1", resp.Data.Entries[0].Entity.ID)
		assert.True(t, resp.Data.Entries[0].Pending)
		assert.False(t, resp.Data.Entries[1].Pending)
	})

	t.Run("resolves plural domain spellings", func(t *testing.T) {
		engine, cache, _ := setupSyncAPI(t)
		applySnapshot(t, cache)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/sync/categories/snapshot", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects unknown domains", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/sync/warehouse/snapshot", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects synchronized domains without a registered view", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/sync/stock/snapshot", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSyncHandler_Writes(t *testing.T) {
	t.Run("registers and cancels an optimistic write", func(t *testing.T) {
		engine, _, tracker := setupSyncAPI(t)

		body := `{"domain":"category","entity_id":"c-1","expected":{"name":"Beverages"}}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/sync/writes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, tracker.IsPending(shared.DomainCategory, "c-1"))

		var resp struct {
			Data struct {
				WriteID string `json:"write_id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Data.WriteID)

		w = httptest.NewRecorder()
		req, _ = http.NewRequest("DELETE", "/api/v1/sync/writes/"+resp.Data.WriteID, nil)
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, tracker.IsPending(shared.DomainCategory, "c-1"))
	})

	t.Run("rejects a write without an entity id", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/sync/writes", strings.NewReader(`{"domain":"category"}`))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a write for an unsynchronized domain", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		body := `{"domain":"stock","entity_id":"p-1"}`
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/sync/writes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects a malformed write id", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/sync/writes/not-a-uuid", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cancelling an unknown write yields 404", func(t *testing.T) {
		engine, _, _ := setupSyncAPI(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/sync/writes/00000000-0000-0000-0000-000000000001", nil)
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
