package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	mwsec "NotifyGate/middleware/security"
	sec "NotifyGate/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = sec.DefaultOptions([]byte("test-secret"))

func newTestRouter(t *testing.T, store *Store) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(store)
	r := gin.New()
	api := r.Group("/api", mwsec.Middleware(mwsec.DefaultOptions(testJWT)))
	h.RegisterRoutes(api)
	h.RegisterInternalRoutes(r.Group("/api/internal"))
	return r, h
}

func bearer(t *testing.T, principalID string) string {
	t.Helper()
	token, _, err := sec.Generate(testJWT, principalID, "client")
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r *gin.Engine, method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListNotificationsRequiresAuth(t *testing.T) {
	s, _ := newTestStore(50)
	r, _ := newTestRouter(t, s)

	w := doJSON(r, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/notifications", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListNotificationsPagesOwnHistory(t *testing.T) {
	s, _ := newTestStore(50)
	r, _ := newTestRouter(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, "u1", KindOrder, map[string]any{"i": fmt.Sprint(i)})
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, "u2", KindOrder, nil)
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/api/notifications?limit=2", bearer(t, "u1"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
	for _, n := range page.Items {
		assert.Equal(t, "u1", n.OwnerID)
	}

	// follow the cursor to the remainder
	w = doJSON(r, http.MethodGet, "/api/notifications?limit=2&cursor="+page.NextCursor, bearer(t, "u1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rest Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rest))
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestListNotificationsBadCursor(t *testing.T) {
	s, _ := newTestStore(50)
	r, _ := newTestRouter(t, s)

	w := doJSON(r, http.MethodGet, "/api/notifications?cursor=%21%21", bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadReportsPartialCount(t *testing.T) {
	s, _ := newTestStore(50)
	r, h := newTestRouter(t, s)
	ctx := context.Background()

	var echoed []string
	h.Broadcast = func(ownerID string, ids []string) { echoed = ids }

	mine, _ := s.Append(ctx, "u1", KindSystem, nil)
	theirs, _ := s.Append(ctx, "u2", KindSystem, nil)

	body := map[string]any{"ids": []string{mine.ID, theirs.ID, "missing"}}
	w := doJSON(r, http.MethodPatch, "/api/notifications", bearer(t, "u1"), body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp markReadResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Updated, "foreign and missing ids are skipped, not errors")
	// the echo carries only the id that flipped, never the skipped ones
	assert.Equal(t, []string{mine.ID}, echoed)

	// idempotent second call, nothing left to flip and nothing echoed
	echoed = nil
	w = doJSON(r, http.MethodPatch, "/api/notifications", bearer(t, "u1"), body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Updated)
	assert.Nil(t, echoed)
}

func TestInternalAppendFansOut(t *testing.T) {
	s, _ := newTestStore(50)
	r, h := newTestRouter(t, s)

	var fanned *Notification
	h.Notify = func(n *Notification) { fanned = n }

	body := map[string]any{
		"owner_id": "u1",
		"kind":     KindOrder,
		"data":     map[string]any{"order_id": "o-9"},
	}
	w := doJSON(r, http.MethodPost, "/api/internal/notifications", "", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var n Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "u1", n.OwnerID)
	assert.False(t, n.Read)
	require.NotNil(t, fanned)
	assert.Equal(t, n.ID, fanned.ID)
}

func TestInternalAppendStoreFailureIs503(t *testing.T) {
	hist := &failingHistory{MemoryHistory: NewMemoryHistory(), fail: true}
	s := NewStore(hist, 50)
	r, h := newTestRouter(t, s)

	var fanned bool
	h.Notify = func(*Notification) { fanned = true }

	body := map[string]any{"owner_id": "u1", "kind": KindOrder}
	w := doJSON(r, http.MethodPost, "/api/internal/notifications", "", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, fanned, "nothing may be fanned out when the write failed")
}

func TestInternalAppendValidates(t *testing.T) {
	s, _ := newTestStore(50)
	r, _ := newTestRouter(t, s)

	w := doJSON(r, http.MethodPost, "/api/internal/notifications", "", map[string]any{"kind": KindOrder})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
