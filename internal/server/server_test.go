package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ngfabric/upf/internal/config"
	"github.com/ngfabric/upf/internal/pfcp"
	"github.com/ngfabric/upf/internal/session"
)

func newTestServer() (*Server, *session.Store, *pfcp.Handler) {
	store := session.NewStore(8)
	handler := pfcp.NewHandler(store, zap.NewNop(), [4]byte{10, 0, 0, 1}, 0)
	cfg := &config.Config{}
	cfg.NF.Name = "upf-test"
	cfg.PFCP.NodeID = "10.0.0.1"
	return NewServer(cfg, store, handler, zap.NewNop()), store, handler
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	srv, _, _ := newTestServer()
	rec := doGet(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReflectsAssociationState(t *testing.T) {
	srv, store, _ := newTestServer()
	_ = store

	rec := doGet(t, srv, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusIncludesInstanceIDAndAssociation(t *testing.T) {
	srv, _, _ := newTestServer()
	rec := doGet(t, srv, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "upf-test", body["nf_name"])
	require.Equal(t, false, body["pfcp_associated"])
	require.NotEmpty(t, body["instance_id"])
}

func TestSessionsListsPDRsOfCreatedSession(t *testing.T) {
	srv, store, _ := newTestServer()
	upSEID, err := store.Create(1)
	require.NoError(t, err)
	sess, _ := store.Find(upSEID)
	sess.Lock()
	require.NoError(t, sess.AddPDR(session.PDR{ID: 1, Precedence: 10, SourceInterface: session.IfaceAccess, TEID: 0x10, FARID: 1}))
	sess.Unlock()

	rec := doGet(t, srv, "/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 1, body["count"])
}

func TestStatsReportsActiveSessionCount(t *testing.T) {
	srv, store, _ := newTestServer()
	_, err := store.Create(1)
	require.NoError(t, err)
	_, err = store.Create(2)
	require.NoError(t, err)

	rec := doGet(t, srv, "/stats")
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 2, body["active_sessions"])
}
