package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/coordinator"
	"github.com/dreamware/quorra/internal/health"
)

func newTestServer(monitor *health.Monitor) *server {
	if monitor == nil {
		monitor = health.NewMonitor(time.Hour, nil)
	}
	return newServer(
		cluster.Node{Name: "central", Address: "127.0.0.1:8000"},
		coordinator.NewMemoryRegistry(),
		monitor,
		func() {},
	)
}

func call(t *testing.T, h http.Handler, method, path string, body any) cluster.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp cluster.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// TestHandleRegister tests registration and re-registration over HTTP
func TestHandleRegister(t *testing.T) {
	srv := newTestServer(nil)
	h := srv.routes()

	resp := call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n1", Address: "127.0.0.1:9001"})
	assert.Equal(t, cluster.ResultOK, resp.Result)
	resp = call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n2", Address: "127.0.0.1:9002"})
	assert.Equal(t, cluster.ResultOK, resp.Result)
	resp = call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n1", Address: "127.0.0.1:9011"})
	assert.Equal(t, cluster.ResultOK, resp.Result)

	resp = call(t, h, http.MethodGet, "/register/", nil)
	require.Equal(t, cluster.ResultOK, resp.Result)
	var nodes map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &nodes))
	assert.Equal(t, map[string]string{"n1": "127.0.0.1:9011", "n2": "127.0.0.1:9002"}, nodes)
}

// TestHandleRegisterInvalid tests that bad requests change nothing
func TestHandleRegisterInvalid(t *testing.T) {
	srv := newTestServer(nil)
	h := srv.routes()

	req := httptest.NewRequest(http.MethodPut, "/register/", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp cluster.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, cluster.ResultError, resp.Result)
	assert.Equal(t, "bad json", resp.Msg)

	resp = call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n1"})
	assert.Equal(t, cluster.ResultError, resp.Result)
	assert.Contains(t, resp.Msg, "address")

	all, err := srv.registry.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

// TestCentralCapabilities tests that peer verbs are refused without side
// effects
func TestCentralCapabilities(t *testing.T) {
	srv := newTestServer(nil)
	h := srv.routes()

	for _, path := range []string{"/data/", "/proposal/", "/prepare/", "/submit/", "/rollback/"} {
		resp := call(t, h, http.MethodPut, path, cluster.Record{ID: "a"})
		assert.Equal(t, cluster.ResultError, resp.Result, path)
		assert.Contains(t, resp.Msg, "not supported by central nodes")
	}
	resp := call(t, h, http.MethodGet, "/leader/", nil)
	assert.Equal(t, cluster.ResultError, resp.Result)

	resp = call(t, h, http.MethodGet, "/ping/", nil)
	assert.Equal(t, cluster.ResultOK, resp.Result)
}

// TestCentralEviction tests that a registered node that stops answering is
// evicted after one failed check, and that a live node stays
func TestCentralEviction(t *testing.T) {
	ctx := context.Background()
	monitor := health.NewMonitor(20*time.Millisecond, cluster.NewClient(time.Second))
	srv := newTestServer(monitor)

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cluster.WriteOK(w, cluster.Node{Name: "live", Address: r.Host})
	}))
	defer live.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := dead.Listener.Addr().String()
	dead.Close()

	require.NoError(t, srv.registry.Register(ctx, cluster.Node{Name: "live", Address: live.Listener.Addr().String()}))
	require.NoError(t, srv.registry.Register(ctx, cluster.Node{Name: "dead", Address: deadAddr}))

	monitor.SetOnUnhealthy(srv.evict)
	monitor.Start(ctx, srv.nodes)
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		all, _ := srv.registry.List(ctx)
		_, stillThere := all["dead"]
		return !stillThere
	}, 2*time.Second, 10*time.Millisecond)

	all, err := srv.registry.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "live")
	assert.Eventually(t, func() bool { return monitor.IsHealthy("live") }, time.Second, 10*time.Millisecond)

	resp := call(t, srv.routes(), http.MethodGet, "/info/", nil)
	require.Equal(t, cluster.ResultOK, resp.Result, resp.Msg)
	var info CentralInfo
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, "central", info.Name)
	require.Len(t, info.Nodes, 1)
	assert.Equal(t, "live", info.Nodes[0].Name)
	assert.True(t, info.Nodes[0].Healthy)
	require.NotNil(t, info.Nodes[0].Health)
	assert.Equal(t, health.StatusHealthy, info.Nodes[0].Health.Status)
}

// TestHandleInfoUnchecked tests that nodes registered since the last round
// are listed without a health record
func TestHandleInfoUnchecked(t *testing.T) {
	srv := newTestServer(nil)
	h := srv.routes()

	call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n2", Address: "127.0.0.1:9002"})
	call(t, h, http.MethodPut, "/register/", cluster.Node{Name: "n1", Address: "127.0.0.1:9001"})

	resp := call(t, h, http.MethodGet, "/info/", nil)
	require.Equal(t, cluster.ResultOK, resp.Result, resp.Msg)
	var info CentralInfo
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, []NodeStatus{
		{Name: "n1", Address: "127.0.0.1:9001"},
		{Name: "n2", Address: "127.0.0.1:9002"},
	}, info.Nodes)
}
