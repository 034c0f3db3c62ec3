package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beandb/fanout/cache"
	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/cluster"
	"github.com/beandb/fanout/listener"
	"github.com/beandb/fanout/pipeline"
)

func newTestServer(t *testing.T) (*httptest.Server, *cache.Store) {
	t.Helper()

	store := cache.NewStore(16)
	notifier := cache.NewNotifier(store, cache.NewTableMap())
	broadcaster := cluster.NewBroadcaster("node-test", nil, notifier)

	pool := pipeline.NewPool(1, 4, cfg.QueueFullBlock)
	t.Cleanup(pool.Stop)

	coord, err := pipeline.NewCoordinator(pipeline.Config{
		ServerName:  "node-test",
		Notifier:    notifier,
		Dispatcher:  listener.NewDispatcher(listener.NewBuilder().Build()),
		Broadcaster: broadcaster,
		Pool:        pool,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(broadcaster, coord, store, nil))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestClusterMembersEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/admin/cluster/members")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, false, data["clustering"])
}

func TestCacheStatsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	store.Put("customer", int64(1), "a")
	store.Put("customer", int64(2), "b")

	status, body := getJSON(t, srv.URL+"/admin/cache/stats")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total_entries"])
}

func TestPipelineStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/admin/pipeline/stats")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["local_commits"])
	assert.EqualValues(t, 0, data["queue_depth"])
}

func TestUnknownAdminEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/admin/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])
}

func TestIndexWorkerEndpointWithoutWorker(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/admin/index/worker")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, false, data["enabled"])
}
