package sink_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escfg "github.com/jonesrussell/nmls-crawler/internal/config/elasticsearch"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
	"github.com/jonesrussell/nmls-crawler/internal/sink"
)

type fakeCluster struct {
	mu       sync.Mutex
	paths    []string
	lastBody map[string]any
	status   int
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		_, _ = io.WriteString(w, `{"version":{"number":"8.19.0"},"tagline":"You Know, for Search"}`)
		return
	}

	c.paths = append(c.paths, r.Method+" "+r.URL.Path)
	body, _ := io.ReadAll(r.Body)
	c.lastBody = map[string]any{}
	_ = json.Unmarshal(body, &c.lastBody)

	status := c.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"result":"created"}`)
}

func newMirror(t *testing.T, cluster *fakeCluster) *sink.Elasticsearch {
	t.Helper()

	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	cfg := escfg.New()
	cfg.Addresses = []string{srv.URL}
	client, err := sink.NewElasticsearchClient(cfg)
	require.NoError(t, err)

	return sink.NewElasticsearch(client, cfg.Index, logger.NewNop())
}

func TestElasticsearch_IndexesAdvertisementByID(t *testing.T) {
	cluster := &fakeCluster{}
	mirror := newMirror(t, cluster)

	require.NoError(t, mirror.Write(context.Background(), sampleAdvertisement()))

	require.Equal(t, []string{"PUT /nmls_advt/_doc/" + advtID}, cluster.paths)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir/id123", cluster.lastBody["url"])
	assert.InDelta(t, 4350000, cluster.lastBody["price"], 0)
}

func TestElasticsearch_SkipsImagesAndPhones(t *testing.T) {
	cluster := &fakeCluster{}
	mirror := newMirror(t, cluster)

	ctx := context.Background()
	require.NoError(t, mirror.Write(ctx, &domain.Image{AdvtID: advtID, URL: "https://img.nmls.ru/1.jpg"}))
	require.NoError(t, mirror.Write(ctx, &domain.PhoneNumber{AdvtID: advtID, Phone: 79101234567}))
	assert.Empty(t, cluster.paths)
}

func TestElasticsearch_ErrorResponse(t *testing.T) {
	cluster := &fakeCluster{status: http.StatusBadRequest}
	mirror := newMirror(t, cluster)

	err := mirror.Write(context.Background(), sampleAdvertisement())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error indexing advertisement")
}

func TestElasticsearch_TestConnection(t *testing.T) {
	mirror := newMirror(t, &fakeCluster{})
	require.NoError(t, mirror.TestConnection(context.Background()))
}
