package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/embedview/internal/dataset"
	"github.com/23skdu/embedview/internal/embedding"
	"github.com/23skdu/embedview/internal/health"
	"github.com/23skdu/embedview/internal/limiter"
	"github.com/23skdu/embedview/internal/meta"
	"github.com/23skdu/embedview/internal/neighbors"
	"github.com/23skdu/embedview/internal/pipeline"
	"github.com/23skdu/embedview/internal/resolver"
	"github.com/23skdu/embedview/internal/state"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

type fixture struct {
	store  *state.Store[pipeline.Snapshot]
	router http.Handler
}

func newFixture(t *testing.T, rl limiter.Config) *fixture {
	t.Helper()
	store := state.NewStore[pipeline.Snapshot]()
	res, err := resolver.New(resolver.Options{}, zerolog.Nop())
	require.NoError(t, err)

	hm := health.NewHealthManager("test", zerolog.Nop())
	hm.RegisterChecker(health.NewReadinessChecker("embedding", store.Ready, nil))

	h := NewHandler(store, res, zerolog.Nop(), Options{NeighborsK: 2})
	return &fixture{store: store, router: NewRouter(h, hm, limiter.NewRateLimiter(rl))}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func smallSnapshot(paths []string) *pipeline.Snapshot {
	features := [][]float64{{0, 0}, {1, 0}, {10, 10}, {11, 10}}
	coords := []embedding.Coordinate{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}}
	labels := []string{"a", "a", "b", "b"}
	return &pipeline.Snapshot{
		Records:   meta.Assemble(coords, labels, paths),
		Neighbors: neighbors.Build(features, 1),
		Points:    4,
		Dim:       2,
	}
}

func TestTSNEData_NotReady(t *testing.T) {
	f := newFixture(t, limiter.Config{})

	rec := f.get(t, RouteTSNEData)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"TSNE data is None"}`, rec.Body.String())
	assert.NotEqual(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = f.get(t, RouteReadyz)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTSNEData_Ready(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	paths := []string{"/img/a 1.jpg", "/img/a 2.jpg", "/img/b+1.jpg", "/img/b&2.jpg"}
	require.NoError(t, f.store.Publish(smallSnapshot(paths)))

	rec := f.get(t, RouteTSNEData)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var records []meta.PointRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, i, r.Idx)
		assert.Equal(t, meta.ImageURL(paths[i]), r.ImgURL)
	}

	assert.Equal(t, http.StatusOK, f.get(t, RouteReadyz).Code)
}

func TestTSNEData_EmptySnapshotIsEmptyArray(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	require.NoError(t, f.store.Publish(&pipeline.Snapshot{Records: []meta.PointRecord{}, Neighbors: neighbors.Build(nil, 1)}))

	rec := f.get(t, RouteTSNEData)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestTSNEData_UnencodableRecordsAre500(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	snap := smallSnapshot([]string{"/a", "/b", "/c", "/d"})
	snap.Records[2].Y = math.NaN()
	require.NoError(t, f.store.Publish(snap))

	rec := f.get(t, RouteTSNEData)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, DetailInternal, body.Detail)
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		value      interface{}
		wantStatus int
		wantBody   string
	}{
		{"encodable", map[string]int{"a": 1}, http.StatusCreated, `{"a":1}`},
		{"nan", math.NaN(), http.StatusInternalServerError, `{"detail":"` + DetailInternal + `"}`},
		{"infinity", []float64{1, math.Inf(1)}, http.StatusInternalServerError, `{"detail":"` + DetailInternal + `"}`},
		{"channel", make(chan int), http.StatusInternalServerError, `{"detail":"` + DetailInternal + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeJSON(rec, http.StatusCreated, tt.value)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestGetImage(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	path := filepath.Join(t.TempDir(), "photo dir", "고양이 & 개+1.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, jpegBytes, 0o600))

	for i := 0; i < 2; i++ {
		rec := f.get(t, meta.ImageURL(path))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, jpegBytes, rec.Body.Bytes())
	}
}

func TestGetImage_Errors(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	missing := filepath.Join(t.TempDir(), "missing.jpg")

	tests := []struct {
		name   string
		target string
		status int
		detail string
	}{
		{"missing file", meta.ImageURL(missing), http.StatusNotFound, DetailImageNotFound},
		{"directory", meta.ImageURL(t.TempDir()), http.StatusNotFound, DetailImageNotFound},
		{"undecodable token", RouteImage + "?path=%zz", http.StatusNotFound, DetailImageNotFound},
		{"no path parameter", RouteImage, http.StatusBadRequest, DetailMissingPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.detail, body.Detail)
		})
	}
}

func TestNeighbors(t *testing.T) {
	f := newFixture(t, limiter.Config{})

	rec := f.get(t, "/api/neighbors/0")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	require.NoError(t, f.store.Publish(smallSnapshot([]string{"/a", "/b", "/c", "/d"})))

	rec = f.get(t, "/api/neighbors/0?k=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body NeighborsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Idx)
	require.Len(t, body.Neighbors, 1)
	assert.Equal(t, 1, body.Neighbors[0].Idx)
	assert.Equal(t, "a", body.Neighbors[0].Label)
	assert.Equal(t, meta.ImageURL("/b"), body.Neighbors[0].ImgURL)

	rec = f.get(t, "/api/neighbors/2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Neighbors, 2)
	assert.Equal(t, 3, body.Neighbors[0].Idx)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/neighbors/99").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/neighbors/0?k=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/neighbors/0?k=abc").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/neighbors/abc").Code)
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t, limiter.Config{})

	rec := f.get(t, RouteIndex)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "tsne_data")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	assert.Equal(t, http.StatusOK, f.get(t, RouteHealthz).Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, limiter.Config{RPS: 1, Burst: 1})
	require.NoError(t, f.store.Publish(smallSnapshot([]string{"/a", "/b", "/c", "/d"})))

	assert.Equal(t, http.StatusOK, f.get(t, RouteTSNEData).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get(t, RouteTSNEData).Code)
	assert.Equal(t, http.StatusOK, f.get(t, RouteHealthz).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, limiter.Config{})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, RouteTSNEData, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEndToEndScenario(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewPCG(50, 128))
	ds := &dataset.FeatureDataset{}
	for i := 0; i < 50; i++ {
		vec := make([]float64, 128)
		for j := range vec {
			vec[j] = rng.Float64()
		}
		ds.Features = append(ds.Features, vec)
		ds.Labels = append(ds.Labels, fmt.Sprintf("class-%02d", i))
		ds.ImagePaths = append(ds.ImagePaths, filepath.Join(dir, fmt.Sprintf("img %02d.jpg", i)))
		require.NoError(t, os.WriteFile(ds.ImagePaths[i], append([]byte{byte(i)}, jpegBytes...), 0o600))
	}
	bundle := filepath.Join(dir, "bundle.parquet")
	require.NoError(t, dataset.Save(bundle, ds))

	f := newFixture(t, limiter.Config{})
	snap, err := pipeline.Run(context.Background(), pipeline.Config{DatasetPath: bundle, Embedding: embedding.DefaultParams()}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, f.store.Publish(snap))

	rec := f.get(t, RouteTSNEData)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []meta.PointRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 50)

	for i, r := range records {
		assert.Equal(t, i, r.Idx)
		for _, v := range []float64{r.X, r.Y, r.Z} {
			assert.False(t, math.IsNaN(v))
		}
		assert.Contains(t, r.ImgURL, meta.EncodeRef(ds.ImagePaths[i]))

		img := f.get(t, r.ImgURL)
		require.Equal(t, http.StatusOK, img.Code)
		want, err := os.ReadFile(ds.ImagePaths[i])
		require.NoError(t, err)
		assert.Equal(t, want, img.Body.Bytes())
	}
}
