package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/revlift/revlift/internal/analysis"
	"github.com/revlift/revlift/internal/config"
	"github.com/revlift/revlift/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:           ":0",
			Env:            "development",
			MaxUploadBytes: 32 << 20,
		},
		Metrics: config.MetricsConfig{Enabled: false},
		Analysis: config.AnalysisConfig{
			Horizons:             []int{1, 7, 30, 60, 90, 180},
			CorrelationThreshold: 0.85,
			BaselineFactor:       0.10,
			CacheTTL:             time.Hour,
		},
	}
}

func testHandler(store storage.DatasetStore) http.Handler {
	return NewServer(&Dependencies{
		Store:  store,
		Config: testConfig(),
		Logger: zap.NewNop(),
	})
}

// sampleCSV builds an upload where every user activates at a staggered
// start and earns revenue proportional to its index across the horizon
// range.
func sampleCSV(users int) string {
	var b strings.Builder
	b.WriteString("user_id,timestamp,is_activation,value\n")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < users; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		fmt.Fprintf(&b, "u%d,%d,1,%d\n", i, start.Unix(), i+1)
		fmt.Fprintf(&b, "u%d,%d,0,%d\n", i, start.Add(40*24*time.Hour).Unix(), i+1)
		fmt.Fprintf(&b, "u%d,%d,0,%d\n", i, start.Add(170*24*time.Hour).Unix(), i+1)
	}
	return b.String()
}

func multipartBody(t *testing.T, filename, contents string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func uploadDataset(t *testing.T, handler http.Handler, csv string) storage.DatasetMeta {
	t.Helper()
	body, contentType := multipartBody(t, "events.csv", csv)

	req := httptest.NewRequest(http.MethodPost, "/datasets", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var meta storage.DatasetMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	return meta
}

func getJSON(t *testing.T, handler http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealth(t *testing.T) {
	handler := testHandler(nil)

	var resp map[string]string
	rec := getJSON(t, handler, "/health", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestUploadAndMeta(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(12))

	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "events.csv", meta.Name)
	assert.Equal(t, 36, meta.RowCount)
	assert.Equal(t, 12, meta.UserCount)
	assert.Zero(t, meta.ExcludedUsers)

	var fetched storage.DatasetMeta
	rec := getJSON(t, handler, "/datasets/"+meta.ID, &fetched)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, meta.ID, fetched.ID)
	assert.Equal(t, meta.UserCount, fetched.UserCount)
}

func TestUploadMissingColumn(t *testing.T) {
	handler := testHandler(nil)
	body, contentType := multipartBody(t, "bad.csv", "user_id,timestamp,value\nu1,1700000000,5\n")

	req := httptest.NewRequest(http.MethodPost, "/datasets", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "is_activation")
}

func TestUploadMalformedRow(t *testing.T) {
	handler := testHandler(nil)
	csv := "user_id,timestamp,is_activation,value\nu1,garbage,1,5\n"
	body, contentType := multipartBody(t, "bad.csv", csv)

	req := httptest.NewRequest(http.MethodPost, "/datasets", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListDatasets(t *testing.T) {
	handler := testHandler(nil)
	uploadDataset(t, handler, sampleCSV(3))
	uploadDataset(t, handler, sampleCSV(4))

	var list []storage.DatasetMeta
	rec := getJSON(t, handler, "/datasets", &list)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 2)
}

func TestAggregatesEndpoint(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(8))

	var table struct {
		Horizons []int       `json:"horizons"`
		Users    []string    `json:"users"`
		Rows     [][]float64 `json:"rows"`
	}
	rec := getJSON(t, handler, "/datasets/"+meta.ID+"/aggregates", &table)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int{1, 7, 30, 60, 90, 180}, table.Horizons)
	assert.Len(t, table.Users, 8)
	// u0: activation value 1 in D1, second event at day 40 lands in
	// D60, third at day 170 in D180.
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 3}, table.Rows[0])
}

func TestCorrelationEndpoint(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(10))

	var resp struct {
		Matrix    analysis.CorrelationMatrix `json:"matrix"`
		Threshold float64                    `json:"threshold"`
		Selection analysis.HorizonSelection  `json:"selection"`
	}
	rec := getJSON(t, handler, "/datasets/"+meta.ID+"/correlation", &resp)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0.85, resp.Threshold)
	require.True(t, resp.Selection.Found)
	// All columns rank users identically, so the longest non-max
	// horizon qualifies.
	assert.Equal(t, 90, resp.Selection.Horizon)
	assert.InDelta(t, 1.0, resp.Selection.Correlation, 1e-9)
}

func TestCurveEndpoint(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(5))

	var resp struct {
		Metric string                 `json:"metric"`
		Points []analysis.CurvePoint  `json:"points"`
	}
	rec := getJSON(t, handler, "/datasets/"+meta.ID+"/curve?metric=conversions", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conversions", resp.Metric)
	require.Len(t, resp.Points, 6)
	assert.Equal(t, 100.0, resp.Points[0].Value)

	rec = getJSON(t, handler, "/datasets/"+meta.ID+"/curve?metric=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpliftEndpoint(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(10))

	var est analysis.UpliftEstimate
	path := "/datasets/" + meta.ID + "/uplift?spend_bracket=" +
		"%24100k%20-%20%24300k&roas_window=D90&regular_roas=0.5"
	rec := getJSON(t, handler, path, &est)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 180, est.MaxHorizon)
	assert.Equal(t, 0.5, est.RegularROAS)
	// Perfect correlation lands in the >=0.8 bucket: factor 0.
	assert.Zero(t, est.CorrelationFactor)
	assert.InDelta(t, 0.5*1.10, est.Min.ProjectedROAS, 1e-9)
	assert.InDelta(t, 0.5*1.13, est.Max.ProjectedROAS, 1e-9)
}

func TestUpliftEndpointValidation(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(5))

	rec := getJSON(t, handler, "/datasets/"+meta.ID+"/uplift?spend_bracket=bogus&roas_window=D90&regular_roas=0.5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = getJSON(t, handler, "/datasets/"+meta.ID+"/uplift?spend_bracket=Less%20than%20%24100k&roas_window=D90&regular_roas=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRerankingEndpoint(t *testing.T) {
	handler := testHandler(nil)
	meta := uploadDataset(t, handler, sampleCSV(20))

	var m analysis.TransitionMatrix
	rec := getJSON(t, handler, "/datasets/"+meta.ID+"/reranking?reference=7&lookahead=180", &m)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 7, m.Reference)
	assert.Equal(t, 180, m.Lookahead)
	assert.Equal(t, 20, m.Users)

	rec = getJSON(t, handler, "/datasets/"+meta.ID+"/reranking?reference=5&lookahead=180", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownDataset(t *testing.T) {
	handler := testHandler(nil)
	rec := getJSON(t, handler, "/datasets/no-such-id/aggregates", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRestoreFromStore(t *testing.T) {
	store := storage.NewInMemoryDatasetStore()

	// Upload through one server instance, read through a fresh one
	// sharing only the store.
	first := testHandler(store)
	meta := uploadDataset(t, first, sampleCSV(6))

	second := testHandler(store)
	var table struct {
		Users []string `json:"users"`
	}
	rec := getJSON(t, second, "/datasets/"+meta.ID+"/aggregates", &table)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, table.Users, 6)
}

func TestTemplatesEndpoint(t *testing.T) {
	handler := testHandler(nil)

	var resp map[string]string
	rec := getJSON(t, handler, "/templates/firebase?table=proj.ds.events&user_id=uid", &resp)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "bigquery", resp["dialect"])
	assert.Contains(t, resp["sql"], "`proj.ds.events`")
	assert.Contains(t, resp["sql"], "uid AS user_id")
	assert.NotContains(t, resp["sql"], "{table}")

	rec = getJSON(t, handler, "/templates/shopify", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "postgresql", resp["dialect"])
	assert.Contains(t, resp["sql"], `"postgres"."zz_shopify_shopify"."stg_shopify__order"`)

	rec = getJSON(t, handler, "/templates/appsflyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateSampling(t *testing.T) {
	handler := testHandler(nil)

	var resp map[string]string
	rec := getJSON(t, handler, "/templates/firebase?sample_percent=25", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, resp["sql"], "RAND() < 0.25")

	rec = getJSON(t, handler, "/templates/firebase?sample_percent=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
