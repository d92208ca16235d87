package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := model.Batch{Ratios: []model.Ratio{{
		MunicipalityCode: "312600", RateYear: 2024, MunicipalityName: "Camillus",
		CountyName: "Onondaga", MunicipalityType: "Town", Ratio: decimal.RequireFromString("0.88"),
	}}}
	for _, p := range []struct{ id, zip, class string }{
		{"312600|100.-1-1", "13031", "210"},
		{"312600|100.-1-2", "13031", "220"},
		{"312600|200.-1-1", "13209", "210"},
	} {
		b.Properties = append(b.Properties, model.Property{
			ID: p.id, SwisCode: "312600", PrintKeyCode: p.id[7:], MunicipalityCode: "312600",
			MunicipalityName: "Camillus", CountyName: "Onondaga", SchoolDistrictCode: "312601",
			Zip: p.zip, LastRollYear: 2024,
		})
		b.Assessments = append(b.Assessments, model.Assessment{
			PropertyID: p.id, RollYear: 2024, PropertyClass: p.class,
			FullMarketValue: 100000, AssessmentTotal: 88000,
		})
	}
	require.NoError(t, s.WriteBatch(context.Background(), b))
	return s
}

func serve(t *testing.T, r Reader, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandler(r), Options{
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("cnyre_up 1\n"))
		}),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListProperties_Filters(t *testing.T) {
	s := seededStore(t)

	rec := serve(t, s, "/api/properties?zip=13031&class=210")
	require.Equal(t, http.StatusOK, rec.Code)

	var list PropertyList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "312600|100.-1-1", list.Items[0].Property.ID)
	assert.Equal(t, 100, list.Limit)
}

func TestListProperties_CommaListAndPaging(t *testing.T) {
	s := seededStore(t)

	rec := serve(t, s, "/api/properties?class=210,220&limit=2&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var list PropertyList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "312600|100.-1-2", list.Items[0].Property.ID)
	assert.Equal(t, "312600|200.-1-1", list.Items[1].Property.ID)
}

func TestListProperties_EmptyResultIsArray(t *testing.T) {
	s := seededStore(t)

	rec := serve(t, s, "/api/properties?zip=99999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"count":0,"limit":100,"offset":0}`, rec.Body.String())
}

func TestListProperties_BadPagination(t *testing.T) {
	s := seededStore(t)
	for _, q := range []string{"limit=0", "limit=1001", "limit=x", "offset=-1"} {
		rec := serve(t, s, "/api/properties?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetProperty(t *testing.T) {
	s := seededStore(t)

	rec := serve(t, s, "/api/properties/"+url.PathEscape("312600|100.-1-2"))
	require.Equal(t, http.StatusOK, rec.Code)

	var d model.PropertyDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "312600|100.-1-2", d.Property.ID)
	require.Len(t, d.Assessments, 1)
	assert.Equal(t, "220", d.Assessments[0].PropertyClass)
}

func TestGetProperty_NotFound(t *testing.T) {
	s := seededStore(t)
	rec := serve(t, s, "/api/properties/"+url.PathEscape("312600|nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := seededStore(t)

	rec := serve(t, s, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, s.RecordRun(context.Background(),
		store.RunRecord{RunID: "run-1", Status: store.RunSucceeded, Report: []byte(`{}`)}, nil))
	rec = serve(t, s, "/api/health")
	assert.JSONEq(t, `{"status":"ok","last_run_id":"run-1","last_run_status":"succeeded"}`, rec.Body.String())
}

type downStore struct{ Reader }

func (downStore) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealth_Unavailable(t *testing.T) {
	rec := serve(t, downStore{}, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	rec := serve(t, downStore{}, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cnyre_up 1\n", rec.Body.String())
}

func TestCORS_AllowedOrigin(t *testing.T) {
	s := seededStore(t)
	router := NewRouter(NewHandler(s), Options{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
