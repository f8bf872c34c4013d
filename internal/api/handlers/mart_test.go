package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/pkg/logger"
)

type fakeReader struct {
	records  []contracts.UnifiedMartRecord
	national []contracts.NationalDailyRow
	run      *contracts.PipelineRun
	err      error

	lastFilter mart.Filter
	lastFrom   time.Time
}

func (f *fakeReader) GetMart(_ context.Context, filter mart.Filter) ([]contracts.UnifiedMartRecord, error) {
	f.lastFilter = filter
	return f.records, f.err
}

func (f *fakeReader) GetRecord(_ context.Context, key string) (*contracts.UnifiedMartRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records {
		if r.Key == key {
			return &r, nil
		}
	}
	return nil, mart.ErrNotFound
}

func (f *fakeReader) GetNational(_ context.Context, from, _ time.Time) ([]contracts.NationalDailyRow, error) {
	f.lastFrom = from
	return f.national, f.err
}

func (f *fakeReader) LatestRun(context.Context) (*contracts.PipelineRun, error) {
	if f.run == nil {
		return nil, mart.ErrNotFound
	}
	return f.run, nil
}

func serve(h *MartHandler, method, path string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/api/mart", h.ListMart)
	r.HandleFunc("/api/mart/{key}", h.GetRecord)
	r.HandleFunc("/api/national", h.GetNational)
	r.HandleFunc("/api/runs/latest", h.GetLatestRun)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func testRecord() contracts.UnifiedMartRecord {
	return contracts.UnifiedMartRecord{
		Key:             "CA202201",
		Jurisdiction:    "CA",
		Year:            2022,
		Week:            1,
		ICUOccupancyPct: contracts.Undefined,
		CaseFatalityPct: contracts.Defined(1.5),
	}
}

func TestListMart(t *testing.T) {
	reader := &fakeReader{records: []contracts.UnifiedMartRecord{testRecord()}}
	h := NewMartHandler(reader, nil, logger.Nop())

	rec := serve(h, "GET", "/api/mart?jurisdiction=ca&from=202152&to=202210&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, mart.Filter{Jurisdiction: "CA", FromYear: 2021, FromWeek: 52, ToYear: 2022, ToWeek: 10, Limit: 5}, reader.lastFilter)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["count"])
	row := body["records"].([]interface{})[0].(map[string]interface{})
	assert.Nil(t, row["icu_occupancy_pct"], "undefined metrics are null")
	assert.Equal(t, 1.5, row["case_fatality_pct"])
}

func TestListMart_EmptyIsArray(t *testing.T) {
	rec := serve(NewMartHandler(&fakeReader{}, nil, logger.Nop()), "GET", "/api/mart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"records":[]}`, rec.Body.String())
}

func TestListMart_BadRequests(t *testing.T) {
	h := NewMartHandler(&fakeReader{}, nil, logger.Nop())
	for _, path := range []string{
		"/api/mart?jurisdiction=C",
		"/api/mart?from=2022",
		"/api/mart?to=202253", // 2022 has 52 weeks
		"/api/mart?limit=-1",
	} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, serve(h, "GET", path).Code)
		})
	}
}

func TestGetRecord(t *testing.T) {
	h := NewMartHandler(&fakeReader{records: []contracts.UnifiedMartRecord{testRecord()}}, nil, logger.Nop())

	rec := serve(h, "GET", "/api/mart/CA202201")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"CA202201"`)

	assert.Equal(t, http.StatusNotFound, serve(h, "GET", "/api/mart/NY202201").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, "GET", "/api/mart/CA202299").Code)
}

func TestGetRecord_StoreError(t *testing.T) {
	h := NewMartHandler(&fakeReader{err: errors.New("boom")}, nil, logger.Nop())
	rec := serve(h, "GET", "/api/mart/CA202201")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestGetNational(t *testing.T) {
	reader := &fakeReader{national: []contracts.NationalDailyRow{
		{Date: time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), NewCase: 10},
		{Date: time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC), Gap: true},
	}}
	h := NewMartHandler(reader, nil, logger.Nop())

	rec := serve(h, "GET", "/api/national?from=2022-01-03")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), reader.lastFrom)

	var resp NationalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.True(t, resp.Rows[1].Gap)

	assert.Equal(t, http.StatusBadRequest, serve(h, "GET", "/api/national?from=01/03/2022").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, "GET", "/api/national?from=2022-02-01&to=2022-01-01").Code)
}

func TestGetLatestRun(t *testing.T) {
	reader := &fakeReader{}
	h := NewMartHandler(reader, nil, logger.Nop())
	assert.Equal(t, http.StatusNotFound, serve(h, "GET", "/api/runs/latest").Code)

	reader.run = &contracts.PipelineRun{RunID: "abc", MartRows: 3}
	rec := serve(h, "GET", "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"abc"`)
}

func TestParseYearWeek(t *testing.T) {
	y, w, err := parseYearWeek("202053")
	require.NoError(t, err)
	assert.Equal(t, 2020, y)
	assert.Equal(t, 53, w)

	_, _, err = parseYearWeek("202153")
	assert.Error(t, err)

	y, w, err = parseYearWeek("")
	require.NoError(t, err)
	assert.Zero(t, y)
	assert.Zero(t, w)
}
