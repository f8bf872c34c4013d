package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/epiweek"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/redis"
)

// MartReader is the read side of the mart repository
type MartReader interface {
	GetMart(ctx context.Context, f mart.Filter) ([]contracts.UnifiedMartRecord, error)
	GetRecord(ctx context.Context, key string) (*contracts.UnifiedMartRecord, error)
	GetNational(ctx context.Context, from, to time.Time) ([]contracts.NationalDailyRow, error)
	LatestRun(ctx context.Context) (*contracts.PipelineRun, error)
}

// MartHandler serves the mart read-only
// ⭐ SSOT: 마트 조회 API 핸들러는 이 구조체에서만
type MartHandler struct {
	reader MartReader
	cache  *redis.Cache // nil = no caching
	logger *logger.Logger
}

// NewMartHandler creates a new mart handler
func NewMartHandler(reader MartReader, cache *redis.Cache, log *logger.Logger) *MartHandler {
	return &MartHandler{
		reader: reader,
		cache:  cache,
		logger: log,
	}
}

// MartResponse wraps a mart listing
type MartResponse struct {
	Count   int                           `json:"count"`
	Records []contracts.UnifiedMartRecord `json:"records"`
}

// NationalResponse wraps a national series window
type NationalResponse struct {
	Count int                          `json:"count"`
	Rows  []contracts.NationalDailyRow `json:"rows"`
}

// ListMart returns mart rows
// GET /api/mart?jurisdiction=CA&from=202201&to=202210&limit=100
func (h *MartHandler) ListMart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f mart.Filter
	if j := q.Get("jurisdiction"); j != "" {
		f.Jurisdiction = epiweek.NormalizeCode(j)
		if !epiweek.ValidCode(f.Jurisdiction) {
			respondError(w, http.StatusBadRequest, "Invalid jurisdiction code")
			return
		}
	}

	var err error
	if f.FromYear, f.FromWeek, err = parseYearWeek(q.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'from' week (expected YYYYWW)")
		return
	}
	if f.ToYear, f.ToWeek, err = parseYearWeek(q.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'to' week (expected YYYYWW)")
		return
	}
	if l := q.Get("limit"); l != "" {
		if f.Limit, err = strconv.Atoi(l); err != nil || f.Limit < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	cacheKey := redis.MartKey(f.Jurisdiction, f.FromYear, f.FromWeek, f.ToYear, f.ToWeek)
	if f.Limit > 0 {
		cacheKey += ":" + strconv.Itoa(f.Limit)
	}

	var resp MartResponse
	if h.cached(r.Context(), cacheKey, &resp) {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	records, err := h.reader.GetMart(r.Context(), f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list mart")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve mart")
		return
	}
	if records == nil {
		records = []contracts.UnifiedMartRecord{}
	}

	resp = MartResponse{Count: len(records), Records: records}
	h.store(r.Context(), cacheKey, resp)
	respondJSON(w, http.StatusOK, resp)
}

// GetRecord returns one jurisdiction-week row
// GET /api/mart/{key}
func (h *MartHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["key"]
	key, err := epiweek.ParseKey(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := redis.MartRecordKey(key.String())
	var record contracts.UnifiedMartRecord
	if h.cached(r.Context(), cacheKey, &record) {
		respondJSON(w, http.StatusOK, record)
		return
	}

	found, err := h.reader.GetRecord(r.Context(), key.String())
	if errors.Is(err, mart.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("No mart row for %s", key))
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("key", key.String()).Error("Failed to get mart record")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve mart record")
		return
	}

	h.store(r.Context(), cacheKey, found)
	respondJSON(w, http.StatusOK, found)
}

// GetNational returns the national daily series
// GET /api/national?from=2022-01-01&to=2022-03-31
func (h *MartHandler) GetNational(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := parseDate(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'from' date format (expected YYYY-MM-DD)")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'to' date format (expected YYYY-MM-DD)")
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		respondError(w, http.StatusBadRequest, "'to' is before 'from'")
		return
	}

	cacheKey := redis.NationalKey(q.Get("from"), q.Get("to"))
	var resp NationalResponse
	if h.cached(r.Context(), cacheKey, &resp) {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	rows, err := h.reader.GetNational(r.Context(), from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get national series")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve national series")
		return
	}
	if rows == nil {
		rows = []contracts.NationalDailyRow{}
	}

	resp = NationalResponse{Count: len(rows), Rows: rows}
	h.store(r.Context(), cacheKey, resp)
	respondJSON(w, http.StatusOK, resp)
}

// GetLatestRun returns the audit record of the last stored run
// GET /api/runs/latest
func (h *MartHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	var run contracts.PipelineRun
	if h.cached(r.Context(), redis.LatestRunKey(), &run) {
		respondJSON(w, http.StatusOK, run)
		return
	}

	latest, err := h.reader.LatestRun(r.Context())
	if errors.Is(err, mart.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No pipeline run stored yet")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		return
	}

	h.store(r.Context(), redis.LatestRunKey(), latest)
	respondJSON(w, http.StatusOK, latest)
}

// cached reads a cached response; cache errors only cost a DB round trip
func (h *MartHandler) cached(ctx context.Context, key string, dest interface{}) bool {
	if h.cache == nil {
		return false
	}
	hit, err := h.cache.Get(ctx, key, dest)
	if err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		return false
	}
	return hit
}

func (h *MartHandler) store(ctx context.Context, key string, value interface{}) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, key, value); err != nil {
		h.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// parseYearWeek parses "YYYYWW"; empty means unbounded
func parseYearWeek(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	if len(s) != 6 {
		return 0, 0, fmt.Errorf("week %q: expected YYYYWW", s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, 0, err
	}
	week, err := strconv.Atoi(s[4:])
	if err != nil {
		return 0, 0, err
	}
	if week < 1 || week > epiweek.WeeksInYear(year) {
		return 0, 0, fmt.Errorf("week %q: year %d has no week %d", s, year, week)
	}
	return year, week, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
