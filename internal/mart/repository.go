package mart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/epimart/internal/contracts"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Repository implements contracts.MartStore on PostgreSQL
// ⭐ SSOT: mart 스키마 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new mart repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.MartStore = (*Repository)(nil)

const insertRunSQL = `
	INSERT INTO mart.runs (
		run_id, config_hash, started_at, finished_at, mart_rows, national_rows,
		gap_days, coverage_ok, worst_drop, report
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (run_id) DO UPDATE SET
		finished_at = EXCLUDED.finished_at,
		mart_rows = EXCLUDED.mart_rows,
		national_rows = EXCLUDED.national_rows,
		gap_days = EXCLUDED.gap_days,
		coverage_ok = EXCLUDED.coverage_ok,
		worst_drop = EXCLUDED.worst_drop,
		report = EXCLUDED.report
`

const upsertMartSQL = `
	INSERT INTO mart.weekly (
		key, jurisdiction, report_date, iso_year, iso_week, week_start,
		tot_cases, new_case, tot_death, new_death,
		vaccination_date, distributed, administered, administered_dose1, series_complete,
		administered_pfizer, administered_moderna, administered_janssen, administered_novavax, administered_unk_manuf,
		total_beds, inpatient_beds_used, total_icu_beds, icu_beds_used, reporting_facilities,
		name, latitude, longitude,
		icu_occupancy_pct, inpatient_occupancy_pct, case_fatality_pct, run_id
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
	)
	ON CONFLICT (key) DO UPDATE SET
		report_date = EXCLUDED.report_date,
		week_start = EXCLUDED.week_start,
		tot_cases = EXCLUDED.tot_cases,
		new_case = EXCLUDED.new_case,
		tot_death = EXCLUDED.tot_death,
		new_death = EXCLUDED.new_death,
		vaccination_date = EXCLUDED.vaccination_date,
		distributed = EXCLUDED.distributed,
		administered = EXCLUDED.administered,
		administered_dose1 = EXCLUDED.administered_dose1,
		series_complete = EXCLUDED.series_complete,
		administered_pfizer = EXCLUDED.administered_pfizer,
		administered_moderna = EXCLUDED.administered_moderna,
		administered_janssen = EXCLUDED.administered_janssen,
		administered_novavax = EXCLUDED.administered_novavax,
		administered_unk_manuf = EXCLUDED.administered_unk_manuf,
		total_beds = EXCLUDED.total_beds,
		inpatient_beds_used = EXCLUDED.inpatient_beds_used,
		total_icu_beds = EXCLUDED.total_icu_beds,
		icu_beds_used = EXCLUDED.icu_beds_used,
		reporting_facilities = EXCLUDED.reporting_facilities,
		name = EXCLUDED.name,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		icu_occupancy_pct = EXCLUDED.icu_occupancy_pct,
		inpatient_occupancy_pct = EXCLUDED.inpatient_occupancy_pct,
		case_fatality_pct = EXCLUDED.case_fatality_pct,
		run_id = EXCLUDED.run_id,
		updated_at = NOW()
`

const upsertNationalSQL = `
	INSERT INTO mart.national_daily (
		report_date, tot_cases, new_case, tot_death, new_death,
		reporting_jurisdictions, gap, projected, forecast_new_case, run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (report_date) DO UPDATE SET
		tot_cases = EXCLUDED.tot_cases,
		new_case = EXCLUDED.new_case,
		tot_death = EXCLUDED.tot_death,
		new_death = EXCLUDED.new_death,
		reporting_jurisdictions = EXCLUDED.reporting_jurisdictions,
		gap = EXCLUDED.gap,
		projected = EXCLUDED.projected,
		forecast_new_case = EXCLUDED.forecast_new_case,
		run_id = EXCLUDED.run_id,
		updated_at = NOW()
`

// Publish stores one run's audit record, mart and national series in a single
// transaction. Mart keys and national dates written by earlier runs but absent
// from this one are deleted, so the stored tables always equal one run's output.
// ⭐ SSOT: 저장된 마트 = 마지막 성공 실행 결과 (부분 저장 없음)
func (r *Repository) Publish(ctx context.Context, run *contracts.PipelineRun, records []contracts.UnifiedMartRecord, national []contracts.NationalDailyRow) error {
	report, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(insertRunSQL,
		run.RunID, run.ConfigHash, run.StartedAt, run.FinishedAt, run.MartRows, run.NationalRows,
		run.GapDays, run.Coverage.Passed, run.Coverage.WorstRate, report,
	)
	queueMart(batch, run.RunID, records)
	batch.Queue(`DELETE FROM mart.weekly WHERE run_id <> $1`, run.RunID)
	queueNational(batch, run.RunID, national)
	// 이전 실행의 날짜(예측 전용 행 포함)는 새 시계열로 대체
	batch.Queue(`DELETE FROM mart.national_daily WHERE run_id <> $1`, run.RunID)

	return r.sendBatch(ctx, batch, nil)
}

// SaveNational replaces the projected tail and upserts every series row
func (r *Repository) SaveNational(ctx context.Context, runID string, rows []contracts.NationalDailyRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	queueNational(batch, runID, rows)

	// 이전 실행의 예측 전용 행은 새 시계열로 대체
	return r.sendBatch(ctx, batch, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM mart.national_daily WHERE projected`)
		return err
	})
}

func queueMart(batch *pgx.Batch, runID string, records []contracts.UnifiedMartRecord) {
	for _, m := range records {
		batch.Queue(upsertMartSQL,
			m.Key, m.Jurisdiction, m.Date, m.Year, m.Week, m.WeekStart,
			m.TotCases, m.NewCase, m.TotDeath, m.NewDeath,
			m.VaccinationDate, m.Distributed, m.Administered, m.AdministeredDose1, m.SeriesComplete,
			m.AdministeredPfizer, m.AdministeredModerna, m.AdministeredJanssen, m.AdministeredNovavax, m.AdministeredUnknown,
			m.TotalBeds, m.InpatientBedsUsed, m.TotalICUBeds, m.ICUBedsUsed, m.ReportingFacilities,
			m.Name, m.Latitude, m.Longitude,
			m.ICUOccupancyPct.Ptr(), m.InpatientOccupancyPct.Ptr(), m.CaseFatalityPct.Ptr(), runID,
		)
	}
}

func queueNational(batch *pgx.Batch, runID string, rows []contracts.NationalDailyRow) {
	for _, n := range rows {
		batch.Queue(upsertNationalSQL,
			n.Date, n.TotCases, n.NewCase, n.TotDeath, n.NewDeath,
			n.ReportingJurisdictions, n.Gap, n.Projected, n.Forecast.Ptr(), runID,
		)
	}
}

// sendBatch runs an optional prelude and the batch inside one transaction
func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, prelude func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if prelude != nil {
		if err := prelude(tx); err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const martColumns = `
	key, jurisdiction, report_date, iso_year, iso_week, week_start,
	tot_cases, new_case, tot_death, new_death,
	vaccination_date, distributed, administered, administered_dose1, series_complete,
	administered_pfizer, administered_moderna, administered_janssen, administered_novavax, administered_unk_manuf,
	total_beds, inpatient_beds_used, total_icu_beds, icu_beds_used, reporting_facilities,
	name, latitude, longitude,
	icu_occupancy_pct, inpatient_occupancy_pct, case_fatality_pct`

func scanMart(row pgx.Row) (*contracts.UnifiedMartRecord, error) {
	var (
		m                   contracts.UnifiedMartRecord
		weekStart           *time.Time
		icu, inpatient, cfr *float64
	)
	err := row.Scan(
		&m.Key, &m.Jurisdiction, &m.Date, &m.Year, &m.Week, &weekStart,
		&m.TotCases, &m.NewCase, &m.TotDeath, &m.NewDeath,
		&m.VaccinationDate, &m.Distributed, &m.Administered, &m.AdministeredDose1, &m.SeriesComplete,
		&m.AdministeredPfizer, &m.AdministeredModerna, &m.AdministeredJanssen, &m.AdministeredNovavax, &m.AdministeredUnknown,
		&m.TotalBeds, &m.InpatientBedsUsed, &m.TotalICUBeds, &m.ICUBedsUsed, &m.ReportingFacilities,
		&m.Name, &m.Latitude, &m.Longitude,
		&icu, &inpatient, &cfr,
	)
	if err != nil {
		return nil, err
	}
	// 업그레이드 직후 행은 week_start가 NULL
	if weekStart != nil {
		m.WeekStart = *weekStart
	}
	m.ICUOccupancyPct = contracts.MetricFromPtr(icu)
	m.InpatientOccupancyPct = contracts.MetricFromPtr(inpatient)
	m.CaseFatalityPct = contracts.MetricFromPtr(cfr)
	return &m, nil
}

// GetRecord returns one mart row by its canonical key
func (r *Repository) GetRecord(ctx context.Context, key string) (*contracts.UnifiedMartRecord, error) {
	query := `SELECT ` + martColumns + ` FROM mart.weekly WHERE key = $1`

	m, err := scanMart(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mart record %s: %w", key, err)
	}
	return m, nil
}

// Filter narrows mart queries. Zero values mean unbounded.
type Filter struct {
	Jurisdiction string
	FromYear     int
	FromWeek     int
	ToYear       int
	ToWeek       int
	Limit        int
}

// GetMart lists mart rows ordered by key
func (r *Repository) GetMart(ctx context.Context, f Filter) ([]contracts.UnifiedMartRecord, error) {
	query := `
		SELECT ` + martColumns + `
		FROM mart.weekly
		WHERE ($1 = '' OR jurisdiction = $1)
		  AND ($2 = 0 OR iso_year * 100 + iso_week >= $2)
		  AND ($3 = 0 OR iso_year * 100 + iso_week <= $3)
		ORDER BY key
		LIMIT $4
	`

	limit := f.Limit
	if limit <= 0 {
		limit = 10000
	}
	from := f.FromYear*100 + f.FromWeek
	to := f.ToYear*100 + f.ToWeek

	rows, err := r.pool.Query(ctx, query, f.Jurisdiction, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query mart: %w", err)
	}
	defer rows.Close()

	var records []contracts.UnifiedMartRecord
	for rows.Next() {
		m, err := scanMart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mart: %w", err)
		}
		records = append(records, *m)
	}
	return records, rows.Err()
}

// GetNational returns the national series between two dates (zero = unbounded)
func (r *Repository) GetNational(ctx context.Context, from, to time.Time) ([]contracts.NationalDailyRow, error) {
	query := `
		SELECT report_date, tot_cases, new_case, tot_death, new_death,
		       reporting_jurisdictions, gap, projected, forecast_new_case
		FROM mart.national_daily
		WHERE ($1::date IS NULL OR report_date >= $1)
		  AND ($2::date IS NULL OR report_date <= $2)
		ORDER BY report_date
	`

	rows, err := r.pool.Query(ctx, query, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query national series: %w", err)
	}
	defer rows.Close()

	var series []contracts.NationalDailyRow
	for rows.Next() {
		var (
			n        contracts.NationalDailyRow
			forecast *float64
		)
		if err := rows.Scan(
			&n.Date, &n.TotCases, &n.NewCase, &n.TotDeath, &n.NewDeath,
			&n.ReportingJurisdictions, &n.Gap, &n.Projected, &forecast,
		); err != nil {
			return nil, fmt.Errorf("scan national row: %w", err)
		}
		n.Forecast = contracts.MetricFromPtr(forecast)
		series = append(series, n)
	}
	return series, rows.Err()
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// LatestRun returns the most recent stored run
func (r *Repository) LatestRun(ctx context.Context) (*contracts.PipelineRun, error) {
	query := `SELECT report FROM mart.runs ORDER BY finished_at DESC LIMIT 1`

	var report []byte
	err := r.pool.QueryRow(ctx, query).Scan(&report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}

	var run contracts.PipelineRun
	if err := json.Unmarshal(report, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// JurisdictionCoverage summarizes stored weeks for one jurisdiction
type JurisdictionCoverage struct {
	Jurisdiction string
	Weeks        int
	FirstKey     string
	LastKey      string
	UndefinedICU int
	UndefinedCFR int
}

// Coverage lists stored weeks per jurisdiction
func (r *Repository) Coverage(ctx context.Context) ([]JurisdictionCoverage, error) {
	query := `
		SELECT jurisdiction, COUNT(*), MIN(key), MAX(key),
		       COUNT(*) FILTER (WHERE icu_occupancy_pct IS NULL),
		       COUNT(*) FILTER (WHERE case_fatality_pct IS NULL)
		FROM mart.weekly
		GROUP BY jurisdiction
		ORDER BY jurisdiction
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	var out []JurisdictionCoverage
	for rows.Next() {
		var c JurisdictionCoverage
		if err := rows.Scan(&c.Jurisdiction, &c.Weeks, &c.FirstKey, &c.LastKey, &c.UndefinedICU, &c.UndefinedCFR); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
