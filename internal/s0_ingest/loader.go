package s0_ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipelineconfig"
)

// Snapshot is every input the core needs for one run
type Snapshot struct {
	Tables    map[contracts.Source]*contracts.ObservationTable
	Geography contracts.GeoTable
}

// Loader reads all source files of a data directory
// ⭐ SSOT: S0 입력 (코어는 파일을 직접 읽지 않음)
type Loader struct {
	cfg     *pipelineconfig.Config
	dataDir string
	log     zerolog.Logger
}

// NewLoader creates a new Loader
func NewLoader(cfg *pipelineconfig.Config, dataDir string, log zerolog.Logger) *Loader {
	return &Loader{
		cfg:     cfg,
		dataDir: dataDir,
		log:     log.With().Str("component", "s0_ingest").Logger(),
	}
}

// Adapters returns one adapter per fact source
func (l *Loader) Adapters() ([]contracts.SourceAdapter, error) {
	adapters := make([]contracts.SourceAdapter, 0, 3)
	for _, source := range contracts.FactSources() {
		rules, err := l.cfg.Source(source)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, NewCSVAdapter(source, rules, filepath.Join(l.dataDir, rules.File)))
	}
	return adapters, nil
}

// Load reads the three fact tables and the geography lookup
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	adapters, err := l.Adapters()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Tables: make(map[contracts.Source]*contracts.ObservationTable, len(adapters))}
	for _, a := range adapters {
		table, err := a.Load(ctx)
		if err != nil {
			return nil, err
		}
		snap.Tables[a.Source()] = table

		l.log.Info().
			Str("source", string(a.Source())).
			Int("rows", len(table.Rows)).
			Strs("columns", table.Columns).
			Msg("source loaded")
	}

	geoPath := filepath.Join(l.dataDir, l.cfg.Geography.File)
	geo, err := NewGeographyAdapter(geoPath, l.cfg.Geography.Format).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geography: %w", err)
	}
	snap.Geography = geo

	l.log.Info().Int("jurisdictions", geo.Len()).Msg("geography loaded")
	return snap, nil
}
