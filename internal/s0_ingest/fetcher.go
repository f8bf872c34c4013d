package s0_ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipelineconfig"
	"github.com/wonny/epimart/pkg/httputil"
	"github.com/wonny/epimart/pkg/logger"
)

// FetchResult is the outcome of downloading one source
type FetchResult struct {
	Source contracts.Source
	Path   string
	Bytes  int64
	Error  error
}

// Fetcher downloads source snapshots into a data directory
// ⭐ SSOT: 원격 데이터 수집은 이 타입에서만
type Fetcher struct {
	client  *httputil.Client
	cfg     *pipelineconfig.Config
	dataDir string
	logger  *logger.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(client *httputil.Client, cfg *pipelineconfig.Config, dataDir string, log *logger.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		dataDir: dataDir,
		logger:  log.WithField("module", "fetcher"),
	}
}

type fetchTarget struct {
	source contracts.Source
	url    string
	file   string
}

func (f *Fetcher) targets() ([]fetchTarget, error) {
	var targets []fetchTarget
	for _, source := range contracts.FactSources() {
		rules, err := f.cfg.Source(source)
		if err != nil {
			return nil, err
		}
		if rules.URL == "" {
			continue
		}
		targets = append(targets, fetchTarget{source: source, url: rules.URL, file: rules.File})
	}
	if f.cfg.Geography.URL != "" {
		targets = append(targets, fetchTarget{
			source: contracts.SourceGeography,
			url:    f.cfg.Geography.URL,
			file:   f.cfg.Geography.File,
		})
	}
	return targets, nil
}

// FetchAll downloads every configured source concurrently.
// Each file is written to a temp name and renamed, so a failed download never
// replaces the previous snapshot.
func (f *Fetcher) FetchAll(ctx context.Context) ([]FetchResult, error) {
	targets, err := f.targets()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	f.logger.WithFields(map[string]interface{}{
		"sources":  len(targets),
		"data_dir": f.dataDir,
	}).Info("Starting source download")

	results := make([]FetchResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t fetchTarget) {
			defer wg.Done()
			results[i] = f.fetch(ctx, t)
		}(i, t)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			f.logger.WithError(r.Error).WithField("source", r.Source).Error("Download failed")
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"success": len(results) - failed,
		"failed":  failed,
	}).Info("Source download completed")

	if failed > 0 {
		return results, fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return results, nil
}

func (f *Fetcher) fetch(ctx context.Context, t fetchTarget) FetchResult {
	result := FetchResult{Source: t.source, Path: filepath.Join(f.dataDir, t.file)}

	resp, err := f.client.Get(ctx, t.url)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(f.dataDir, "."+t.file+".*")
	if err != nil {
		result.Error = fmt.Errorf("create temp file: %w", err)
		return result
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		result.Error = fmt.Errorf("write %s: %w", t.file, err)
		return result
	}

	if err := os.Rename(tmp.Name(), result.Path); err != nil {
		result.Error = fmt.Errorf("rename %s: %w", t.file, err)
		return result
	}

	result.Bytes = n
	f.logger.WithFields(map[string]interface{}{
		"source": t.source,
		"bytes":  n,
	}).Debug("Downloaded")
	return result
}
