package s0_ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/epiweek"
)

// Geography formats
const (
	GeoFormatCSV  = "csv"
	GeoFormatHTML = "html"
)

// geography columns: state | latitude | longitude | name
var geoColumns = []string{"state", "latitude", "longitude", "name"}

// GeographyAdapter loads the static jurisdiction lookup
type GeographyAdapter struct {
	path   string
	format string
}

// NewGeographyAdapter creates a geography loader for a CSV file or a saved HTML page
func NewGeographyAdapter(path, format string) *GeographyAdapter {
	return &GeographyAdapter{path: path, format: format}
}

// Load reads the lookup table
func (a *GeographyAdapter) Load(ctx context.Context) (contracts.GeoTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("open geography: %w", err)
	}
	defer f.Close()

	switch a.format {
	case GeoFormatCSV:
		return ParseGeographyCSV(f)
	case GeoFormatHTML:
		return ParseGeographyHTML(f)
	}
	return nil, fmt.Errorf("unknown geography format %q", a.format)
}

// ParseGeographyCSV reads state,latitude,longitude,name rows
func ParseGeographyCSV(r io.Reader) (contracts.GeoTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read geography header: %w", err)
	}
	idx, err := geoIndex(header)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read geography: %w", err)
		}
		rows = append(rows, record)
	}
	return buildGeoTable(rows, idx)
}

// ParseGeographyHTML reads the first table whose header carries the geography columns
func ParseGeographyHTML(r io.Reader) (contracts.GeoTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse geography html: %w", err)
	}

	var (
		idx  map[string]int
		rows [][]string
	)

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var header []string
		table.Find("tr").First().Find("th,td").Each(func(_ int, c *goquery.Selection) {
			header = append(header, c.Text())
		})
		found, err := geoIndex(header)
		if err != nil {
			return true // 다음 테이블
		}
		idx = found

		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return
			}
			var cells []string
			row.Find("td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, c.Text())
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		return false
	})

	if idx == nil {
		return nil, fmt.Errorf("no table with columns %s", strings.Join(geoColumns, ", "))
	}
	return buildGeoTable(rows, idx)
}

func geoIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(geoColumns))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range geoColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("geography lacks column %q", col)
		}
	}
	return idx, nil
}

// buildGeoTable skips rows with an unkeyable code or unparsable coordinates
func buildGeoTable(rows [][]string, idx map[string]int) (contracts.GeoTable, error) {
	geo := make(contracts.GeoTable, len(rows))
	for _, row := range rows {
		code := epiweek.NormalizeCode(cell(row, idx["state"]))
		if !epiweek.ValidCode(code) {
			continue
		}
		lat, err := strconv.ParseFloat(cell(row, idx["latitude"]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(cell(row, idx["longitude"]), 64)
		if err != nil {
			continue
		}
		if _, dup := geo[code]; dup {
			return nil, contracts.NewIntegrityError(contracts.StageIngest, contracts.SourceGeography,
				contracts.RuleDuplicateKey, "jurisdiction %s listed twice", code)
		}
		geo[code] = contracts.GeoPoint{
			Jurisdiction: code,
			Name:         cell(row, idx["name"]),
			Latitude:     lat,
			Longitude:    lon,
		}
	}
	if len(geo) == 0 {
		return nil, fmt.Errorf("geography table has no usable rows")
	}
	return geo, nil
}
