package s0_ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
)

func TestParseGeographyHTML(t *testing.T) {
	geo, err := NewGeographyAdapter("testdata/states.html", GeoFormatHTML).Load(context.Background())
	require.NoError(t, err)

	// 잘못된 코드/좌표 행은 건너뜀
	assert.Equal(t, 3, geo.Len())

	ca, ok := geo.Lookup("CA")
	require.True(t, ok)
	assert.Equal(t, "California", ca.Name)
	assert.InDelta(t, 36.778261, ca.Latitude, 1e-9)
	assert.InDelta(t, -119.417932, ca.Longitude, 1e-9)

	tx, _ := geo.Lookup("TX")
	assert.Equal(t, "Texas", tx.Name)

	_, ok = geo.Lookup("UM")
	assert.False(t, ok)
}

func TestParseGeographyCSV(t *testing.T) {
	geo, err := NewGeographyAdapter("testdata/states.csv", GeoFormatCSV).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, geo.Len())

	ny, ok := geo.Lookup("NY")
	require.True(t, ok)
	assert.Equal(t, "New York", ny.Name)
}

func TestParseGeography_Errors(t *testing.T) {
	_, err := ParseGeographyHTML(strings.NewReader("<table><tr><th>code</th></tr></table>"))
	assert.Error(t, err)

	_, err = ParseGeographyCSV(strings.NewReader("state,latitude\nCA,1\n"))
	assert.Error(t, err)

	_, err = ParseGeographyCSV(strings.NewReader("state,latitude,longitude,name\nCA,1,2,A\nca,3,4,B\n"))
	require.Error(t, err)
	assert.True(t, contracts.IsIntegrityError(err))

	_, err = NewGeographyAdapter("testdata/states.csv", "json").Load(context.Background())
	assert.Error(t, err)
}
