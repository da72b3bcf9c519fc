package sentinel2

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tileXML = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<n1:Level-1C_Tile_ID xmlns:n1="https://psd-14.sentinel2.eo.esa.int/PSD/S2_PDI_Level-1C_Tile_Metadata.xsd">
  <n1:General_Info>
    <TILE_ID metadataLevel="Brief">S2A_OPER_MSI_L1C_TL_SGS__20200714T121049_A026354_T32UNG_N02.09</TILE_ID>
    <DATASTRIP_ID metadataLevel="Standard">S2A_OPER_MSI_L1C_DS_SGS__20200714T121049_S20200714T103026_N02.09</DATASTRIP_ID>
    <SENSING_TIME metadataLevel="Standard">2020-07-14T10:30:26.024Z</SENSING_TIME>
  </n1:General_Info>
  <n1:Geometric_Info>
    <Tile_Geocoding metadataLevel="Brief">
      <HORIZONTAL_CS_NAME>WGS84 / UTM zone 32N</HORIZONTAL_CS_NAME>
      <HORIZONTAL_CS_CODE>EPSG:32632</HORIZONTAL_CS_CODE>
      <Size resolution="10">
        <NROWS>10980</NROWS>
        <NCOLS>10970</NCOLS>
      </Size>
      <Size resolution="20">
        <NROWS>5490</NROWS>
        <NCOLS>5485</NCOLS>
      </Size>
      <Geoposition resolution="10">
        <ULX>600000</ULX>
        <ULY>6200040</ULY>
        <XDIM>10</XDIM>
        <YDIM>-10</YDIM>
      </Geoposition>
      <Geoposition resolution="20">
        <ULX>600000</ULX>
        <ULY>6200040</ULY>
        <XDIM>20</XDIM>
        <YDIM>-20</YDIM>
      </Geoposition>
    </Tile_Geocoding>
  </n1:Geometric_Info>
</n1:Level-1C_Tile_ID>
`

func TestReadMetadata(t *testing.T) {
	md, err := ReadMetadata(strings.NewReader(tileXML))
	require.NoError(t, err)
	assert.Equal(t, "S2A_OPER_MSI_L1C_TL_SGS__20200714T121049_A026354_T32UNG_N02.09", md.TileID)
	assert.Equal(t, time.Date(2020, time.July, 14, 10, 30, 26, 0, time.UTC), md.SensingTime)
	assert.Equal(t, tidepods.GridDef{
		Width:     10970,
		Height:    10980,
		Transform: tidepods.GeoTransform{600000, 10, 0, 6200040, 0, -10},
		CRS:       "EPSG:32632",
	}, md.Grid)
}

func TestReadMetadataMissing(t *testing.T) {
	for name, text := range map[string]string{
		"tile id":      strings.Replace(tileXML, "TILE_ID", "TILE_NAME", 2),
		"sensing time": strings.Replace(tileXML, "2020-07-14T10:30:26.024Z", "2020-07", 1),
		"cs code":      strings.Replace(tileXML, "HORIZONTAL_CS_CODE", "CS_CODE", 2),
		"size":         strings.Replace(tileXML, `<Size resolution="10">`, `<Size resolution="60">`, 1),
		"geoposition":  strings.Replace(tileXML, `<Geoposition resolution="10">`, `<Geoposition resolution="60">`, 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadMetadata(strings.NewReader(text))
			assert.True(t, errors.Is(err, ErrMissingField), "got %v", err)
		})
	}
	_, err := ReadMetadata(strings.NewReader(strings.Replace(tileXML, "10:30:26", "1O:30:26", 1)))
	assert.Error(t, err)
	_, err = ReadMetadata(strings.NewReader("<notxml"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	safe := filepath.Join(t.TempDir(), "S2A_MSIL1C_20200714T103031_N0209_R108_T32UNG_20200714T121049.SAFE")
	granule := filepath.Join(safe, "GRANULE", "L1C_T32UNG_A026354_20200714T103026")
	require.NoError(t, os.MkdirAll(granule, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(safe, "MTD_MSIL1C.xml"), []byte("<x/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(granule, MetadataFile), []byte(tileXML), 0o644))

	md, err := Load(safe)
	require.NoError(t, err)
	assert.Equal(t, 10970, md.Grid.Width)

	md, err = Load(filepath.Join(granule, MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32632", md.Grid.CRS)

	_, err = Load(filepath.Join(safe, "GRANULE"+"x"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(safe, "MTD_MSIL1C.xml"))
	assert.Error(t, err)
	empty := t.TempDir()
	_, err = Load(empty)
	assert.Error(t, err)
}
