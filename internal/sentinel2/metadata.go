// Package sentinel2 reads the tile metadata of Sentinel-2 SAFE products.
package sentinel2

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/DHI-GRAS/tidepods"
)

// MetadataFile is the tile metadata file name inside a SAFE product.
const MetadataFile = "MTD_TL.xml"

// Resolution, in meters, of the grid surfaces are resampled to.
const Resolution = 10

const sensingTimeLayout = "2006-01-02T15:04:05"

// ErrMissingField is returned when the tile metadata lacks a required field.
var ErrMissingField = errors.New("missing metadata field")

// Metadata is the subset of the tile metadata tidepods needs.
type Metadata struct {
	TileID      string
	SensingTime time.Time
	// Grid is the 10m tile grid.
	Grid tidepods.GridDef
}

type tileMetadata struct {
	TileID      string `xml:"General_Info>TILE_ID"`
	SensingTime string `xml:"General_Info>SENSING_TIME"`
	Geocoding   struct {
		CSCode string `xml:"HORIZONTAL_CS_CODE"`
		Sizes  []struct {
			Resolution int `xml:"resolution,attr"`
			NRows      int `xml:"NROWS"`
			NCols      int `xml:"NCOLS"`
		} `xml:"Size"`
		Geopositions []struct {
			Resolution int     `xml:"resolution,attr"`
			ULX        float64 `xml:"ULX"`
			ULY        float64 `xml:"ULY"`
			XDim       float64 `xml:"XDIM"`
			YDim       float64 `xml:"YDIM"`
		} `xml:"Geoposition"`
	} `xml:"Geometric_Info>Tile_Geocoding"`
}

func missing(name string) error {
	return fmt.Errorf("%w %s", ErrMissingField, name)
}

// ReadMetadata decodes an MTD_TL.xml document.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	tm := tileMetadata{}
	if err := xml.NewDecoder(r).Decode(&tm); err != nil {
		return nil, fmt.Errorf("decode tile metadata: %w", err)
	}
	if tm.TileID == "" {
		return nil, missing("TILE_ID")
	}
	if len(tm.SensingTime) < len(sensingTimeLayout) {
		return nil, missing("SENSING_TIME")
	}
	st, err := time.ParseInLocation(sensingTimeLayout, tm.SensingTime[:len(sensingTimeLayout)], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid SENSING_TIME %q: %w", tm.SensingTime, err)
	}
	if tm.Geocoding.CSCode == "" {
		return nil, missing("HORIZONTAL_CS_CODE")
	}
	md := &Metadata{TileID: tm.TileID, SensingTime: st, Grid: tidepods.GridDef{CRS: tm.Geocoding.CSCode}}
	for _, s := range tm.Geocoding.Sizes {
		if s.Resolution == Resolution {
			md.Grid.Width = s.NCols
			md.Grid.Height = s.NRows
		}
	}
	if md.Grid.Width == 0 || md.Grid.Height == 0 {
		return nil, missing(fmt.Sprintf("Size for resolution %d", Resolution))
	}
	found := false
	for _, g := range tm.Geocoding.Geopositions {
		if g.Resolution == Resolution {
			md.Grid.Transform = tidepods.GeoTransform{g.ULX, g.XDim, 0, g.ULY, 0, g.YDim}
			found = true
		}
	}
	if !found {
		return nil, missing(fmt.Sprintf("Geoposition for resolution %d", Resolution))
	}
	return md, nil
}

// FindMetadata returns the tile metadata file of a SAFE product. path may be
// the product directory or the metadata file itself.
func FindMetadata(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return path, nil
	}
	found := ""
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == MetadataFile {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", path, err)
	}
	if found == "" {
		return "", fmt.Errorf("no %s found under %s", MetadataFile, path)
	}
	return found, nil
}

// Load finds and reads the tile metadata of a SAFE product.
func Load(path string) (*Metadata, error) {
	mtd, err := FindMetadata(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(mtd)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	md, err := ReadMetadata(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mtd, err)
	}
	return md, nil
}
