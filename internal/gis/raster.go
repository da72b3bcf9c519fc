package gis

import (
	"fmt"
	"os"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/cog"
	"github.com/airbusgeo/godal"
	"github.com/google/tiff"
)

var geotiffOptions = []string{"TILED=YES", "COMPRESS=DEFLATE", "PREDICTOR=3"}

// WriteGeoTIFF writes s as a single band Float32 GeoTIFF whose nodata value
// is tidepods.NoData.
func WriteGeoTIFF(path string, s *tidepods.Surface) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, s.Width, s.Height,
		godal.CreationOption(geotiffOptions...))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fillDataset(ds, s); err != nil {
		ds.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func fillDataset(ds *godal.Dataset, s *tidepods.Surface) error {
	if err := ds.SetGeoTransform([6]float64(s.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	sr, err := SpatialRef(s.CRS)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("set spatial reference: %w", err)
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(tidepods.NoData); err != nil {
		return fmt.Errorf("set nodata: %w", err)
	}
	if err := band.Write(0, 0, s.Values, s.Width, s.Height); err != nil {
		return fmt.Errorf("write band: %w", err)
	}
	return nil
}

// cogTileSize is the internal tiling of COG outputs. Overviews are added
// until the smallest one fits in a single tile.
const cogTileSize = 256

var cogOptions = []string{"TILED=YES", "BLOCKXSIZE=256", "BLOCKYSIZE=256", "COMPRESS=DEFLATE", "PREDICTOR=3"}

// overviewSizes returns the sizes of the halved overviews of a w x h image.
func overviewSizes(w, h int) [][2]int {
	var sizes [][2]int
	for (w > cogTileSize || h > cogTileSize) && w > 1 && h > 1 {
		w = (w + 1) / 2
		h = (h + 1) / 2
		sizes = append(sizes, [2]int{w, h})
	}
	return sizes
}

// WriteCOG writes s as a Cloud Optimized GeoTIFF. The full resolution image
// and each averaged overview are written to temporary tiled GeoTIFFs next to
// path, then assembled into path.
func WriteCOG(path string, s *tidepods.Surface) error {
	full := path + ".tmp.tif"
	ds, err := godal.Create(godal.GTiff, full, 1, godal.Float32, s.Width, s.Height,
		godal.CreationOption(cogOptions...))
	if err != nil {
		return fmt.Errorf("create %s: %w", full, err)
	}
	defer os.Remove(full)
	if err := fillDataset(ds, s); err != nil {
		ds.Close()
		return fmt.Errorf("write %s: %w", full, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", full, err)
	}

	files := []string{full}
	for i, size := range overviewSizes(s.Width, s.Height) {
		ovr := fmt.Sprintf("%s.ovr%d.tif", path, i+1)
		defer os.Remove(ovr)
		if err := translateOverview(files[i], ovr, size); err != nil {
			return err
		}
		files = append(files, ovr)
	}

	readers := make([]tiff.ReadAtReadSeeker, len(files))
	for i, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("re-open %s: %w", name, err)
		}
		defer f.Close()
		readers[i] = f
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := cog.Assemble(out, readers...); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("assemble %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// translateOverview averages src down to size, ignoring nodata cells.
func translateOverview(src, dst string, size [2]int) error {
	ds, err := godal.Open(src, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer ds.Close()
	ovr, err := ds.Translate(dst, []string{
		"-outsize", fmt.Sprintf("%d", size[0]), fmt.Sprintf("%d", size[1]), "-r", "average",
	}, godal.CreationOption(cogOptions...))
	if err != nil {
		return fmt.Errorf("translate %s->%s: %w", src, dst, err)
	}
	if err := ovr.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// ReadSurface reads the first band of a raster into a surface. Band nodata
// values are mapped to tidepods.NoData.
func ReadSurface(path string) (*tidepods.Surface, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	g, err := RasterGrid(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s, err := tidepods.NewSurface(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	band := ds.Bands()[0]
	if err := band.Read(0, 0, s.Values, g.Width, g.Height); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if nd, ok := band.NoData(); ok && nd != tidepods.NoData {
		for i, v := range s.Values {
			if float64(v) == nd {
				s.Values[i] = tidepods.NoData
			}
		}
	}
	return s, nil
}

// OpenGrid returns the grid definition of the raster at path.
func OpenGrid(path string) (tidepods.GridDef, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return tidepods.GridDef{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	g, err := RasterGrid(ds)
	if err != nil {
		return tidepods.GridDef{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
