package cog

import (
	"fmt"

	"github.com/google/tiff"
)

// Subfile types.
const (
	subfileTypeNone         = 0
	subfileTypeReducedImage = 1
	subfileTypeMask         = 4
)

// Tags that are not carried by IFD.
const (
	tagStripOffsets    = 273
	tagStripByteCounts = 279
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
)

// IFD holds the tags of a single tiled image that are copied to the
// assembled file. Tile offsets are recomputed when writing.
type IFD struct {
	SubfileType               uint32   `tiff:"field,tag=254"`
	ImageWidth                uint64   `tiff:"field,tag=256"`
	ImageLength               uint64   `tiff:"field,tag=257"`
	BitsPerSample             []uint16 `tiff:"field,tag=258"`
	Compression               uint16   `tiff:"field,tag=259"`
	PhotometricInterpretation uint16   `tiff:"field,tag=262"`
	SamplesPerPixel           uint16   `tiff:"field,tag=277"`
	PlanarConfiguration       uint16   `tiff:"field,tag=284"`
	Predictor                 uint16   `tiff:"field,tag=317"`
	TileWidth                 uint16   `tiff:"field,tag=322"`
	TileLength                uint16   `tiff:"field,tag=323"`
	TileOffsets               []uint64 `tiff:"field,tag=324"`
	TileByteCounts            []uint64 `tiff:"field,tag=325"`
	SampleFormat              []uint16 `tiff:"field,tag=339"`

	ModelPixelScaleTag     []float64 `tiff:"field,tag=33550"`
	ModelTiePointTag       []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag     []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag     []float64 `tiff:"field,tag=34736"`
	GeoAsciiParamsTag      string    `tiff:"field,tag=34737"`
	GDALMetaData           string    `tiff:"field,tag=42112"`
	NoData                 string    `tiff:"field,tag=42113"`

	overview *IFD
	r        tiff.BReader

	// filled by layout
	newOffsets       []uint64
	ntilesx, ntilesy uint64
	size, strileSize uint64
}

func loadIFD(r tiff.BReader, tifd tiff.IFD) (*IFD, error) {
	if tifd.HasField(tagStripOffsets) || tifd.HasField(tagStripByteCounts) {
		return nil, fmt.Errorf("image is stripped, expecting tiles")
	}
	to, tl := tifd.GetField(tagTileOffsets), tifd.GetField(tagTileByteCounts)
	if to == nil || tl == nil {
		return nil, fmt.Errorf("image has no tiles")
	}
	if to.Count() != tl.Count() {
		return nil, fmt.Errorf("%d tile offsets for %d tile byte counts", to.Count(), tl.Count())
	}
	ifd := &IFD{r: r}
	if err := tiff.UnmarshalIFD(tifd, ifd); err != nil {
		return nil, err
	}
	if ifd.SubfileType&subfileTypeMask != 0 {
		return nil, fmt.Errorf("mask images are not supported")
	}
	if ifd.PlanarConfiguration == 2 && ifd.SamplesPerPixel > 1 {
		return nil, fmt.Errorf("separate planes are not supported")
	}
	if ifd.TileWidth == 0 || ifd.TileLength == 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", ifd.TileWidth, ifd.TileLength)
	}
	ifd.ntilesx = (ifd.ImageWidth + uint64(ifd.TileWidth) - 1) / uint64(ifd.TileWidth)
	ifd.ntilesy = (ifd.ImageLength + uint64(ifd.TileLength) - 1) / uint64(ifd.TileLength)
	if n := ifd.ntilesx * ifd.ntilesy; n != uint64(len(ifd.TileOffsets)) {
		return nil, fmt.Errorf("%dx%d image has %d tiles, expecting %d",
			ifd.ImageWidth, ifd.ImageLength, len(ifd.TileOffsets), n)
	}
	return ifd, nil
}

// setOverview chains ovr below ifd. Overviews carry no georeferencing.
func (ifd *IFD) setOverview(ovr *IFD) {
	ovr.SubfileType = subfileTypeReducedImage
	ovr.ModelPixelScaleTag = nil
	ovr.ModelTiePointTag = nil
	ovr.ModelTransformationTag = nil
	ovr.GeoKeyDirectoryTag = nil
	ovr.GeoDoubleParamsTag = nil
	ovr.GeoAsciiParamsTag = ""
	ifd.overview = ovr
}

// entries returns the tags to write, sorted by tag number.
func (ifd *IFD) entries(l layout) []entry {
	var e []entry
	add := func(tag uint16, v interface{}) {
		e = append(e, l.encode(tag, v))
	}
	if ifd.SubfileType != subfileTypeNone {
		add(254, ifd.SubfileType)
	}
	add(256, uint32(ifd.ImageWidth))
	add(257, uint32(ifd.ImageLength))
	if len(ifd.BitsPerSample) > 0 {
		add(258, ifd.BitsPerSample)
	}
	if ifd.Compression > 0 {
		add(259, ifd.Compression)
	}
	add(262, ifd.PhotometricInterpretation)
	if ifd.SamplesPerPixel > 0 {
		add(277, ifd.SamplesPerPixel)
	}
	if ifd.PlanarConfiguration > 0 {
		add(284, ifd.PlanarConfiguration)
	}
	if ifd.Predictor > 0 {
		add(317, ifd.Predictor)
	}
	add(322, ifd.TileWidth)
	add(323, ifd.TileLength)

	offsets := l.encode(tagTileOffsets, l.offsets(ifd.newOffsets))
	offsets.strile = true
	counts := make([]uint32, len(ifd.TileByteCounts))
	for i, c := range ifd.TileByteCounts {
		counts[i] = uint32(c)
	}
	bytecounts := l.encode(tagTileByteCounts, counts)
	bytecounts.strile = true
	e = append(e, offsets, bytecounts)

	if len(ifd.SampleFormat) > 0 {
		add(339, ifd.SampleFormat)
	}
	if len(ifd.ModelPixelScaleTag) > 0 {
		add(33550, ifd.ModelPixelScaleTag)
	}
	if len(ifd.ModelTiePointTag) > 0 {
		add(33922, ifd.ModelTiePointTag)
	}
	if len(ifd.ModelTransformationTag) > 0 {
		add(34264, ifd.ModelTransformationTag)
	}
	if len(ifd.GeoKeyDirectoryTag) > 0 {
		add(34735, ifd.GeoKeyDirectoryTag)
	}
	if len(ifd.GeoDoubleParamsTag) > 0 {
		add(34736, ifd.GeoDoubleParamsTag)
	}
	if ifd.GeoAsciiParamsTag != "" {
		add(34737, ifd.GeoAsciiParamsTag)
	}
	if ifd.GDALMetaData != "" {
		add(42112, ifd.GDALMetaData)
	}
	if ifd.NoData != "" {
		add(42113, ifd.NoData)
	}
	return e
}

// measure computes the size of the IFD block, and of its tile arrays which
// are written apart.
func (ifd *IFD) measure(l layout) {
	ifd.size = l.countSize() + l.nextSize()
	ifd.strileSize = 0
	for _, e := range ifd.entries(l) {
		ifd.size += l.tagSize()
		if e.inline(l) {
			continue
		}
		if e.strile {
			ifd.strileSize += uint64(len(e.data))
		} else {
			ifd.size += uint64(len(e.data))
		}
	}
}
