// Package cog assembles tiled TIFF files, a full resolution image and its
// overviews, into a single Cloud Optimized GeoTIFF: every IFD first, then
// the tile arrays, then the tile data from the smallest overview to the
// full resolution image.
package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

// Assemble writes the COG made of the images of readers to out. The first
// reader holds the full resolution image, possibly with internal overviews;
// the following ones hold external overviews. Tile data is copied without
// being decoded.
func Assemble(out io.Writer, readers ...tiff.ReadAtReadSeeker) error {
	if len(readers) == 0 {
		return fmt.Errorf("no input image")
	}
	var (
		order string
		ifds  []*IFD
	)
	for i, r := range readers {
		tif, err := tiff.Parse(r, nil, nil)
		if err != nil {
			return fmt.Errorf("parse tiff %d: %w", i, err)
		}
		if i == 0 {
			order = tif.Order()
		} else if tif.Order() != order {
			return fmt.Errorf("tiff %d: byte order %s differs from %s", i, tif.Order(), order)
		}
		for j, tifd := range tif.IFDs() {
			ifd, err := loadIFD(tif.R(), tifd)
			if err != nil {
				return fmt.Errorf("tiff %d ifd %d: %w", i, j, err)
			}
			ifds = append(ifds, ifd)
		}
	}
	// full resolution first, then decreasing overviews
	sort.SliceStable(ifds, func(i, j int) bool {
		return ifds[i].ImageWidth > ifds[j].ImageWidth
	})
	if ifds[0].SubfileType != subfileTypeNone {
		return fmt.Errorf("largest image of %dx%d is not a full resolution image", ifds[0].ImageWidth, ifds[0].ImageLength)
	}
	for i := 1; i < len(ifds); i++ {
		if ifds[i].ImageWidth == ifds[i-1].ImageWidth {
			return fmt.Errorf("two images of width %d", ifds[i].ImageWidth)
		}
		ifds[i-1].setOverview(ifds[i])
	}

	var enc binary.ByteOrder
	switch order {
	case "II":
		enc = binary.LittleEndian
	case "MM":
		enc = binary.BigEndian
	default:
		return fmt.Errorf("unknown byte order %q", order)
	}
	c := &assembly{l: layout{enc: enc}, ifd: ifds[0]}
	if err := c.write(out); err != nil {
		return fmt.Errorf("write cog: %w", err)
	}
	return nil
}

type assembly struct {
	l   layout
	ifd *IFD
}

type tileRef struct {
	ifd *IFD
	idx uint64
}

// tiles lists the tiles in file order: smallest overview first, each level
// in row major order.
func (c *assembly) tiles() []tileRef {
	levels := []*IFD{}
	for ifd := c.ifd; ifd != nil; ifd = ifd.overview {
		levels = append([]*IFD{ifd}, levels...)
	}
	var refs []tileRef
	for _, ifd := range levels {
		for i := uint64(0); i < ifd.ntilesx*ifd.ntilesy; i++ {
			refs = append(refs, tileRef{ifd: ifd, idx: i})
		}
	}
	return refs
}

// computeOffsets sizes every IFD and assigns the tile offsets, switching to
// bigtiff when they overflow 32 bits.
func (c *assembly) computeOffsets() {
	for ifd := c.ifd; ifd != nil; ifd = ifd.overview {
		ifd.newOffsets = make([]uint64, len(ifd.TileOffsets))
		ifd.measure(c.l)
	}
	off := c.l.headerSize()
	for ifd := c.ifd; ifd != nil; ifd = ifd.overview {
		off += ifd.size + ifd.strileSize
	}
	for _, t := range c.tiles() {
		n := t.ifd.TileByteCounts[t.idx]
		if n == 0 {
			continue
		}
		if !c.l.bigtiff && off+n > math.MaxUint32 {
			c.l.bigtiff = true
			c.computeOffsets()
			return
		}
		t.ifd.newOffsets[t.idx] = off
		off += n
	}
}

func (c *assembly) header() []byte {
	l := c.l
	buf := make([]byte, l.headerSize())
	if l.enc == binary.LittleEndian {
		copy(buf, "II")
	} else {
		copy(buf, "MM")
	}
	if l.bigtiff {
		l.enc.PutUint16(buf[2:], 43)
		l.enc.PutUint16(buf[4:], 8)
		l.enc.PutUint64(buf[8:], 16)
	} else {
		l.enc.PutUint16(buf[2:], 42)
		l.enc.PutUint32(buf[4:], 8)
	}
	return buf
}

func (c *assembly) write(out io.Writer) error {
	c.computeOffsets()
	l := c.l

	meta := &bytes.Buffer{}
	meta.Write(c.header())
	striles := &area{off: l.headerSize()}
	for ifd := c.ifd; ifd != nil; ifd = ifd.overview {
		striles.off += ifd.size
	}
	for ifd := c.ifd; ifd != nil; ifd = ifd.overview {
		start := uint64(meta.Len())
		entries := ifd.entries(l)
		overflow := &area{off: start + l.countSize() + uint64(len(entries))*l.tagSize() + l.nextSize()}
		if l.bigtiff {
			_ = binary.Write(meta, l.enc, uint64(len(entries)))
		} else {
			_ = binary.Write(meta, l.enc, uint16(len(entries)))
		}
		for _, e := range entries {
			if e.strile {
				l.put(meta, e, striles)
			} else {
				l.put(meta, e, overflow)
			}
		}
		next := uint64(0)
		if ifd.overview != nil {
			next = start + ifd.size
		}
		if l.bigtiff {
			_ = binary.Write(meta, l.enc, next)
		} else {
			_ = binary.Write(meta, l.enc, uint32(next))
		}
		meta.Write(overflow.Bytes())
		if uint64(meta.Len())-start != ifd.size {
			return fmt.Errorf("ifd of %dx%d: wrote %d bytes, expected %d",
				ifd.ImageWidth, ifd.ImageLength, uint64(meta.Len())-start, ifd.size)
		}
	}
	meta.Write(striles.Bytes())
	if _, err := out.Write(meta.Bytes()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range c.tiles() {
		n := t.ifd.TileByteCounts[t.idx]
		if n == 0 {
			continue
		}
		src := t.ifd.TileOffsets[t.idx]
		if _, err := t.ifd.r.Seek(int64(src), io.SeekStart); err != nil {
			return fmt.Errorf("seek to %d: %w", src, err)
		}
		if _, err := io.CopyN(out, t.ifd.r, int64(n)); err != nil {
			return fmt.Errorf("copy %d bytes from %d: %w", n, src, err)
		}
	}
	return nil
}
