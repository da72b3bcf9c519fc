package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/DHI-GRAS/tidepods"
)

const seriesMagic = "TPS1"

// maxSeriesValues bounds the value count accepted from a series header.
const maxSeriesValues = 1 << 30

// A Series holds predicted values for Items points over Steps timesteps.
// Values are stored step major: Values[step*Items+item].
type Series struct {
	Start    time.Time
	Timestep time.Duration
	Items    int
	Minimums []float64
	Values   []float32
}

// Steps returns the number of timesteps.
func (s *Series) Steps() int {
	if s.Items == 0 {
		return 0
	}
	return len(s.Values) / s.Items
}

// Value returns the raw value of item at step.
func (s *Series) Value(step, item int) float64 {
	return float64(s.Values[step*s.Items+item])
}

// Descriptor returns the indexing view of the series.
func (s *Series) Descriptor() tidepods.SeriesDescriptor {
	return tidepods.SeriesDescriptor{
		Start:    s.Start,
		Timestep: s.Timestep,
		Steps:    s.Steps(),
		Minimums: s.Minimums,
	}
}

func (s *Series) validate() error {
	if s.Items <= 0 {
		return fmt.Errorf("series has no items")
	}
	if len(s.Minimums) != s.Items {
		return fmt.Errorf("series has %d minimums for %d items", len(s.Minimums), s.Items)
	}
	if len(s.Values)%s.Items != 0 {
		return fmt.Errorf("series has %d values, not a multiple of %d items", len(s.Values), s.Items)
	}
	if s.Timestep <= 0 {
		return fmt.Errorf("invalid series timestep %s", s.Timestep)
	}
	return nil
}

type seriesHeader struct {
	Magic    [4]byte
	Start    int64
	Timestep float64
	Items    uint32
	Steps    uint32
}

// WriteSeries encodes s in the little endian TPS1 layout: header, item
// minimums as float64, then values as float32.
func WriteSeries(w io.Writer, s *Series) error {
	if err := s.validate(); err != nil {
		return err
	}
	h := seriesHeader{
		Start:    s.Start.Unix(),
		Timestep: s.Timestep.Seconds(),
		Items:    uint32(s.Items),
		Steps:    uint32(s.Steps()),
	}
	copy(h.Magic[:], seriesMagic)
	bw := bufio.NewWriter(w)
	for _, v := range []interface{}{h, s.Minimums, s.Values} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write series: %w", err)
		}
	}
	return bw.Flush()
}

// ReadSeries decodes a TPS1 series.
func ReadSeries(r io.Reader) (*Series, error) {
	br := bufio.NewReader(r)
	h := seriesHeader{}
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read series header: %w", err)
	}
	if string(h.Magic[:]) != seriesMagic {
		return nil, fmt.Errorf("not a series file: magic %q", h.Magic[:])
	}
	if h.Items == 0 || h.Steps == 0 {
		return nil, fmt.Errorf("empty series: %d items, %d steps", h.Items, h.Steps)
	}
	if uint64(h.Items)*uint64(h.Steps) > maxSeriesValues {
		return nil, fmt.Errorf("series too large: %d items, %d steps", h.Items, h.Steps)
	}
	if h.Timestep <= 0 || math.IsNaN(h.Timestep) {
		return nil, fmt.Errorf("invalid series timestep %g s", h.Timestep)
	}
	s := &Series{
		Start:    time.Unix(h.Start, 0).UTC(),
		Timestep: time.Duration(h.Timestep * float64(time.Second)),
		Items:    int(h.Items),
	}
	var err error
	if s.Minimums, err = readChunked[float64](br, int(h.Items)); err != nil {
		return nil, fmt.Errorf("read series minimums: %w", err)
	}
	if s.Values, err = readChunked[float32](br, int(h.Items)*int(h.Steps)); err != nil {
		return nil, fmt.Errorf("read series values: %w", err)
	}
	return s, nil
}

// readChunked reads n values, growing the result as data arrives so that a
// header announcing more values than the stream holds fails before they are
// allocated.
func readChunked[T float32 | float64](r io.Reader, n int) ([]T, error) {
	const chunk = 1 << 16
	out := make([]T, 0, min(n, chunk))
	buf := make([]T, min(n, chunk))
	for len(out) < n {
		b := buf[:min(n-len(out), chunk)]
		if err := binary.Read(r, binary.LittleEndian, b); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// A SeriesDecoder loads the series the engine wrote at path.
type SeriesDecoder interface {
	DecodeSeries(path string) (*Series, error)
}

// BinaryDecoder decodes TPS1 files.
type BinaryDecoder struct{}

func (BinaryDecoder) DecodeSeries(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSeries(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}
