package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries() *Series {
	return &Series{
		Start:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Timestep: 30 * time.Minute,
		Items:    2,
		Minimums: []float64{-1.5, -0.25},
		Values:   []float32{0.5, 1, -1.5, 0.25, 1.25, -0.25},
	}
}

func TestSeriesLayout(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, WriteSeries(&buf, testSeries()))
	b := buf.Bytes()
	// header 4+8+8+4+4, minimums 2*8, values 6*4
	require.Len(t, b, 28+16+24)
	assert.Equal(t, "TPS1", string(b[:4]))
	assert.Equal(t, uint64(1577836800), binary.LittleEndian.Uint64(b[4:12]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[20:24]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[24:28]))

	s, err := ReadSeries(&buf)
	require.NoError(t, err)
	assert.Equal(t, testSeries(), s)
	assert.Equal(t, 3, s.Steps())
	assert.Equal(t, 0.25, s.Value(1, 1))
	d := s.Descriptor()
	assert.Equal(t, 3, d.Steps)
	assert.Equal(t, 30*time.Minute, d.Timestep)
}

func TestReadSeriesErrors(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, WriteSeries(&buf, testSeries()))
	good := buf.Bytes()

	_, err := ReadSeries(bytes.NewReader(good[:len(good)-3]))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	bad := append([]byte("XXXX"), good[4:]...)
	_, err = ReadSeries(bytes.NewReader(bad))
	assert.Error(t, err)

	_, err = ReadSeries(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestReadSeriesTruncatedHeader(t *testing.T) {
	// a header announcing ~4GB of values followed by a single minimum
	h := seriesHeader{Start: 0, Timestep: 1800, Items: 1 << 15, Steps: 1 << 15}
	copy(h.Magic[:], seriesMagic)
	buf := bytes.Buffer{}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, float64(-1)))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := ReadSeries(bytes.NewReader(buf.Bytes()))
	runtime.ReadMemStats(&after)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestWriteSeriesInvalid(t *testing.T) {
	s := testSeries()
	s.Minimums = s.Minimums[:1]
	assert.Error(t, WriteSeries(io.Discard, s))
	s = testSeries()
	s.Values = s.Values[:5]
	assert.Error(t, WriteSeries(io.Discard, s))
}

func TestBinaryDecoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.dfs0")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteSeries(f, testSeries()))
	require.NoError(t, f.Close())

	s, err := BinaryDecoder{}.DecodeSeries(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Items)

	_, err = BinaryDecoder{}.DecodeSeries(path + ".missing")
	assert.Error(t, err)
}
