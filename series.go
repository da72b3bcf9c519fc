package tidepods

import (
	"fmt"
	"math"
	"time"
)

// Level is the vertical datum tide values are expressed against.
type Level string

const (
	// LAT values are heights above the lowest astronomical tide of the series.
	LAT Level = "LAT"
	// MSL values are heights relative to mean sea level, as predicted.
	MSL Level = "MSL"
)

// Levels lists the accepted level tokens.
var Levels = []Level{LAT, MSL}

// LevelError reports an unknown level token.
type LevelError struct {
	Level string
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("level should be one of %v, not %q", Levels, e.Level)
}

// ParseLevel validates a level token.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LAT, MSL:
		return Level(s), nil
	}
	return "", &LevelError{Level: s}
}

// A SeriesDescriptor describes a predicted tide series: Steps values per item,
// the first at Start and the following ones every Timestep. Minimums holds the
// minimum value of each item over the whole series.
type SeriesDescriptor struct {
	Start    time.Time
	Timestep time.Duration
	Steps    int
	Minimums []float64
}

// End returns the first instant past the series.
func (d SeriesDescriptor) End() time.Time {
	return d.Start.Add(time.Duration(d.Steps) * d.Timestep)
}

// IndexRangeError is returned when an instant falls outside a series.
type IndexRangeError struct {
	At    time.Time
	Index int
	Bound int
}

func (e *IndexRangeError) Error() string {
	return fmt.Sprintf("acquisition time %s maps to timestep %d, outside [0,%d)",
		e.At.Format(time.RFC3339), e.Index, e.Bound)
}

// An Indexer maps instants to timestep indexes of a single series. The
// descriptor is read once so every point of a run is indexed identically.
type Indexer struct {
	start           time.Time
	timestepMinutes int64
	steps           int
}

// NewIndexer validates d and prepares the timestep arithmetic.
func NewIndexer(d SeriesDescriptor) (*Indexer, error) {
	if d.Timestep <= 0 {
		return nil, fmt.Errorf("invalid series timestep %s, must be > 0", d.Timestep)
	}
	tsm := int64(math.Round(d.Timestep.Minutes()))
	if tsm <= 0 {
		return nil, fmt.Errorf("series timestep %s is shorter than a minute", d.Timestep)
	}
	if d.Steps <= 0 {
		return nil, fmt.Errorf("invalid series step count %d", d.Steps)
	}
	return &Indexer{start: d.Start, timestepMinutes: tsm, steps: d.Steps}, nil
}

// Index returns floor((at-start)/timestep), counted in whole minutes. Instants
// before the series start or past its last step are an error.
func (ix *Indexer) Index(at time.Time) (int, error) {
	delta := at.Sub(ix.start)
	if delta < 0 {
		idx := int(math.Floor(delta.Minutes() / float64(ix.timestepMinutes)))
		return idx, &IndexRangeError{At: at, Index: idx, Bound: ix.steps}
	}
	minutes := int64(delta / time.Minute)
	idx := minutes / ix.timestepMinutes
	if idx >= int64(ix.steps) {
		return int(idx), &IndexRangeError{At: at, Index: int(idx), Bound: ix.steps}
	}
	return int(idx), nil
}

// Step returns the instant of timestep i.
func (ix *Indexer) Step(i int) time.Time {
	return ix.start.Add(time.Duration(int64(i)*ix.timestepMinutes) * time.Minute)
}

// A TideValue is a tide height tagged with its level convention.
type TideValue struct {
	Value float64
	Level Level
}

// Extract converts a raw series value, expressed relative to mean sea level,
// to the requested level. min is the minimum of the item the value belongs to.
func Extract(raw, min float64, level Level) (TideValue, error) {
	switch level {
	case LAT:
		return TideValue{Value: raw - min, Level: LAT}, nil
	case MSL:
		return TideValue{Value: raw, Level: MSL}, nil
	}
	return TideValue{}, &LevelError{Level: string(level)}
}
