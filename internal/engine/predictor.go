package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/log"
	"go.uber.org/zap"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidName reports whether name can name a request. The name is used as the
// request and series file stems and as a quoted PFS string.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// A Predictor turns sample points into a predicted series by writing a
// request, running the engine and decoding its output.
type Predictor struct {
	Installation Installation
	Runner       Runner
	Decoder      SeriesDecoder
}

// Predict requests the series of the calendar year of at for points. The
// request and the engine output are written to dir, which the caller owns.
func (p *Predictor) Predict(ctx context.Context, dir, name string, at time.Time, points []tidepods.SamplePoint) (*Series, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("predict: %w", tidepods.ErrNoPoints)
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid request name %q, expecting letters, digits, '_', '-' or '.'", name)
	}
	reqPath := filepath.Join(dir, name+".pfs")
	req := NewRequest(name, p.Installation, at, filepath.Base(OutputPath(reqPath)), points)
	if err := req.WriteFile(reqPath); err != nil {
		return nil, err
	}
	log.Logger(ctx).Debug("wrote engine request",
		zap.String("path", reqPath), zap.Int("points", len(points)), zap.Int("year", req.Year))

	out, err := p.Runner.Run(ctx, reqPath)
	if err != nil {
		return nil, err
	}
	dec := p.Decoder
	if dec == nil {
		dec = BinaryDecoder{}
	}
	s, err := dec.DecodeSeries(out)
	if err != nil {
		return nil, &Error{Kind: ErrNoOutput, Path: out, Err: err}
	}
	if s.Items != len(points) {
		return nil, &Error{Kind: ErrNoOutput, Path: out,
			Err: fmt.Errorf("series has %d items for %d requested points", s.Items, len(points))}
	}
	return s, nil
}
