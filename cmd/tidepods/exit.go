package main

import (
	"errors"
	"io/fs"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/config"
	"github.com/DHI-GRAS/tidepods/internal/engine"
	"github.com/DHI-GRAS/tidepods/internal/exitcode"
	"github.com/DHI-GRAS/tidepods/internal/gis"
	"github.com/DHI-GRAS/tidepods/internal/pipeline"
	"github.com/DHI-GRAS/tidepods/internal/sentinel2"
	"github.com/DHI-GRAS/tidepods/internal/storage"
)

// exitCode classifies err. Publish and engine errors wrap lower level causes,
// so they are tested first.
func exitCode(err error) int {
	var (
		publishErr *storage.PublishError
		envErr     *config.ErrMissingRequiredEnvVar
		levelErr   *tidepods.LevelError
		rangeErr   *tidepods.IndexRangeError
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.As(err, &publishErr):
		return exitcode.StorageError
	case errors.Is(err, engine.ErrNoOutput):
		return exitcode.EngineError
	case errors.Is(err, engine.ErrEngineNotFound),
		errors.As(err, &envErr),
		errors.As(err, &levelErr):
		return exitcode.ConfigError
	case errors.Is(err, tidepods.ErrNoPoints),
		errors.As(err, &rangeErr):
		return exitcode.DataError
	case errors.Is(err, gis.ErrUnsupportedFormat),
		errors.Is(err, sentinel2.ErrMissingField),
		errors.Is(err, pipeline.ErrNoAcquisitionTime),
		errors.Is(err, fs.ErrNotExist):
		return exitcode.InputError
	}
	return exitcode.ConfigError
}
