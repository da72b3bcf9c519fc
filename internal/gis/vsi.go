package gis

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
)

var registerOnce sync.Once

// Register registers every GDAL driver. It is safe to call several times.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// RegisterGCS makes gs:// paths readable by GDAL through a block caching
// adapter over stcl.
func RegisterGCS(ctx context.Context, stcl *storage.Client, blockSize string, numBlocks int) error {
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(blockSize), osio.NumCachedBlocks(numBlocks))
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	return nil
}
