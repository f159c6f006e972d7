// Package media downloads clip video files with the external media tool
package media

import (
	"context"
	"os"

	"clipharvest/pkg/command"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/storage"
)

// Downloader runs `<binary> download <clip_id> --output <path> --quality <q>`
type Downloader struct {
	runner  command.Runner
	binary  string
	quality string
	logger  logger.Logger
}

// NewDownloader creates a media downloader
func NewDownloader(runner command.Runner, binary, quality string, log logger.Logger) *Downloader {
	return &Downloader{runner: runner, binary: binary, quality: quality, logger: log}
}

// Download fetches clipID into store. The tool writes to a hidden part file
// which is moved into place only after a clean exit.
func (d *Downloader) Download(ctx context.Context, store *storage.Manager, clipID string) error {
	part := store.TempPath(clipID)
	defer os.Remove(part)

	res, err := d.runner.Run(ctx, d.binary, "download", clipID, "--output", part, "--quality", d.quality)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(part); statErr != nil {
		return errors.Newf(errors.KindDownloadFailure, "media.Download",
			"%s exited cleanly but wrote no file for %s", d.binary, clipID)
	}

	if err := store.Adopt(part, clipID); err != nil {
		return errors.Wrap(errors.KindDownloadFailure, "media.Download", err)
	}

	logger.Or(d.logger).WithFields(map[string]interface{}{
		"clip_id": clipID,
		"elapsed": res.Elapsed,
	}).Debug("clip video saved")
	return nil
}
