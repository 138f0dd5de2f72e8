// Package gpicsync adapts the external gpicsync binary, which correlates
// UTC photo timestamps with GPX track points and writes GPS tags.
package gpicsync

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"

	apperrors "photoproc/internal/errors"
	"photoproc/internal/gpx"
	"photoproc/internal/logging"
)

type Geotagger struct {
	Binary string
	Logger logging.Logger
}

func (g *Geotagger) binary() string {
	if g.Binary != "" {
		return g.Binary
	}
	return "gpicsync"
}

// Geotag runs gpicsync over one directory. Multiple track logs are merged
// into a temporary file first; gpicsync takes a single -g argument.
func (g *Geotagger) Geotag(ctx context.Context, dir string, trackFiles []string, timerangeSec int) error {
	if len(trackFiles) == 0 {
		return apperrors.New(apperrors.InvalidConfig, "geotag", dir, "no track files")
	}
	if _, err := exec.LookPath(g.binary()); err != nil {
		return apperrors.Wrap(apperrors.ToolFailure, "geotag", dir, err)
	}

	track := trackFiles[0]
	merged := false
	if len(trackFiles) > 1 {
		var err error
		track, err = gpx.Merge(trackFiles, dir)
		if err != nil {
			return err
		}
		merged = true
	}

	args := []string{
		"-g", track,
		"-z", "UTC",
		"-d", dir,
		"--time-range", strconv.Itoa(timerangeSec),
	}
	g.Logger.Verbosef("Running %s %v", g.binary(), args)

	cmd := exec.CommandContext(ctx, g.binary(), args...)
	output, err := cmd.CombinedOutput()

	if merged {
		if rmErr := os.Remove(track); rmErr != nil {
			g.Logger.Verbosef("could not remove temporary track %s: %v", track, rmErr)
		}
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return apperrors.New(apperrors.IOFailure, "geotag", dir, string(output))
	}
	return nil
}
