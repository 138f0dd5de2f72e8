// Package garmin adapts the external garmin CLI to download activity
// track logs as GPX files.
package garmin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "photoproc/internal/errors"
	"photoproc/internal/gpx"
	"photoproc/internal/logging"
)

const pageSize = 100

type Client struct {
	Binary string
	Logger logging.Logger
}

func (c *Client) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "garmin"
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return "", apperrors.Wrap(apperrors.ToolFailure, "garmin", "", err)
	}
	cmd := exec.CommandContext(ctx, c.binary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.New(apperrors.ToolFailure, "garmin "+args[0], "", strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// CheckAuth verifies the CLI holds a valid login session.
func (c *Client) CheckAuth(ctx context.Context) error {
	status, err := c.run(ctx, "auth", "status")
	if err != nil {
		return err
	}
	if !strings.Contains(status, "Status: Logged in") {
		return apperrors.New(apperrors.ToolFailure, "garmin auth", "",
			"not logged in to Garmin, run 'garmin auth login' first")
	}
	return nil
}

// Download fetches all activities within [start, end] into dest as GPX
// files, renames each to its canonical track name, and merges everything
// into a single track log. Already-downloaded activities are only renamed.
func (c *Client) Download(ctx context.Context, dest string, start, end time.Time) (int, error) {
	if err := c.CheckAuth(ctx); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, apperrors.Wrap(apperrors.IOFailure, "garmin download", dest, err)
	}

	downloaded := 0
	offset := 0
	for {
		output, err := c.run(ctx, "activities", "list",
			"--limit", strconv.Itoa(pageSize),
			"--start", strconv.Itoa(offset))
		if err != nil {
			return downloaded, err
		}

		foundAny := false
		allOlder := true
		for _, line := range strings.Split(output, "\n") {
			id, date, ok := parseActivityLine(line)
			if !ok {
				continue
			}
			foundAny = true
			if date.Before(start) {
				continue
			}
			allOlder = false
			if date.After(end) {
				continue
			}

			gpxPath := filepath.Join(dest, id+".gpx")
			if _, err := os.Stat(gpxPath); err == nil {
				c.Logger.Verbosef("Activity %s already downloaded, checking name", id)
				if _, err := gpx.Ensure(gpxPath); err != nil {
					c.Logger.Warnf("could not rename %s: %v", gpxPath, err)
				}
				continue
			}

			c.Logger.Infof("Downloading activity %s (%s)", id, date.Format("2006-01-02"))
			if _, err := c.run(ctx, "activities", "download", "-t", "gpx", "-o", gpxPath, id); err != nil {
				return downloaded, err
			}
			downloaded++
			if _, err := gpx.Ensure(gpxPath); err != nil {
				c.Logger.Warnf("could not rename %s: %v", gpxPath, err)
			}
		}

		if !foundAny || allOlder {
			break
		}
		offset += pageSize
	}

	if err := c.mergeAll(dest); err != nil {
		return downloaded, err
	}
	return downloaded, nil
}

func (c *Client) mergeAll(dest string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return apperrors.Wrap(apperrors.IOFailure, "garmin merge", dest, err)
	}
	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".gpx" {
			continue
		}
		tracks = append(tracks, filepath.Join(dest, entry.Name()))
	}
	if len(tracks) == 0 {
		return nil
	}
	merged, err := gpx.Merge(tracks, dest)
	if err != nil {
		return err
	}
	c.Logger.Infof("Merged %d track logs into %s", len(tracks), merged)
	return nil
}

// parseActivityLine extracts the id and date columns from one row of the
// activities table, skipping headers and separators.
func parseActivityLine(line string) (string, time.Time, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "ID") || strings.HasPrefix(line, "-") {
		return "", time.Time{}, false
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return "", time.Time{}, false
	}
	return parts[0], date, true
}
