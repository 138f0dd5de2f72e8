// Package exiftool adapts the external exiftool binary for tag reads and
// timestamp writes. Writes leave *_original backups behind; the rename
// stage cleans those up once a batch is through.
package exiftool

import (
	"context"
	"strings"
	"time"

	barasher "github.com/barasher/go-exiftool"

	apperrors "photoproc/internal/errors"
	"photoproc/internal/pipeline"
)

const exifTimeLayout = "2006:01:02 15:04:05"

type Tool struct {
	et *barasher.Exiftool
}

// New starts a long-lived exiftool process. A missing or broken binary is
// a ToolFailure: nothing metadata-related can work without it.
func New() (*Tool, error) {
	et, err := barasher.NewExiftool(
		barasher.BackupOriginal(),
		barasher.CoordFormant("%+.6f"),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ToolFailure, "exiftool init", "", err)
	}
	return &Tool{et: et}, nil
}

func (t *Tool) Close() error {
	return t.et.Close()
}

func (t *Tool) ReadTags(ctx context.Context, path string) (pipeline.Tags, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Tags{}, err
	}

	metas := t.et.ExtractMetadata(path)
	if len(metas) == 0 {
		return pipeline.Tags{}, apperrors.New(apperrors.IOFailure, "exiftool read", path, "no metadata extracted")
	}
	meta := metas[0]
	if meta.Err != nil {
		return pipeline.Tags{}, apperrors.Wrap(apperrors.IOFailure, "exiftool read", path, meta.Err)
	}

	var tags pipeline.Tags
	if raw, err := meta.GetString("DateTimeOriginal"); err == nil {
		if parsed, err := time.Parse(exifTimeLayout, raw); err == nil {
			tags.DateTimeOriginal = parsed
		}
	}
	if raw, err := meta.GetString("OffsetTimeOriginal"); err == nil {
		tags.OffsetTimeOriginal = raw
	}
	if raw, err := meta.GetString("TimeZone"); err == nil {
		tags.TimeZone = raw
	}
	tags.DaylightSavings = daylightOn(meta)
	if lat, err := meta.GetFloat("GPSLatitude"); err == nil {
		if lon, err := meta.GetFloat("GPSLongitude"); err == nil {
			tags.Latitude = &lat
			tags.Longitude = &lon
		}
	}
	return tags, nil
}

// daylightOn reads the DaylightSavings tag, which exiftool renders either
// as a string ("Yes", "On") or as the raw minute value.
func daylightOn(meta barasher.FileMetadata) bool {
	if raw, err := meta.GetString("DaylightSavings"); err == nil {
		switch strings.ToLower(raw) {
		case "yes", "on", "true":
			return true
		}
	}
	if val, err := meta.GetInt("DaylightSavings"); err == nil {
		return val != 0
	}
	return false
}

func (t *Tool) WriteTimes(ctx context.Context, path string, update pipeline.TimeUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	metas := t.et.ExtractMetadata(path)
	if len(metas) == 0 {
		return apperrors.New(apperrors.IOFailure, "exiftool write", path, "no metadata extracted")
	}
	meta := metas[0]
	if meta.Err != nil {
		return apperrors.Wrap(apperrors.IOFailure, "exiftool write", path, meta.Err)
	}

	meta.SetString("AllDates", update.AllDates.Format(exifTimeLayout))

	switch {
	case update.ClearTimezone:
		meta.SetString("OffsetTime", "")
		meta.SetString("OffsetTimeOriginal", "")
		meta.SetString("OffsetTimeDigitized", "")
		meta.SetString("TimeZone", "")
		meta.SetString("TimeZoneCity", "")
	case update.Offset != nil:
		offset := update.Offset.String()
		meta.SetString("OffsetTime", offset)
		meta.SetString("OffsetTimeOriginal", offset)
		meta.SetString("OffsetTimeDigitized", offset)
		meta.SetString("TimeZone", offset)
		if update.Offset.CityID != 0 {
			meta.SetInt("TimeZoneCity#", int64(update.Offset.CityID))
		}
		dst := int64(0)
		if update.DST {
			dst = 60
		}
		meta.SetInt("DaylightSavings#", dst)
	}

	t.et.WriteMetadata(metas)
	if metas[0].Err != nil {
		return apperrors.Wrap(apperrors.IOFailure, "exiftool write", path, metas[0].Err)
	}
	return nil
}
