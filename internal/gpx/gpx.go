// Package gpx handles the track logs fed to the geotagger: canonical
// naming of downloaded files and merging multiple logs into one.
package gpx

import (
	"os"
	"path/filepath"
	"strings"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	apperrors "photoproc/internal/errors"
)

// MergedName is the filename of a merged track log. Merged files are
// excluded from further merges and renames.
const MergedName = "all_activities.gpx"

const nameLayout = "2006-01-02.15.04.05"

// CanonicalName computes the stable name for a track log from its start
// time and track name, e.g. "2024-06-01.09.12.00_Morning Run.gpx".
// Downloads arrive named by activity id; the canonical name keeps a
// directory of logs readable and prevents re-downloading under a new name.
func CanonicalName(path string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".gpx" {
		return "", apperrors.New(apperrors.InvalidConfig, "gpx name", path, "only .gpx track files are supported")
	}
	if filepath.Base(path) == MergedName {
		return path, nil
	}

	parsed, err := gpxgo.ParseFile(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.IOFailure, "gpx parse", path, err)
	}

	trackName := "track"
	if len(parsed.Tracks) > 0 && parsed.Tracks[0].Name != "" {
		trackName = parsed.Tracks[0].Name
	}

	trackTime := "no_time"
	if parsed.Time != nil && !parsed.Time.IsZero() {
		trackTime = parsed.Time.Format(nameLayout)
	}

	name := trackTime + "_" + trackName
	name = strings.ReplaceAll(name, "/", "-")
	return filepath.Join(filepath.Dir(path), name+".gpx"), nil
}

// Ensure renames the track log to its canonical name and returns the
// resulting path. A file already canonically named is left alone.
func Ensure(path string) (string, error) {
	dest, err := CanonicalName(path)
	if err != nil {
		return "", err
	}
	if dest == path {
		return path, nil
	}
	if err := os.Rename(path, dest); err != nil {
		return "", apperrors.Wrap(apperrors.IOFailure, "gpx rename", path, err)
	}
	return dest, nil
}

// Merge combines the given track logs into outputDir/all_activities.gpx
// and returns its path. An existing merged file is replaced, and never
// merged into itself.
func Merge(paths []string, outputDir string) (string, error) {
	dest := filepath.Join(outputDir, MergedName)

	merged := &gpxgo.GPX{Version: "1.1", Creator: "photoproc"}
	for _, path := range paths {
		if filepath.Base(path) == MergedName {
			continue
		}
		parsed, err := gpxgo.ParseFile(path)
		if err != nil {
			return "", apperrors.Wrap(apperrors.IOFailure, "gpx parse", path, err)
		}
		merged.Tracks = append(merged.Tracks, parsed.Tracks...)
		merged.Routes = append(merged.Routes, parsed.Routes...)
		merged.Waypoints = append(merged.Waypoints, parsed.Waypoints...)
	}

	xml, err := merged.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return "", apperrors.Wrap(apperrors.Internal, "gpx merge", dest, err)
	}
	if err := os.WriteFile(dest, xml, 0o644); err != nil {
		return "", apperrors.Wrap(apperrors.IOFailure, "gpx merge", dest, err)
	}
	return dest, nil
}
