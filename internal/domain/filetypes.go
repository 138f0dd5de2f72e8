package domain

import "strings"

// DefaultSuffixes is the file set a batch covers unless configured
// otherwise: the photos plus the videos shot alongside them.
var DefaultSuffixes = []string{"jpg", "mp4"}

// SuffixSet decides which files a scan picks up, by extension and case
// insensitive.
type SuffixSet map[string]bool

func NewSuffixSet(suffixes []string) SuffixSet {
	set := make(SuffixSet, len(suffixes))
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(suffix), "."))
		if suffix != "" {
			set[suffix] = true
		}
	}
	return set
}

func (s SuffixSet) Matches(ext string) bool {
	return s[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

func IsTrackExtension(ext string) bool {
	return strings.ToLower(ext) == ".gpx"
}
