package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// Old-style announced e-print: archive/NNNNNNN with an optional version
	// suffix, e.g. alg-geom/9204001 or math.GT/0309136v2.
	oldStyleID = regexp.MustCompile(`^([a-z-]+(?:\.[A-Z]{2})?)/(\d{7})(v\d+)?$`)
	// New-style announced e-print: YYMM.NNNNN with an optional version
	// suffix, e.g. 1801.00123 or 2102.00123v3.
	newStyleID = regexp.MustCompile(`^(\d{4})\.(\d{4,5})(v\d+)?$`)
)

// paperPath returns the directory that holds all extraction versions for an
// identifier. Announced e-prints are sharded by their year-month component;
// anything else (e.g. submission source_id/checksum keys) is used literally.
func (s *Store) paperPath(identifier, bucket string) string {
	if m := oldStyleID.FindStringSubmatch(identifier); m != nil {
		archive, number, suffix := m[1], m[2], m[3]
		return filepath.Join(s.volume, bucket, archive, number[:4], number+suffix)
	}
	if m := newStyleID.FindStringSubmatch(identifier); m != nil {
		yymm := m[1]
		return filepath.Join(s.volume, bucket, yymm, identifier)
	}
	return filepath.Join(s.volume, bucket, identifier)
}

func (s *Store) versionPath(identifier, version, bucket string) string {
	return filepath.Join(s.paperPath(identifier, bucket), version)
}

func (s *Store) metaPath(identifier, version, bucket string) string {
	return filepath.Join(s.versionPath(identifier, version, bucket), "meta.json")
}

func (s *Store) contentPath(identifier, version, format, bucket string) string {
	return filepath.Join(s.versionPath(identifier, version, bucket), format)
}

// latestVersion resolves the most recent extractor version present for an
// identifier. Versions that parse as floats are ordered numerically;
// non-parseable names sort as 0.0, so a literal name like "classic" is only
// returned when no numeric version exists.
func (s *Store) latestVersion(identifier, bucket string) (string, error) {
	entries, err := os.ReadDir(s.paperPath(identifier, bucket))
	if err != nil {
		return "", ErrDoesNotExist
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		versions = append(versions, entry.Name())
	}
	if len(versions) == 0 {
		return "", ErrDoesNotExist
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versionKey(versions[i]) < versionKey(versions[j])
	})
	return versions[len(versions)-1], nil
}

func versionKey(version string) float64 {
	v, err := strconv.ParseFloat(version, 64)
	if err != nil {
		return 0.0
	}
	return v
}
