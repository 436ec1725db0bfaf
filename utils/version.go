package utils

import (
	"strings"

	"github.com/hashicorp/go-version"
)

// ReleaseMaturity scores a release tag between 0 and 1.
//
//	no tag or unparsable -> 0
//	prerelease           -> 0.25
//	below 1.0.0          -> 0.5
//	stable >= 1.0.0      -> 1
func ReleaseMaturity(tag string) float64 {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "v")
	if tag == "" {
		return 0
	}

	v, err := version.NewVersion(tag)
	if err != nil {
		return 0
	}

	if v.Prerelease() != "" {
		return 0.25
	}

	stable, _ := version.NewVersion("1.0.0")
	if v.LessThan(stable) {
		return 0.5
	}
	return 1
}

// LatestTag returns the highest semantic version among tags, ignoring unparsable ones.
func LatestTag(tags []string) string {
	var (
		best    *version.Version
		bestTag string
	)
	for _, tag := range tags {
		v, err := version.NewVersion(strings.TrimPrefix(tag, "v"))
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestTag = tag
		}
	}
	return bestTag
}
