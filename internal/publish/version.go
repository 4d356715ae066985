package publish

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/pkglab/pkglab/internal/pkgerrors"
	"github.com/pkglab/pkglab/internal/store"
)

// untagged is the reserved tag name for the default channel.
const untagged = store.Untagged

// Untagged is the exported form of the reserved default-channel tag, for
// callers outside this package (internal/propagate, internal/cli) that
// need to normalize an empty -t/tag flag.
const Untagged = untagged

var versionPattern = regexp.MustCompile(`^0\.0\.0-pkglab(?:-([A-Za-z0-9._-]+))?\.(\d+)$`)

// BuildVersion constructs the pre-release version string for (tag, n) per
// the grammar "0.0.0-pkglab.<N>" untagged, "0.0.0-pkglab-<tag>.<N>"
// tagged. Masterminds/semver/v3 validates the result is well-formed semver
// before it is ever written to a manifest or sent to the registry.
func BuildVersion(tag string, n int) (string, error) {
	raw := fmt.Sprintf("0.0.0-pkglab.%d", n)
	if tag != "" && tag != untagged {
		raw = fmt.Sprintf("0.0.0-pkglab-%s.%d", tag, n)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return "", pkgerrors.Newf(pkgerrors.InvalidWorkspace, tag, "constructed invalid version %q: %v", raw, err)
	}
	return v.String(), nil
}

// ParseVersion extracts (tag, n) from a version string built by
// BuildVersion. tag is "" (meaning untagged) when no tag segment is
// present.
func ParseVersion(version string) (tag string, n int, ok bool) {
	m := versionPattern.FindStringSubmatch(version)
	if m == nil {
		return "", 0, false
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], num, true
}

// IsPkglabVersion reports whether version matches the pkglab pre-release
// grammar, i.e. was (or could have been) written by BuildVersion. `check`
// uses this to spot installed artifacts that came from this system.
func IsPkglabVersion(version string) bool {
	return versionPattern.MatchString(version)
}

// CompareVersions orders two pkglab-built version strings by their N,
// falling back to semver.Compare for anything that doesn't match the
// pkglab grammar (defensive; every version pkglab writes does match).
func CompareVersions(a, b string) int {
	_, na, aok := ParseVersion(a)
	_, nb, bok := ParseVersion(b)
	if aok && bok {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return 0
	}
	return va.Compare(vb)
}
