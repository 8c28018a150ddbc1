// Package semver checks protocol version compatibility between callers and workers.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

// ErrIncompatible is wrapped by CheckCompatible when the version falls outside the range.
var ErrIncompatible = errors.New("incompatible protocol version")

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly reports whether rangeStr is a bare major number such as "1".
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(strings.TrimSpace(rangeStr))
}

// ExtractMajor returns the major of a major-only range, or -1.
func ExtractMajor(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	major, err := strconv.Atoi(strings.TrimSpace(rangeStr))
	if err != nil {
		return -1
	}
	return major
}

// SatisfiesRange reports whether version satisfies rangeStr. Major-only ranges
// match any release of that major; anything else is a Masterminds constraint.
func SatisfiesRange(version, rangeStr string) bool {
	return CheckCompatible(version, rangeStr) == nil
}

// CheckCompatible returns nil when version satisfies constraint. An empty
// constraint accepts any valid version.
func CheckCompatible(version, constraint string) error {
	sv, err := masterminds.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}

	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return nil
	}
	if IsMajorOnly(constraint) {
		if int(sv.Major()) != ExtractMajor(constraint) {
			return fmt.Errorf("%s - %s does not match major %s: %w", logPrefix, version, constraint, ErrIncompatible)
		}
		return nil
	}

	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, constraint, err)
	}
	if ok, errs := c.Validate(sv); !ok {
		return fmt.Errorf("%s - %s does not satisfy %s (%v): %w", logPrefix, version, constraint, errs, ErrIncompatible)
	}
	return nil
}
