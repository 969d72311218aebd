package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SupportedConfigVersions is the range of configVersion values this build
// reads.
const SupportedConfigVersions = ">= 1.0.0, < 2.0.0"

var supported = mustConstraint(SupportedConfigVersions)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckConfigVersion reports whether v is a semantic version inside
// SupportedConfigVersions.
func CheckConfigVersion(v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: configVersion %q is not a semantic version", ErrInvalidConfig, v)
	}
	if !supported.Check(ver) {
		return fmt.Errorf("%w: unsupported configVersion: %q (supported: %s)", ErrInvalidConfig, v, SupportedConfigVersions)
	}
	return nil
}
