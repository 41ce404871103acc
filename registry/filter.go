package registry

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Filter narrows instances to those hosted by appName (when hasApp) and whose
// Version satisfies versionRange (when non-empty). Instances with an
// unparsable version never match a range.
func Filter(instances []ServiceInstance, appName string, hasApp bool, versionRange string) ([]ServiceInstance, error) {
	var constraint *semver.Constraints
	if versionRange != "" {
		c, err := semver.NewConstraint(versionRange)
		if err != nil {
			return nil, fmt.Errorf("registry: invalid version range %q: %w", versionRange, err)
		}
		constraint = c
	}
	if !hasApp && constraint == nil {
		return instances, nil
	}

	out := make([]ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if hasApp && inst.AppName != appName {
			continue
		}
		if constraint != nil {
			v, err := semver.NewVersion(inst.Version)
			if err != nil || !constraint.Check(v) {
				continue
			}
		}
		out = append(out, inst)
	}
	return out, nil
}
