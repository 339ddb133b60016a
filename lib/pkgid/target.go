// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgid

import (
	"fmt"
	"strings"
)

// Target names a package to install and the versions acceptable for it.
type Target struct {
	ID    PackageID
	Range VersionRange
}

// ParseTarget parses "id" or "id@range" (for example
// "bitcoind@>=0.21.0 <0.22.0"). Without a range the target matches any
// version.
func ParseTarget(raw string) (Target, error) {
	idPart, rangePart, hasRange := strings.Cut(raw, "@")
	id, err := ParsePackageID(idPart)
	if err != nil {
		return Target{}, fmt.Errorf("parsing install target %q: %w", raw, err)
	}
	versionRange := AnyVersion
	if hasRange {
		versionRange, err = ParseVersionRange(strings.TrimSpace(rangePart))
		if err != nil {
			return Target{}, fmt.Errorf("parsing install target %q: %w", raw, err)
		}
	}
	return Target{ID: id, Range: versionRange}, nil
}

func (t Target) String() string {
	if t.Range.IsAny() {
		return t.ID.String()
	}
	return t.ID.String() + "@" + t.Range.String()
}
