// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// VolumeType tags the Volume union.
type VolumeType string

const (
	// VolumeData is a writable directory owned by the package.
	VolumeData VolumeType = "data"

	// VolumePointer exposes (part of) another package's data volume.
	VolumePointer VolumeType = "pointer"

	// VolumeCertificate holds the TLS certificate of an interface.
	VolumeCertificate VolumeType = "certificate"

	// VolumeHiddenService holds the onion service directory of an
	// interface.
	VolumeHiddenService VolumeType = "hidden-service"
)

// Volume is a tagged union on Type. Which other fields are meaningful
// depends on Type:
//
//   - data: none
//   - pointer: PackageID, VolumeID, Path, ReadOnly
//   - certificate, hidden-service: InterfaceID and optionally PackageID
//     (defaults to the declaring package)
type Volume struct {
	Type        VolumeType        `json:"type"`
	PackageID   pkgid.PackageID   `json:"package-id,omitempty"`
	VolumeID    pkgid.VolumeID    `json:"volume-id,omitempty"`
	Path        string            `json:"path,omitempty"`
	ReadOnly    bool              `json:"readonly,omitempty"`
	InterfaceID pkgid.InterfaceID `json:"interface-id,omitempty"`
}

// IsReadOnly reports whether the volume is mounted read-only.
// Certificates and hidden-service directories always are.
func (v Volume) IsReadOnly() bool {
	switch v.Type {
	case VolumePointer:
		return v.ReadOnly
	case VolumeCertificate, VolumeHiddenService:
		return true
	default:
		return false
	}
}

// Owner returns the package whose directory tree holds the volume.
func (v Volume) Owner(self pkgid.PackageID) pkgid.PackageID {
	switch v.Type {
	case VolumePointer:
		return v.PackageID
	case VolumeCertificate, VolumeHiddenService:
		if v.PackageID != "" {
			return v.PackageID
		}
	}
	return self
}

func (v Volume) validate() error {
	switch v.Type {
	case VolumeData:
		if v.PackageID != "" || v.VolumeID != "" || v.Path != "" || v.InterfaceID != "" {
			return fmt.Errorf("data volume takes no package-id, volume-id, path or interface-id")
		}
	case VolumePointer:
		if v.PackageID == "" || v.VolumeID == "" {
			return fmt.Errorf("pointer volume requires package-id and volume-id")
		}
		if v.InterfaceID != "" {
			return fmt.Errorf("pointer volume takes no interface-id")
		}
		if v.Path != "" {
			cleaned := path.Clean(v.Path)
			if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
				return fmt.Errorf("pointer path %q escapes the target volume", v.Path)
			}
		}
	case VolumeCertificate, VolumeHiddenService:
		if v.InterfaceID == "" {
			return fmt.Errorf("%s volume requires interface-id", v.Type)
		}
		if v.VolumeID != "" || v.Path != "" {
			return fmt.Errorf("%s volume takes no volume-id or path", v.Type)
		}
	case "":
		return fmt.Errorf("volume type is missing")
	default:
		return fmt.Errorf("unknown volume type %q", v.Type)
	}
	return nil
}
