// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

// Interface is a network service the package exposes.
type Interface struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// TorConfig exposes the interface as an onion service. The host
	// generates one onion key per interface with a TorConfig.
	TorConfig *TorConfig `json:"tor-config,omitempty"`

	// LanConfig exposes the interface on the local network, keyed by
	// external port.
	LanConfig map[uint16]LanPortConfig `json:"lan-config,omitempty"`

	UI        bool     `json:"ui"`
	Protocols []string `json:"protocols"`
}

// TorConfig maps onion service ports to container ports.
type TorConfig struct {
	PortMapping map[uint16]uint16 `json:"port-mapping"`
}

// LanPortConfig describes one LAN port.
type LanPortConfig struct {
	SSL     bool   `json:"ssl"`
	Mapping uint16 `json:"mapping"`
}
