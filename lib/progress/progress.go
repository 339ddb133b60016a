// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"sync/atomic"
)

// Phase names a one-way latch set when an unpack step completes.
type Phase int

const (
	PhaseLicense Phase = iota
	PhaseInstructions
	PhaseIcon
	PhaseImageLoaded

	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseLicense:
		return "license"
	case PhaseInstructions:
		return "instructions"
	case PhaseIcon:
		return "icon"
	case PhaseImageLoaded:
		return "image-loaded"
	default:
		return "unknown"
	}
}

// InstallProgress is the live progress of one install. The zero value
// is not usable; call New.
type InstallProgress struct {
	size int64 // negative when unknown

	downloaded atomic.Uint64
	validated  atomic.Uint64
	unpacked   atomic.Uint64

	downloadComplete   atomic.Bool
	validationComplete atomic.Bool
	unpackComplete     atomic.Bool

	phases [phaseCount]atomic.Bool
}

// New creates progress for an archive of size bytes. A negative size
// means the size is unknown.
func New(size int64) *InstallProgress {
	return &InstallProgress{size: size}
}

// Size returns the archive size and whether it is known.
func (p *InstallProgress) Size() (uint64, bool) {
	if p.size < 0 {
		return 0, false
	}
	return uint64(p.size), true
}

// AddDownloaded counts n downloaded bytes.
func (p *InstallProgress) AddDownloaded(n int) {
	p.downloaded.Add(uint64(n))
}

// AddRead counts n bytes read from the archive: as validated until
// CompleteValidation is called, as unpacked afterwards.
func (p *InstallProgress) AddRead(n int) {
	if p.validationComplete.Load() {
		p.unpacked.Add(uint64(n))
	} else {
		p.validated.Add(uint64(n))
	}
}

// CompleteDownload sets the download-complete latch.
func (p *InstallProgress) CompleteDownload() { p.downloadComplete.Store(true) }

// CompleteValidation sets the validation-complete latch. Reads counted
// after this point are unpack progress.
func (p *InstallProgress) CompleteValidation() { p.validationComplete.Store(true) }

// CompleteUnpack sets the unpack-complete latch.
func (p *InstallProgress) CompleteUnpack() { p.unpackComplete.Store(true) }

// Complete sets the latch for one unpack phase.
func (p *InstallProgress) Complete(phase Phase) { p.phases[phase].Store(true) }

// Completed reports whether the latch for phase is set.
func (p *InstallProgress) Completed(phase Phase) bool { return p.phases[phase].Load() }

// Snapshot returns a point-in-time copy. Each latch is loaded before
// its counter, and the writer sets a latch only after its last count,
// so a set latch always comes with the final count. A snapshot taken
// mid-update may still show a counter ahead of an unset latch.
func (p *InstallProgress) Snapshot() Snapshot {
	downloadComplete := p.downloadComplete.Load()
	validationComplete := p.validationComplete.Load()
	unpackComplete := p.unpackComplete.Load()
	snapshot := Snapshot{
		DownloadComplete:   downloadComplete,
		Downloaded:         p.downloaded.Load(),
		ValidationComplete: validationComplete,
		Validated:          p.validated.Load(),
		UnpackComplete:     unpackComplete,
		Unpacked:           p.unpacked.Load(),
		License:            p.phases[PhaseLicense].Load(),
		Instructions:       p.phases[PhaseInstructions].Load(),
		Icon:               p.phases[PhaseIcon].Load(),
		ImageLoaded:        p.phases[PhaseImageLoaded].Load(),
	}
	if size, known := p.Size(); known {
		snapshot.Size = &size
	}
	return snapshot
}

// Snapshot is the serializable form of InstallProgress. It is what the
// package registry stores in transient slots and what observers
// receive.
type Snapshot struct {
	Size               *uint64 `json:"size,omitempty"`
	Downloaded         uint64  `json:"downloaded"`
	DownloadComplete   bool    `json:"download-complete"`
	Validated          uint64  `json:"validated"`
	ValidationComplete bool    `json:"validation-complete"`
	Unpacked           uint64  `json:"unpacked"`
	UnpackComplete     bool    `json:"unpack-complete"`
	License            bool    `json:"license,omitempty"`
	Instructions       bool    `json:"instructions,omitempty"`
	Icon               bool    `json:"icon,omitempty"`
	ImageLoaded        bool    `json:"image-loaded,omitempty"`
}

// Percent returns overall progress in [0, 100], weighting download,
// validation and unpack equally. It is only available when the size is
// known.
func (s Snapshot) Percent() (float64, bool) {
	if s.Size == nil {
		return 0, false
	}
	if *s.Size == 0 {
		if s.UnpackComplete {
			return 100, true
		}
		return 0, true
	}
	size := float64(*s.Size)
	phase := func(count uint64, complete bool) float64 {
		if complete {
			return 1
		}
		return min(float64(count)/size, 1)
	}
	total := phase(s.Downloaded, s.DownloadComplete) +
		phase(s.Validated, s.ValidationComplete) +
		phase(s.Unpacked, s.UnpackComplete)
	return total / 3 * 100, true
}

// Stage names the furthest phase a snapshot has reached.
func (s Snapshot) Stage() string {
	switch {
	case s.UnpackComplete:
		return "unpacked"
	case s.ValidationComplete:
		return "unpacking"
	case s.DownloadComplete:
		return "validating"
	default:
		return "downloading"
	}
}
