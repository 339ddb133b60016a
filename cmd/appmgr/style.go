// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/progress"
)

// ANSI palette indices, so the terminal theme picks the actual colors.
var (
	styleGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleBusy    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleHeading = lipgloss.NewStyle().Bold(true)
)

// painter applies lipgloss styles when stdout is a terminal and leaves
// text untouched otherwise, so piped output stays parseable.
type painter struct {
	color bool
}

func (p painter) paint(style lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}

func (p painter) heading(text string) string { return p.paint(styleHeading, text) }

func (p painter) state(state pkgstate.State, broken bool) string {
	label := string(state)
	if broken {
		return p.paint(styleBad, label+" (broken)")
	}
	switch state {
	case pkgstate.StateInstalled:
		return p.paint(styleGood, label)
	default:
		return p.paint(styleBusy, label)
	}
}

func (p painter) main(status *pkgstate.MainStatus) string {
	if status == nil {
		return p.paint(styleMuted, "-")
	}
	switch *status {
	case pkgstate.MainRunning:
		return p.paint(styleGood, string(*status))
	case pkgstate.MainStopped:
		return p.paint(styleMuted, string(*status))
	default:
		return p.paint(styleBusy, string(*status))
	}
}

// progressLine renders a one-line summary of an install's progress:
// the stage, the percentage when the size is known and the byte counts
// of the phase in progress.
func progressLine(snapshot progress.Snapshot) string {
	var line strings.Builder
	line.WriteString(fmt.Sprintf("%-11s", snapshot.Stage()))

	if percent, known := snapshot.Percent(); known {
		line.WriteString(fmt.Sprintf(" %5.1f%%", percent))
	} else {
		line.WriteString("      ?")
	}

	current := snapshot.Downloaded
	switch {
	case snapshot.ValidationComplete:
		current = snapshot.Unpacked
	case snapshot.DownloadComplete:
		current = snapshot.Validated
	}
	if snapshot.Size != nil {
		line.WriteString(fmt.Sprintf("  %s / %s", humanize.Bytes(current), humanize.Bytes(*snapshot.Size)))
	} else {
		line.WriteString(fmt.Sprintf("  %s", humanize.Bytes(current)))
	}

	var done []string
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{snapshot.License, "license"},
		{snapshot.Instructions, "instructions"},
		{snapshot.Icon, "icon"},
		{snapshot.ImageLoaded, "image"},
	} {
		if flag.set {
			done = append(done, flag.name)
		}
	}
	if len(done) > 0 {
		line.WriteString("  [" + strings.Join(done, " ") + "]")
	}
	return line.String()
}
