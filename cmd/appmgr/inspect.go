// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/codec"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/s9pk"
)

var archiveSections = []s9pk.Section{
	s9pk.SectionManifest,
	s9pk.SectionConfigSpec,
	s9pk.SectionIcon,
	s9pk.SectionAppImage,
	s9pk.SectionLicense,
	s9pk.SectionInstructions,
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:    "inspect",
		Summary: "Inspect an .s9pk archive",
		Description: `Inspect an .s9pk archive without installing it.

Every subcommand validates the archive's header and manifest first and
fails on a corrupt archive.`,
		Subcommands: []*cli.Command{
			inspectInfoCommand(),
			inspectInstructionsCommand(),
			inspectHashCommand(),
		},
	}
}

// openArchive opens and validates the archive at path. The caller
// closes the returned file.
func openArchive(path string) (*os.File, *s9pk.ValidatedReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, cli.Validation("%w", err)
	}
	reader, err := s9pk.Open(file)
	if err != nil {
		file.Close()
		return nil, nil, cli.Validation("%s: %w", path, err)
	}
	validated, err := reader.Validate()
	if err != nil {
		file.Close()
		return nil, nil, cli.Validation("%s: %w", path, err)
	}
	return file, validated, nil
}

type inspectInfoParams struct {
	cli.JSONOutput
	ShowManifest bool `json:"manifest" flag:"manifest" desc:"include the full manifest"`
	ShowConfig   bool `json:"config"   flag:"config"   desc:"include the config spec in CBOR diagnostic notation"`
}

type sectionInfo struct {
	Name     string `json:"name"`
	Position uint64 `json:"position"`
	Length   uint64 `json:"length"`
}

type archiveInfo struct {
	Package    pkgid.PackageID    `json:"package"`
	Version    pkgid.Version      `json:"version"`
	Title      string             `json:"title"`
	Hash       string             `json:"hash"`
	Sections   []sectionInfo      `json:"sections"`
	Manifest   *manifest.Manifest `json:"manifest,omitempty"`
	ConfigSpec string             `json:"config_spec,omitempty"`
}

func inspectInfoCommand() *cli.Command {
	var params inspectInfoParams

	return &cli.Command{
		Name:    "info",
		Summary: "Show an archive's package, hash and sections",
		Usage:   "appmgr inspect info <archive> [--manifest] [--config]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr inspect info <archive>", "archive"); err != nil {
				return err
			}
			info, err := readArchiveInfo(args[0], params.ShowManifest, params.ShowConfig)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(info); done {
				return err
			}
			return printArchiveInfo(os.Stdout, info)
		},
	}
}

func readArchiveInfo(path string, withManifest, withConfig bool) (*archiveInfo, error) {
	file, validated, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m := validated.Manifest()
	header := validated.Header()
	info := &archiveInfo{
		Package: m.ID,
		Version: m.Version,
		Title:   m.Title,
		Hash:    validated.Hash(),
	}
	for _, section := range archiveSections {
		span := header.Span(section)
		if span.Length == 0 && span.Position == 0 {
			continue
		}
		info.Sections = append(info.Sections, sectionInfo{
			Name:     section.String(),
			Position: span.Position,
			Length:   span.Length,
		})
	}
	if withManifest {
		info.Manifest = m
	}
	if withConfig {
		raw, err := io.ReadAll(validated.ConfigSpec())
		if err != nil {
			return nil, cli.Internal("reading config spec: %w", err)
		}
		diagnostic, err := codec.Diagnose(raw)
		if err != nil {
			return nil, cli.Validation("%s: config spec: %w", path, err)
		}
		info.ConfigSpec = diagnostic
	}
	return info, nil
}

func printArchiveInfo(w io.Writer, info *archiveInfo) error {
	fmt.Fprintf(w, "%s %s (%s)\n", info.Package, info.Version, info.Title)
	fmt.Fprintf(w, "hash: %s\n\n", info.Hash)

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "SECTION\tPOSITION\tSIZE")
	for _, section := range info.Sections {
		fmt.Fprintf(writer, "%s\t%d\t%s\n", section.Name, section.Position, humanize.Bytes(section.Length))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if info.Manifest != nil {
		fmt.Fprintln(w, "\nmanifest:")
		if err := cli.WriteJSON(w, info.Manifest); err != nil {
			return err
		}
	}
	if info.ConfigSpec != "" {
		fmt.Fprintf(w, "\nconfig spec:\n%s\n", info.ConfigSpec)
	}
	return nil
}

type inspectInstructionsParams struct {
	HTML bool `json:"html" flag:"html" desc:"render the markdown as HTML"`
}

func inspectInstructionsCommand() *cli.Command {
	var params inspectInstructionsParams

	return &cli.Command{
		Name:    "instructions",
		Summary: "Print an archive's instructions",
		Usage:   "appmgr inspect instructions <archive> [--html]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("instructions", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr inspect instructions <archive>", "archive"); err != nil {
				return err
			}
			return writeInstructions(os.Stdout, args[0], params.HTML)
		},
	}
}

func writeInstructions(w io.Writer, path string, html bool) error {
	file, validated, err := openArchive(path)
	if err != nil {
		return err
	}
	defer file.Close()

	section := validated.Instructions()
	if section == nil {
		return cli.NotFound("%s has no instructions", validated.Manifest().ID)
	}
	source, err := io.ReadAll(section)
	if err != nil {
		return cli.Internal("reading instructions: %w", err)
	}
	if !html {
		_, err := w.Write(source)
		return err
	}

	markdown := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := markdown.Convert(source, w); err != nil {
		return cli.Internal("rendering instructions: %w", err)
	}
	return nil
}

type inspectHashParams struct {
	cli.JSONOutput
}

func inspectHashCommand() *cli.Command {
	var params inspectHashParams

	return &cli.Command{
		Name:    "hash",
		Summary: "Print an archive's content hash",
		Description: `Print the BLAKE3 content hash of a file, the value the registry
advertises for the archive download. The file is hashed as is; it does
not have to be a valid archive.`,
		Usage: "appmgr inspect hash <archive>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hash", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr inspect hash <archive>", "archive"); err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}
			defer file.Close()

			hash, size, err := s9pk.HashReader(file)
			if err != nil {
				return cli.Internal("%w", err)
			}
			if done, err := params.EmitJSON(map[string]any{"path": args[0], "hash": hash, "size": size}); done {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s  %s\n", hash, args[0])
			return nil
		},
	}
}
