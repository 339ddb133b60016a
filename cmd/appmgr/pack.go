// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/iofmt"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/s9pk"
)

type packParams struct {
	cli.JSONOutput
	Manifest     string `json:"manifest"      flag:"manifest,m"    desc:"manifest file (.yaml, .json, .jsonc or .cbor)" default:"manifest.yaml"`
	Image        string `json:"image"         flag:"image"         desc:"image tarball; .zst and .lz4 files are decompressed"`
	Icon         string `json:"icon"          flag:"icon"          desc:"icon file, with the extension named by assets.icon-type"`
	License      string `json:"license"       flag:"license"       desc:"license text" default:"LICENSE.md"`
	Instructions string `json:"instructions"  flag:"instructions"  desc:"instructions markdown (required when has-instructions is set)"`
	ConfigSpec   string `json:"config_spec"   flag:"config-spec"   desc:"configuration schema file (.yaml, .json, .toml or .cbor)"`
	Output       string `json:"output"        flag:"output,o"      desc:"archive path (default <id>.s9pk)"`
}

type packResult struct {
	Path    string          `json:"path"`
	Package pkgid.PackageID `json:"package"`
	Version pkgid.Version   `json:"version"`
	Hash    string          `json:"hash"`
	Size    int64           `json:"size"`
}

func packCommand() *cli.Command {
	var params packParams

	return &cli.Command{
		Name:    "pack",
		Summary: "Build an .s9pk archive",
		Description: `Build an .s9pk archive from a manifest and its assets.

The manifest is validated before anything is written. The image may be
a plain tarball or a zstd (.zst) or lz4 (.lz4) compressed one; the
archive always stores it uncompressed. The archive's content hash is
printed when packing finishes.`,
		Usage: "appmgr pack --image <tarball> --icon <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Pack with a JSONC manifest and instructions",
				Command:     "appmgr pack -m manifest.jsonc --image image.tar.lz4 --icon icon.svg --instructions INSTRUCTIONS.md",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			result, err := runPack(params, logger)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Fprintf(os.Stdout, "packed %s@%s into %s (%s)\n",
				result.Package, result.Version, result.Path, humanize.Bytes(uint64(result.Size)))
			fmt.Fprintf(os.Stdout, "hash: %s\n", result.Hash)
			return nil
		},
	}
}

func runPack(params packParams, logger *slog.Logger) (*packResult, error) {
	if params.Image == "" {
		return nil, cli.Validation("--image is required")
	}
	if params.Icon == "" {
		return nil, cli.Validation("--icon is required")
	}

	m, err := manifest.LoadFile(params.Manifest)
	if err != nil {
		return nil, cli.Validation("%w", err)
	}

	var configSpec any
	if params.ConfigSpec != "" {
		if err := iofmt.DecodeFile(params.ConfigSpec, &configSpec); err != nil {
			return nil, cli.Validation("reading config spec: %w", err)
		}
	}

	var closers []io.Closer
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
	}()
	openFile := func(path string) (io.Reader, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		closers = append(closers, file)
		return file, nil
	}

	image, err := s9pk.OpenImageSource(params.Image)
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	closers = append(closers, image)

	icon, err := openFile(params.Icon)
	if err != nil {
		return nil, err
	}
	license, err := openFile(params.License)
	if err != nil {
		return nil, err
	}
	var instructions io.Reader
	if params.Instructions != "" {
		instructions, err = openFile(params.Instructions)
		if err != nil {
			return nil, err
		}
	}

	outputPath := params.Output
	if outputPath == "" {
		outputPath = string(m.ID) + ".s9pk"
	}
	output, err := os.Create(outputPath)
	if err != nil {
		return nil, cli.Internal("creating archive: %w", err)
	}

	_, err = s9pk.Pack(output, s9pk.PackInput{
		Manifest:     m,
		ConfigSpec:   configSpec,
		Icon:         icon,
		AppImage:     image,
		License:      license,
		Instructions: instructions,
	}, logger)
	if err != nil {
		output.Close()
		os.Remove(outputPath)
		return nil, cli.Validation("%w", err)
	}

	if _, err := output.Seek(0, io.SeekStart); err != nil {
		output.Close()
		return nil, cli.Internal("rewinding archive: %w", err)
	}
	hash, size, err := s9pk.HashReader(output)
	if closeErr := output.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing archive: %w", closeErr)
	}
	if err != nil {
		return nil, cli.Internal("%w", err)
	}

	logger.Info("archive packed", "package", m.ID, "version", m.Version, "path", outputPath, "hash", hash)
	return &packResult{
		Path:    outputPath,
		Package: m.ID,
		Version: m.Version,
		Hash:    hash,
		Size:    size,
	}, nil
}
