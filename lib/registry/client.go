// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/netutil"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/s9pk"
)

// HashHeader carries the archive's content hash.
const HashHeader = "X-S9pk-Hash"

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the registry root, e.g. "https://registry.example".
	BaseURL string

	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient. Its Timeout must be zero or long enough for
	// a whole archive download; bound downloads with the context
	// instead.
	HTTPClient *http.Client

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Client talks to one registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a registry client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("registry: invalid base URL %q", config.BaseURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Download is an open archive download.
type Download struct {
	// Body streams the archive. The caller must Close it.
	Body io.ReadCloser

	// ContentLength is the declared size, or -1 when unknown.
	ContentLength int64

	// Hash is the declared content hash, or empty.
	Hash string
}

// Resolution is the result of resolving an install target.
type Resolution struct {
	Manifest *manifest.Manifest
	Download *Download
}

// Resolve fetches the manifest and opens the archive download for the
// newest version of id in versionRange. The download body stays bound
// to ctx: cancel ctx only once the body has been consumed.
func (c *Client) Resolve(ctx context.Context, id pkgid.PackageID, versionRange pkgid.VersionRange) (*Resolution, error) {
	query := url.Values{"version": {versionRange.String()}}.Encode()
	manifestURL := c.baseURL + "/package/manifest/" + url.PathEscape(string(id)) + "?" + query
	archiveURL := c.baseURL + "/package/" + url.PathEscape(string(id)) + ".s9pk?" + query

	// A plain Group: errgroup.WithContext would cancel the download
	// body as soon as Wait returns.
	var group errgroup.Group
	var resolved manifest.Manifest
	var download *Download

	group.Go(func() error {
		m, err := c.fetchManifest(ctx, manifestURL)
		if err != nil {
			return err
		}
		resolved = *m
		return nil
	})
	group.Go(func() error {
		d, err := c.openDownload(ctx, archiveURL)
		if err != nil {
			return err
		}
		download = d
		return nil
	})
	if err := group.Wait(); err != nil {
		if download != nil {
			download.Body.Close()
		}
		return nil, err
	}

	if resolved.ID != id {
		download.Body.Close()
		return nil, fmt.Errorf("registry: requested %s, manifest is for %s", id, resolved.ID)
	}
	if !resolved.Version.Satisfies(versionRange) {
		download.Body.Close()
		return nil, fmt.Errorf("registry: %s@%s does not satisfy %s", id, resolved.Version, versionRange)
	}

	c.logger.Info("package resolved",
		"package", id,
		"version", resolved.Version,
		"size", download.ContentLength,
		"hash", download.Hash,
	)
	return &Resolution{Manifest: &resolved, Download: download}, nil
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: creating request: %w", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, WrapTransport("GET "+target, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body := netutil.ErrorBody(response.Body)
		response.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: response.StatusCode, Body: strings.TrimSpace(body)}
	}
	return response, nil
}

func (c *Client) fetchManifest(ctx context.Context, target string) (*manifest.Manifest, error) {
	response, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, WrapTransport("reading manifest", err)
	}
	m, err := manifest.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", target, err)
	}
	return m, nil
}

func (c *Client) openDownload(ctx context.Context, target string) (*Download, error) {
	response, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	download := &Download{Body: response.Body, ContentLength: response.ContentLength}

	if hash := response.Header.Get(HashHeader); hash != "" {
		hash = strings.ToLower(strings.TrimSpace(hash))
		if s9pk.ValidHash(hash) {
			download.Hash = hash
		} else {
			c.logger.Warn("ignoring malformed archive hash header", "url", target, "hash", hash)
		}
	}
	return download, nil
}
