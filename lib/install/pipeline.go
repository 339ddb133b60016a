// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/secretstore"
)

// Default timeouts used when Config leaves them zero.
const (
	DefaultDownloadTimeout  = 30 * time.Minute
	DefaultImageLoadTimeout = 10 * time.Minute
)

// Config holds the pipeline's collaborators and settings. Every
// collaborator except Metrics is required.
type Config struct {
	Registry     Resolver
	Packages     *pkgstate.Store
	Secrets      *secretstore.Store
	Images       ImageLoader
	Volumes      VolumeManager
	Interfaces   InterfaceController
	Managers     ProcessManagers
	Migrations   Migrator
	Configurator Configurator

	// CacheDir holds downloaded archives as
	// <CacheDir>/<id>/<version>/<id>.s9pk.
	CacheDir string

	// PublicDir receives unpacked assets as
	// <PublicDir>/<id>/<version>/{LICENSE.md,INSTRUCTIONS.md,icon.<type>}.
	PublicDir string

	// HostVersion, when set, rejects packages whose min-os-version is
	// newer.
	HostVersion pkgid.Version

	DownloadTimeout  time.Duration
	ImageLoadTimeout time.Duration

	// ProgressInterval is how often download progress is persisted.
	// Zero uses progress.DefaultInterval.
	ProgressInterval time.Duration

	Clock   clock.Clock
	Metrics Metrics
	Logger  *slog.Logger
}

func (c *Config) validate() error {
	var missing []string
	for name, present := range map[string]bool{
		"Registry":     c.Registry != nil,
		"Packages":     c.Packages != nil,
		"Secrets":      c.Secrets != nil,
		"Images":       c.Images != nil,
		"Volumes":      c.Volumes != nil,
		"Interfaces":   c.Interfaces != nil,
		"Managers":     c.Managers != nil,
		"Migrations":   c.Migrations != nil,
		"Configurator": c.Configurator != nil,
		"CacheDir":     c.CacheDir != "",
		"PublicDir":    c.PublicDir != "",
	} {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("install: missing configuration: %v", missing)
	}
	return nil
}

// Pipeline installs packages. It is safe for concurrent use; installs
// of different packages run in parallel, and a second install of a
// package already in flight is refused with *pkgstate.ConflictError.
type Pipeline struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	// ctx bounds every background install; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wait   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	jobs   map[pkgid.PackageID]*Job

	// commitRegistry commits the package registry transaction after the
	// secret store has committed. Tests replace it to force a commit
	// failure.
	commitRegistry func(*pkgstate.Tx) error
}

// New creates a pipeline.
func New(config Config) (*Pipeline, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.DownloadTimeout <= 0 {
		config.DownloadTimeout = DefaultDownloadTimeout
	}
	if config.ImageLoadTimeout <= 0 {
		config.ImageLoadTimeout = DefaultImageLoadTimeout
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		config:         config,
		clock:          clk,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		jobs:           make(map[pkgid.PackageID]*Job),
		commitRegistry: (*pkgstate.Tx).Commit,
	}, nil
}

// Job is one install running in the background.
type Job struct {
	Package  pkgid.PackageID
	Version  pkgid.Version
	Attempt  string
	Updating bool
	Progress *progress.InstallProgress

	done chan struct{}
	err  error
}

// Done is closed when the install finishes.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the install's error. It is only meaningful after Done is
// closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the install finishes and returns its error, or
// returns ctx's error if ctx ends first. The install keeps running
// when Wait gives up.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Install runs Begin and waits for the job.
func (p *Pipeline) Install(ctx context.Context, target string) error {
	job, err := p.Begin(ctx, target)
	if err != nil {
		return err
	}
	return job.Wait(ctx)
}

// Begin resolves target ("id" or "id@range"), claims the package's
// slot and starts the install in the background. It returns once the
// slot transition is committed. Cancelling ctx aborts the resolve
// but not the started install.
func (p *Pipeline) Begin(ctx context.Context, target string) (*Job, error) {
	parsed, err := pkgid.ParseTarget(target)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	// The download request is bound to downloadCtx, which outlives
	// this call. ctx only bounds it until Begin returns.
	downloadCtx, cancelDownload := context.WithTimeout(p.ctx, p.config.DownloadTimeout)
	stopPropagation := context.AfterFunc(ctx, cancelDownload)
	defer stopPropagation()

	resolution, err := p.config.Registry.Resolve(downloadCtx, parsed.ID, parsed.Range)
	if err != nil {
		cancelDownload()
		return nil, fmt.Errorf("resolving %s: %w", target, err)
	}
	abandon := func() {
		resolution.Download.Body.Close()
		cancelDownload()
	}

	incoming := resolution.Manifest
	if !p.config.HostVersion.IsZero() {
		if err := incoming.CheckHost(p.config.HostVersion); err != nil {
			abandon()
			return nil, err
		}
	}

	job := &Job{
		Package:  incoming.ID,
		Version:  incoming.Version,
		Attempt:  uuid.NewString(),
		Progress: progress.New(resolution.Download.ContentLength),
		done:     make(chan struct{}),
	}
	job.Updating, err = p.claimSlot(ctx, incoming, job.Progress.Snapshot())
	if err != nil {
		abandon()
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		abandon()
		p.releaseSlot(incoming.ID)
		return nil, ErrClosed
	}
	p.jobs[job.Package] = job
	p.wait.Add(1)
	p.mu.Unlock()

	p.config.Metrics.InstallStarted(job.Package)
	p.logger.Info("install started",
		"package", job.Package,
		"version", job.Version,
		"attempt", job.Attempt,
		"updating", job.Updating,
	)
	go p.run(job, resolution, downloadCtx, cancelDownload)
	return job, nil
}

// claimSlot performs the slot transition and reports whether the
// install is an update.
func (p *Pipeline) claimSlot(ctx context.Context, incoming *manifest.Manifest, initial progress.Snapshot) (bool, error) {
	var updating bool
	err := p.config.Packages.Update(ctx, func(tx *pkgstate.Tx) error {
		existing, err := tx.Get(incoming.ID)
		if err != nil {
			return err
		}
		var next pkgstate.Entry
		switch current := existing.(type) {
		case nil:
			next = &pkgstate.Installing{Progress: initial, Manifest: incoming}
		case *pkgstate.Installed:
			updating = true
			next = &pkgstate.Updating{
				Progress:    initial,
				Manifest:    current.Manifest,
				Installed:   current.Installed,
				StaticFiles: current.StaticFiles,
				Incoming:    incoming,
			}
		case *pkgstate.Installing, *pkgstate.Updating:
			return &pkgstate.ConflictError{ID: incoming.ID, State: current.State()}
		default:
			panic(fmt.Sprintf("install: unknown entry type %T", existing))
		}
		return tx.Put(incoming.ID, next)
	})
	return updating, err
}

// releaseSlot undoes a slot claim for an install that never started.
func (p *Pipeline) releaseSlot(id pkgid.PackageID) {
	if _, err := p.restoreSlot(context.Background(), id); err != nil {
		p.logger.Error("releasing slot of unstarted install", "package", id, "error", err)
	}
}

func (p *Pipeline) run(job *Job, resolution *registry.Resolution, downloadCtx context.Context, cancelDownload context.CancelFunc) {
	defer p.wait.Done()
	defer cancelDownload()
	defer resolution.Download.Body.Close()

	started := p.clock.Now()
	logger := p.logger.With("package", job.Package, "version", job.Version, "attempt", job.Attempt)

	err := p.install(p.ctx, downloadCtx, job, resolution, logger)
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
		logger.Error("install failed", "error", err)
		if recordErr := p.config.Packages.RecordBroken(context.WithoutCancel(p.ctx), job.Package, err); recordErr != nil {
			err = errors.Join(err, recordErr)
		}
	} else {
		logger.Info("install complete", "duration", p.clock.Now().Sub(started))
	}

	p.mu.Lock()
	delete(p.jobs, job.Package)
	p.mu.Unlock()

	job.err = err
	close(job.done)
	p.config.Metrics.InstallFinished(job.Package, result, p.clock.Now().Sub(started))
}

// Progress returns the progress of the install of id: the live
// counters while this pipeline runs it, otherwise the snapshot last
// persisted into the slot.
func (p *Pipeline) Progress(ctx context.Context, id pkgid.PackageID) (progress.Snapshot, error) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	p.mu.Unlock()
	if ok {
		return job.Progress.Snapshot(), nil
	}

	entry, err := p.config.Packages.Get(ctx, id)
	if err != nil {
		return progress.Snapshot{}, err
	}
	snapshot, ok := pkgstate.Progress(entry)
	if !ok {
		return progress.Snapshot{}, fmt.Errorf("%s: %w", id, ErrNotInFlight)
	}
	return snapshot, nil
}

// Active lists the packages this pipeline is installing.
func (p *Pipeline) Active() []pkgid.PackageID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]pkgid.PackageID, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pipeline) active(id pkgid.PackageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[id]
	return ok
}

// Close cancels in-flight installs and waits for them to finish. The
// cancelled installs are recorded as broken.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wait.Wait()
}
