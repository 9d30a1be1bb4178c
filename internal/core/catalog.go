package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// ErrDefinitionNotFound is returned when a job definition id is unknown.
var ErrDefinitionNotFound = errors.New("job definition not found")

// DefinitionCatalog is the read-through cache over the job definition store.
// Definitions are read-mostly reference data: the full set is loaded on first
// read and held until a write invalidates it or the TTL passes. Save
// invalidates before returning so no caller in this process can observe a
// stale definition after a write; the TTL bounds staleness across processes.
type DefinitionCatalog struct {
	repo   JobDefinitionRepository
	retry  RetryPolicy
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	byID     map[string]*model.JobDefinition
	loaded   bool
	loadedAt time.Time
}

// DefinitionCatalogOptions groups dependencies for DefinitionCatalog.
type DefinitionCatalogOptions struct {
	Repo   JobDefinitionRepository // Required: definition store
	Retry  RetryPolicy             // Optional: defaults to no retry
	TTL    time.Duration           // Optional: snapshot lifetime, 0 disables expiry
	Logger *slog.Logger            // Optional: structured logger
}

// NewDefinitionCatalog constructs a new DefinitionCatalog.
func NewDefinitionCatalog(opts DefinitionCatalogOptions) (*DefinitionCatalog, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobDefinitionRepository is required")
	}
	if opts.Retry == nil {
		opts.Retry = NoRetryPolicy{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "definition_catalog")
	}

	return &DefinitionCatalog{
		repo:   opts.Repo,
		retry:  opts.Retry,
		logger: logger,
		ttl:    opts.TTL,
		now:    time.Now,
	}, nil
}

// GetAll returns every job definition, loading from the store on cache miss.
func (c *DefinitionCatalog) GetAll(ctx context.Context) ([]*model.JobDefinition, error) {
	byID, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	definitions := make([]*model.JobDefinition, 0, len(byID))
	for _, d := range byID {
		definitions = append(definitions, d)
	}
	return definitions, nil
}

// GetByID returns one definition or ErrDefinitionNotFound.
func (c *DefinitionCatalog) GetByID(ctx context.Context, id string) (*model.JobDefinition, error) {
	byID, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	definition, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return definition, nil
}

// Save validates and persists a definition, then invalidates the cache before
// returning so subsequent reads refresh from the store.
func (c *DefinitionCatalog) Save(ctx context.Context, definition *model.JobDefinition) error {
	if definition == nil {
		return errors.New("definition is required")
	}
	if err := definition.Validate(); err != nil {
		return fmt.Errorf("validate definition: %w", err)
	}

	if err := c.retry.Execute(ctx, "save job definition", func(ctx context.Context) error {
		return c.repo.Save(ctx, definition)
	}); err != nil {
		return err
	}

	c.Invalidate()

	if c.logger != nil {
		c.logger.InfoContext(ctx, "job definition saved", "id", definition.ID)
	}
	return nil
}

// Invalidate drops the cached definition set.
func (c *DefinitionCatalog) Invalidate() {
	c.mu.Lock()
	c.byID = nil
	c.loaded = false
	c.mu.Unlock()
}

// snapshot returns the cached map, loading it under the write lock on miss
// or expiry.
func (c *DefinitionCatalog) snapshot(ctx context.Context) (map[string]*model.JobDefinition, error) {
	c.mu.RLock()
	if c.fresh() {
		byID := c.byID
		c.mu.RUnlock()
		return byID, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if c.fresh() {
		return c.byID, nil
	}

	var definitions []*model.JobDefinition
	if err := c.retry.Execute(ctx, "load job definitions", func(ctx context.Context) error {
		var loadErr error
		definitions, loadErr = c.repo.GetAll(ctx)
		return loadErr
	}); err != nil {
		return nil, err
	}

	byID := make(map[string]*model.JobDefinition, len(definitions))
	for _, d := range definitions {
		byID[d.ID] = d
	}
	c.byID = byID
	c.loaded = true
	c.loadedAt = c.now()

	if c.logger != nil {
		c.logger.DebugContext(ctx, "job definition cache refreshed", "count", len(byID))
	}
	return c.byID, nil
}

// fresh reports whether the cached snapshot may still be served.
// Callers must hold at least the read lock.
func (c *DefinitionCatalog) fresh() bool {
	if !c.loaded {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(c.loadedAt) < c.ttl
}
