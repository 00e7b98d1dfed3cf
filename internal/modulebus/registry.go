package modulebus

import (
	"context"
	"fmt"
	"sync"
)

// Logger is the narrow logging interface the registry accepts.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides module lookup and parameter updates with caching and
// thread safety. It wraps a Repository and adds an in-memory cache for fast
// lookups, the same shape as the hub's device registry.
//
// The cache is populated on startup via RefreshCache and kept in sync by
// cache-invalidating CRUD and parameter-update operations.
type Registry struct {
	repo    Repository
	cache   map[string]*Module
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Module),
		logger: noopLogger{},
	}
}

// SetLogger sets the registry's logger.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads every module from the repository into the cache.
// Call this once at startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	modules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading modules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Module, len(modules))
	for i := range modules {
		m := modules[i]
		r.cache[m.ID] = m.DeepCopy()
	}

	r.logger.Info("module cache refreshed", "count", len(modules))
	return nil
}

// GetModule retrieves a module by ID. The returned module is a deep copy;
// callers can safely modify it. Falls back to the repository on a cache
// miss (a module created elsewhere and not yet cached).
func (r *Registry) GetModule(ctx context.Context, id string) (*Module, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	m, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = m.DeepCopy()
	r.cacheMu.Unlock()
	return m, nil
}

// ListModules returns every cached module. The returned modules are deep
// copies; callers can safely modify them.
func (r *Registry) ListModules() []Module {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	modules := make([]Module, 0, len(r.cache))
	for _, m := range r.cache {
		modules = append(modules, *m.DeepCopy())
	}
	return modules
}

// ListByDomain returns every cached module in domain.
func (r *Registry) ListByDomain(domain string) []Module {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var modules []Module
	for _, m := range r.cache {
		if m.Domain == domain {
			modules = append(modules, *m.DeepCopy())
		}
	}
	return modules
}

// CreateModule validates, persists, and caches a new module.
func (r *Registry) CreateModule(ctx context.Context, m *Module) error {
	if err := ValidateModule(m); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, m); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[m.ID] = m.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("module created", "id", m.ID, "domain", m.Domain)
	return nil
}

// UpdateModule validates and persists changes to an existing module.
func (r *Registry) UpdateModule(ctx context.Context, m *Module) error {
	if err := ValidateModule(m); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, m); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[m.ID] = m.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("module updated", "id", m.ID)
	return nil
}

// DeleteModule removes a module from the repository and cache.
func (r *Registry) DeleteModule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("module deleted", "id", id)
	return nil
}

// SetParameter persists a parameter value for module id and updates the
// cache in place, creating the cache entry (and, if unknown to the
// repository, the module itself) if it does not already exist. This is the
// hot path driven by incoming module-bus state messages.
func (r *Registry) SetParameter(ctx context.Context, id, domain, protocol, name string, value any) error {
	if err := r.repo.SetParameter(ctx, id, name, fmt.Sprint(value)); err != nil {
		if isNoRows(err) || r.moduleMissing(ctx, id) {
			m := NewModule(id, domain, protocol)
			m.Parameters[name] = value
			if createErr := r.CreateModule(ctx, m); createErr != nil {
				return createErr
			}
			return nil
		}
		return err
	}

	r.cacheMu.Lock()
	cached, ok := r.cache[id]
	if !ok {
		cached = NewModule(id, domain, protocol)
	}
	updated := cached.DeepCopy()
	updated.Parameters[name] = value
	r.cache[id] = updated
	r.cacheMu.Unlock()

	r.logger.Debug("module parameter updated", "id", id, "name", name)
	return nil
}

func (r *Registry) moduleMissing(ctx context.Context, id string) bool {
	_, err := r.repo.GetByID(ctx, id)
	return err == ErrModuleNotFound
}

// Count returns the number of cached modules.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
