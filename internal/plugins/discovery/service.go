// Package discovery registers the JS plugin modules found on disk as lazy
// descriptors of a plugin catalog.
package discovery

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/nupi-ai/shellboot/internal/pluginmanifest"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/plugins/jsmodule"
)

// Service keeps the plugin directory in sync with the catalog.
type Service struct {
	pluginDir string
	catalog   *plugins.Catalog
	extract   func(string) error
	loaderFor func(path, name string) plugins.Loader
	logger    *log.Logger

	mu       sync.RWMutex
	warnings []string
	modules  []string
}

// Option configures optional behaviour on the Service.
type Option func(*Service)

// WithExtractor overrides the function used to materialise built-in plugins.
// A nil extractor disables extraction.
func WithExtractor(extractor func(string) error) Option {
	return func(s *Service) {
		s.extract = extractor
	}
}

// WithLoaderFactory overrides how lazy loaders are built for manifests.
func WithLoaderFactory(fn func(path, name string) plugins.Loader) Option {
	return func(s *Service) {
		if fn != nil {
			s.loaderFor = fn
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a service registering modules of pluginDir into catalog.
func NewService(pluginDir string, catalog *plugins.Catalog, opts ...Option) *Service {
	svc := &Service{
		pluginDir: pluginDir,
		catalog:   catalog,
		extract:   ExtractEmbedded,
		loaderFor: jsmodule.Loader,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// PluginDir returns the directory where plugin modules are stored.
func (s *Service) PluginDir() string {
	return s.pluginDir
}

// Warnings returns the problems met during the last discovery.
func (s *Service) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.warnings...)
}

// Modules returns the plugin names registered by the last discovery.
func (s *Service) Modules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.modules...)
}

// LoadModules discovers manifests and registers a lazy descriptor for each.
// Invalid manifests are skipped and reported through Warnings.
func (s *Service) LoadModules() error {
	manifests, err := pluginmanifest.Discover(s.pluginDir)
	if err != nil {
		return fmt.Errorf("plugin service: discover: %w", err)
	}

	var warnings, modules []string
	for _, m := range manifests {
		name := m.PluginName()
		if name == "" {
			warnings = append(warnings, fmt.Sprintf("%s: missing plugin name", m.File))
			continue
		}
		if _, err := os.Stat(m.MainPath()); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: main script: %v", m.File, err))
			continue
		}

		var opts []plugins.LazyOption
		if m.Module.Override {
			opts = append(opts, plugins.WithOverride())
		}
		if err := s.catalog.Register(plugins.Lazy(name, s.loaderFor(m.MainPath(), name), opts...)); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", m.File, err))
			continue
		}
		modules = append(modules, name)
	}

	for _, w := range warnings {
		s.logger.Printf("[Plugins] skip module %s", w)
	}

	s.mu.Lock()
	s.warnings = warnings
	s.modules = modules
	s.mu.Unlock()
	return nil
}

// Start extracts built-in modules and registers everything found on disk.
func (s *Service) Start(ctx context.Context) error {
	if s.catalog == nil {
		return fmt.Errorf("plugin service: catalog is nil")
	}
	if err := os.MkdirAll(s.pluginDir, 0o755); err != nil {
		return fmt.Errorf("plugin service: ensure plugin dir: %w", err)
	}
	if s.extract != nil {
		s.logger.Printf("[Plugins] Updating built-in plugins...")
		if err := s.extract(s.pluginDir); err != nil {
			return err
		}
	}
	if err := s.LoadModules(); err != nil {
		return err
	}
	s.logger.Printf("[Plugins] %d lazy modules registered", len(s.Modules()))
	return nil
}

// Shutdown is a no-op for plugin discovery.
func (s *Service) Shutdown(ctx context.Context) error {
	return nil
}
