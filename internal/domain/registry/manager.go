package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/capability"
	"github.com/meridian-robotics/rappd/internal/domain/rapp"
	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// descriptorSuffix selects catalog files during directory scans.
const descriptorSuffix = ".rapp.yaml"

// Gate answers whether a set of required capabilities is satisfiable.
type Gate interface {
	CompatibilityCheck(ctx context.Context, required []string) error
}

// Manager holds the catalog of installed applications and the subset
// currently runnable. Installed membership changes only on (re)load;
// lifecycle operations never mutate it.
type Manager struct {
	platform types.PlatformInfo
	gate     Gate
	log      *logging.Logger
	metrics  *monitoring.Metrics

	mu        sync.RWMutex
	installed map[string]*rapp.Descriptor
	runnable  map[string]*rapp.Descriptor
}

// NewManager creates a catalog manager. gate may be nil when the
// capability server is disabled; applications with requirements are
// then excluded from the runnable subset.
func NewManager(platform types.PlatformInfo, gate Gate, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		platform:  platform,
		gate:      gate,
		log:       log,
		metrics:   metrics,
		installed: make(map[string]*rapp.Descriptor),
		runnable:  make(map[string]*rapp.Descriptor),
	}
}

// Load scans the given locations for *.rapp.yaml descriptors, drops
// incompatible ones, and recomputes the runnable subset. A location is
// a directory to walk or, when it contains glob metacharacters, a
// pattern expanded against the filesystem. The previous catalog is
// replaced wholesale.
func (m *Manager) Load(ctx context.Context, paths ...string) error {
	installed := make(map[string]*rapp.Descriptor)
	var loaded, failed, incompatible int

	// fastwalk invokes the walk callback from multiple goroutines.
	var scanMu sync.Mutex
	collect := func(path string) {
		d, err := rapp.LoadDescriptor(path)

		scanMu.Lock()
		defer scanMu.Unlock()

		if err != nil {
			m.log.Warn("skipping unloadable descriptor", zap.Error(err))
			failed++
			return
		}

		if !m.platform.MatchesTriple(d.Compatibility) {
			m.log.Warn("skipping incompatible descriptor",
				zap.String("name", d.Name),
				zap.String("compatibility", d.Compatibility),
				zap.String("platform", m.platform.Triple()))
			incompatible++
			return
		}

		if _, dup := installed[d.Name]; dup {
			m.log.Warn("duplicate descriptor name, replacing previous",
				zap.String("name", d.Name),
				zap.String("path", path))
		}
		installed[d.Name] = d
		loaded++
	}

	for _, root := range paths {
		if isGlobPattern(root) {
			matches, err := doublestar.FilepathGlob(root)
			if err != nil {
				return fmt.Errorf("failed to expand catalog glob %s: %w", root, err)
			}
			for _, match := range matches {
				if strings.HasSuffix(match, descriptorSuffix) {
					collect(match)
				}
			}
			continue
		}

		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("catalog directory not found", zap.String("path", root))
			continue
		}

		conf := fastwalk.Config{Follow: false}
		err := fastwalk.Walk(&conf, root, func(path string, entry os.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return err
			}
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), descriptorSuffix) {
				return nil
			}
			collect(path)
			return nil
		})
		if err != nil {
			return err
		}
	}

	runnable := m.determineRunnable(ctx, installed)

	m.mu.Lock()
	m.installed = installed
	m.runnable = runnable
	m.mu.Unlock()

	m.metrics.SetCatalogCounts(len(installed), len(runnable))
	m.log.Info("catalog loaded",
		zap.Int("installed", len(installed)),
		zap.Int("runnable", len(runnable)),
		zap.Int("failed", failed),
		zap.Int("incompatible", incompatible))
	return nil
}

// determineRunnable asks the capability gate about every installed
// application's requirements. Applications without requirements are
// always runnable; when the gate is absent or unreachable, those with
// requirements are excluded.
func (m *Manager) determineRunnable(ctx context.Context, installed map[string]*rapp.Descriptor) map[string]*rapp.Descriptor {
	runnable := make(map[string]*rapp.Descriptor)

	for name, d := range installed {
		if len(d.RequiredCapabilities) == 0 {
			runnable[name] = d
			continue
		}
		if m.gate == nil {
			m.log.Debug("capability gate disabled, app not runnable",
				zap.String("name", name))
			continue
		}

		err := m.gate.CompatibilityCheck(ctx, d.RequiredCapabilities)
		switch {
		case err == nil:
			runnable[name] = d
		case errors.Is(err, capability.ErrUnavailable):
			m.log.Warn("capability server unreachable, app not runnable",
				zap.String("name", name))
		default:
			m.log.Info("app requirements unsatisfied",
				zap.String("name", name),
				zap.Error(err))
		}
	}

	return runnable
}

// Installed returns the installed descriptors sorted by name.
func (m *Manager) Installed() []*rapp.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sorted(m.installed)
}

// Runnable returns the runnable descriptors sorted by name.
func (m *Manager) Runnable() []*rapp.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sorted(m.runnable)
}

// Find returns the installed descriptor with the given name.
func (m *Manager) Find(name string) (*rapp.Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.installed[name]
	return d, ok
}

// IsInstalled reports whether name is in the installed catalog.
func (m *Manager) IsInstalled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.installed[name]
	return ok
}

// IsRunnable reports whether name is in the runnable subset.
func (m *Manager) IsRunnable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.runnable[name]
	return ok
}

// Counts returns the installed and runnable catalog sizes.
func (m *Manager) Counts() (installed, runnable int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.installed), len(m.runnable)
}

// InstalledInfo returns wire snapshots of the installed catalog, with
// the running application marked.
func (m *Manager) InstalledInfo(running string) []types.RappInfo {
	return infoList(m.Installed(), running)
}

// RunnableInfo returns wire snapshots of the runnable subset, with the
// running application marked.
func (m *Manager) RunnableInfo(running string) []types.RappInfo {
	return infoList(m.Runnable(), running)
}

func infoList(list []*rapp.Descriptor, running string) []types.RappInfo {
	infos := make([]types.RappInfo, 0, len(list))
	for _, d := range list {
		status := types.StatusStopped
		if d.Name == running {
			status = types.StatusRunning
		}
		infos = append(infos, d.Info(status))
	}
	return infos
}

// isGlobPattern reports whether a catalog path should be expanded as
// a glob rather than walked as a directory.
func isGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func sorted(set map[string]*rapp.Descriptor) []*rapp.Descriptor {
	out := make([]*rapp.Descriptor, 0, len(set))
	for _, d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
