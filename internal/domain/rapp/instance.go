package rapp

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// How long a stopped process gets to exit on SIGTERM before it is
// killed, and how long a SIGKILL gets before Stop gives up and reports
// the process as stuck.
const (
	defaultTermGrace = 5 * time.Second
	defaultKillGrace = 2 * time.Second
)

// Instance is a launchable application. Start runs the descriptor's
// command and yields the namespace-resolved endpoint sets; Stop
// terminates the process and yields the sets that were in use, even
// when termination itself fails, so callers can still withdraw them.
type Instance struct {
	desc *Descriptor
	log  *logging.Logger

	termGrace time.Duration
	killGrace time.Duration

	mu     sync.RWMutex
	cmd    *exec.Cmd
	done   chan struct{}
	active types.Endpoints
}

// NewInstance creates an instance for a descriptor.
func NewInstance(desc *Descriptor, log *logging.Logger) *Instance {
	if log == nil {
		log = logging.NewNop()
	}
	return &Instance{
		desc:      desc,
		log:       log,
		termGrace: defaultTermGrace,
		killGrace: defaultKillGrace,
	}
}

// Descriptor returns the underlying descriptor.
func (i *Instance) Descriptor() *Descriptor {
	return i.desc
}

// Start launches the application process and returns the endpoint sets
// it exposes, resolved against the effective namespace and remapping
// overrides.
func (i *Instance) Start(namespace string, remaps map[string]string, verbose bool) (types.Endpoints, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cmd != nil && !i.exited() {
		return types.Endpoints{}, fmt.Errorf("application %s is already running", i.desc.Name)
	}

	resolved := ResolveEndpoints(i.desc.Interface, namespace, remaps)

	cmd := exec.Command(i.desc.Launch.Command, i.desc.Launch.Args...)
	cmd.Dir = i.desc.Launch.WorkingDir
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "RAPP_NAME="+i.desc.Name)
	cmd.Env = append(cmd.Env, "RAPP_NAMESPACE="+namespace)
	if verbose {
		cmd.Env = append(cmd.Env, "RAPP_VERBOSE=1")
	}
	for key, value := range i.desc.Launch.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	// Verbose launches run on a pty and mirror the application's
	// output onto the daemon console.
	var ptmx *os.File
	if verbose {
		f, err := pty.Start(cmd)
		if err != nil {
			return types.Endpoints{}, fmt.Errorf("failed to launch %s: %w", i.desc.Name, err)
		}
		ptmx = f
		go func() { io.Copy(os.Stdout, f) }()
	} else if err := cmd.Start(); err != nil {
		return types.Endpoints{}, fmt.Errorf("failed to launch %s: %w", i.desc.Name, err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		if ptmx != nil {
			ptmx.Close()
		}
		close(done)
	}()

	i.cmd = cmd
	i.done = done
	i.active = resolved

	i.log.Info("application process launched",
		zap.String("name", i.desc.Name),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("namespace", namespace))

	return resolved, nil
}

// Stop terminates the process. The endpoint sets in use are returned
// alongside any error.
func (i *Instance) Stop() (types.Endpoints, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cmd == nil {
		return i.active, fmt.Errorf("application %s has not been started", i.desc.Name)
	}

	active := i.active
	if i.exited() {
		i.cmd = nil
		return active, nil
	}

	if err := i.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process may have exited between the check and the signal.
		select {
		case <-i.done:
			i.cmd = nil
			return active, nil
		default:
			return active, fmt.Errorf("failed to signal %s: %w", i.desc.Name, err)
		}
	}

	select {
	case <-i.done:
	case <-time.After(i.termGrace):
		i.log.Warn("application ignored SIGTERM, killing",
			zap.String("name", i.desc.Name))
		if err := i.cmd.Process.Kill(); err != nil {
			// Process may have exited between the timeout and the kill.
			select {
			case <-i.done:
			default:
				return active, fmt.Errorf("failed to kill %s: %w", i.desc.Name, err)
			}
		}
		// Bounded wait: a process stuck in the kernel must not wedge
		// the caller's transition lock. The slot stays occupied and a
		// later Stop retries.
		select {
		case <-i.done:
		case <-time.After(i.killGrace):
			return active, fmt.Errorf("application %s did not exit after SIGKILL", i.desc.Name)
		}
	}

	i.cmd = nil
	i.log.Info("application process stopped", zap.String("name", i.desc.Name))
	return active, nil
}

// IsRunning reports whether the process is still alive.
func (i *Instance) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cmd != nil && !i.exited()
}

// exited reports whether the wait goroutine has observed process exit.
// Caller holds mu.
func (i *Instance) exited() bool {
	if i.done == nil {
		return true
	}
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// ResolveEndpoints applies remapping overrides and namespace prefixing
// to declared endpoint names. Remaps match declared names and replace
// them entirely; names without a leading slash are then placed under
// the namespace.
func ResolveEndpoints(declared types.Endpoints, namespace string, remaps map[string]string) types.Endpoints {
	ns := strings.Trim(namespace, "/")
	resolve := func(names []string) []string {
		if len(names) == 0 {
			return nil
		}
		out := make([]string, 0, len(names))
		for _, name := range names {
			if target, ok := remaps[name]; ok {
				name = target
			}
			if !strings.HasPrefix(name, "/") && ns != "" {
				name = "/" + ns + "/" + name
			}
			out = append(out, name)
		}
		return out
	}

	return types.Endpoints{
		Subscribers:   resolve(declared.Subscribers),
		Publishers:    resolve(declared.Publishers),
		Services:      resolve(declared.Services),
		ActionClients: resolve(declared.ActionClients),
		ActionServers: resolve(declared.ActionServers),
	}
}
