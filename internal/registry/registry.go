// Package registry implements the Registry Supervisor: it
// starts, health-checks, and stops the local registry daemon (an external
// process — pkglab never implements a registry itself, only supervises
// one) and records its PID/port for later commands to find.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/log"
	"github.com/pkglab/pkglab/internal/pkgerrors"
)

// State is the supervisor's lifecycle state, mirroring the teacher's
// controlplane.WorkflowState + validTransitions pattern.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
	Failed   State = "failed"
)

var validTransitions = map[State]map[State]bool{
	Stopped:  {Starting: true},
	Starting: {Running: true, Failed: true, Stopped: true},
	Running:  {Stopping: true, Failed: true},
	Stopping: {Stopped: true, Failed: true},
	Failed:   {Starting: true},
}

// CanTransitionTo reports whether from->to is a legal transition.
func CanTransitionTo(from, to State) bool {
	return validTransitions[from][to]
}

// Info is the supervisor's persisted state — the caller (internal/store)
// is responsible for writing it into the catalog under the catalog lock;
// this package only computes it.
type Info struct {
	State State  `json:"state"`
	PID   int    `json:"pid,omitempty"`
	Port  int    `json:"port,omitempty"`
	Host  string `json:"host,omitempty"`
}

// URL returns the registry's base URL, or "" if not running.
func (i Info) URL() string {
	if i.Port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", i.Host, i.Port)
}

// Up brings the registry to Running: if prev already
// records a live PID, liveness is verified via signal-0 and the call
// short-circuits to Running without spawning a new process. Otherwise a
// new daemon is spawned in configDir and this blocks until the health
// probe succeeds or the configured deadline elapses.
func Up(ctx context.Context, cfg config.Config, configDir string, prev Info) (Info, error) {
	if prev.PID != 0 && isProcessAlive(prev.PID) {
		log.Info(log.CatRegistry, "registry already running", "pid", prev.PID, "port", prev.Port)
		return Info{State: Running, PID: prev.PID, Port: prev.Port, Host: cfg.RegistryHost}, nil
	}

	port, err := choosePort(cfg)
	if err != nil {
		return Info{State: Failed}, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Info{State: Failed}, pkgerrors.New(pkgerrors.RegistryDown, configDir, err)
	}

	cmd := buildCommand(cfg, configDir, port)
	if err := cmd.Start(); err != nil {
		return Info{State: Failed}, pkgerrors.New(pkgerrors.RegistryDown, cfg.RegistryCommand, err)
	}
	log.Info(log.CatRegistry, "registry daemon spawned", "pid", cmd.Process.Pid, "port", port)

	info := Info{State: Starting, PID: cmd.Process.Pid, Port: port, Host: cfg.RegistryHost}
	if err := waitHealthy(ctx, info.URL(), cfg); err != nil {
		_ = cmd.Process.Kill()
		return Info{State: Failed, PID: info.PID, Port: info.Port, Host: info.Host}, err
	}

	info.State = Running
	return info, nil
}

// Down stops the registry recorded in prev: SIGTERM, then SIGKILL after
// the configured stop timeout if it has not exited.
func Down(cfg config.Config, prev Info) (Info, error) {
	if prev.PID == 0 || !isProcessAlive(prev.PID) {
		return Info{State: Stopped}, nil
	}

	proc, err := os.FindProcess(prev.PID)
	if err != nil {
		return Info{State: Stopped}, nil
	}

	log.Info(log.CatRegistry, "stopping registry daemon", "pid", prev.PID)
	if err := terminate(proc); err != nil {
		return Info{State: Failed, PID: prev.PID, Port: prev.Port}, pkgerrors.New(pkgerrors.RegistryDown, "down", err)
	}

	deadline := time.Now().Add(time.Duration(cfg.StopTimeoutMS) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !isProcessAlive(prev.PID) {
			return Info{State: Stopped}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if !isProcessAlive(prev.PID) {
		return Info{State: Stopped}, nil
	}
	log.Warn(log.CatRegistry, "registry did not exit in time, killing", "pid", prev.PID)
	_ = kill(proc)
	return Info{State: Stopped}, nil
}

// Ping reports whether the registry at url answers its health endpoint.
func Ping(ctx context.Context, url string) error {
	if url == "" {
		return pkgerrors.New(pkgerrors.RegistryDown, "", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/-/ping", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return pkgerrors.New(pkgerrors.RegistryDown, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return pkgerrors.Newf(pkgerrors.RegistryDown, url, "ping returned %d", resp.StatusCode)
	}
	return nil
}

func waitHealthy(ctx context.Context, url string, cfg config.Config) error {
	deadline := time.Now().Add(time.Duration(cfg.HealthTimeoutMS) * time.Millisecond)
	poll := time.Duration(cfg.HealthPollMS) * time.Millisecond
	var lastErr error
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, poll)
		lastErr = Ping(pingCtx, url)
		cancel()
		if lastErr == nil {
			return nil
		}
		time.Sleep(poll)
	}
	return pkgerrors.New(pkgerrors.RegistryDown, url, lastErr)
}

func choosePort(cfg config.Config) (int, error) {
	if cfg.RegistryPortEnd <= cfg.RegistryPort {
		return cfg.RegistryPort, nil
	}
	for port := cfg.RegistryPort; port <= cfg.RegistryPortEnd; port++ {
		if portFree(cfg.RegistryHost, port) {
			return port, nil
		}
	}
	return 0, pkgerrors.Newf(pkgerrors.RegistryDown, "", "no free port in [%d,%d]", cfg.RegistryPort, cfg.RegistryPortEnd)
}

// buildCommand deliberately does not tie the daemon's lifetime to any
// context: registry child processes outlive the CLI process
// that spawned them and are only ever stopped by an explicit Down call.
func buildCommand(cfg config.Config, configDir string, port int) *exec.Cmd {
	args := make([]string, len(cfg.RegistryArgs))
	for i, a := range cfg.RegistryArgs {
		a = strings.ReplaceAll(a, "{{port}}", strconv.Itoa(port))
		a = strings.ReplaceAll(a, "{{configDir}}", configDir)
		args[i] = a
	}
	//nolint:gosec // G204: RegistryCommand/Args come from the loaded config file, not untrusted input
	cmd := exec.Command(cfg.RegistryCommand, args...)
	cmd.Dir = configDir
	return cmd
}
