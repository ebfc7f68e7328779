package supervisor

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

// Status is one plugin instance's place in the lifecycle state machine
// (spec.md §4.4). There are no terminal states: every value is reachable
// from another through events or operator action.
type Status string

const (
	StatusStopped             Status = "stopped"
	StatusWaitingDependencies Status = "waiting_dependencies"
	StatusStarting            Status = "starting"
	StatusRunning             Status = "running"
	StatusStopping            Status = "stopping"
	StatusKilled              Status = "killed"
	StatusFailed              Status = "failed"
	StatusSafeMode            Status = "safe_mode"
)

// CircuitState gates automatic restarts so a crash-looping plugin cannot
// destabilize the kernel (spec.md §4.4).
type CircuitState string

const (
	CircuitNormal   CircuitState = "normal"
	CircuitDegraded CircuitState = "degraded"
	CircuitOpen     CircuitState = "circuit_open"
)

const (
	degradedCooldown    = 60 * time.Second
	circuitOpenCooldown = 300 * time.Second
	stopPollInterval    = 100 * time.Millisecond
)

// instance is one plugin's child process plus its lifecycle bookkeeping.
// It carries no lock of its own — the owning Manager's mutex protects
// every field (spec.md §5).
type instance struct {
	manifest      Manifest
	handle        ProcessHandle
	status        Status
	failureReason string

	startedAt    *time.Time
	lastActivity *time.Time

	restartCount        uint32
	instanceID          string
	lastRestartAttempt  *time.Time
	circuitState        CircuitState
	lastWorkingManifest *Manifest

	logger *slog.Logger
}

func newInstance(manifest Manifest, logger *slog.Logger) *instance {
	return &instance{
		manifest:     manifest,
		status:       StatusStopped,
		instanceID:   uuid.NewString(),
		circuitState: CircuitNormal,
		logger:       logger,
	}
}

// start spawns the child process. The caller is responsible for checking
// that dependencies are satisfied before calling this.
func (in *instance) start(globalEnv map[string]string) error {
	if in.status == StatusRunning || in.status == StatusStarting {
		return kernelerrors.PluginStartFailure("starting plugin", fmt.Errorf("%s is already loaded", in.manifest.Name))
	}

	in.status = StatusStarting

	cmd := exec.Command(in.manifest.Binary)
	env := make([]string, 0, len(globalEnv)+len(in.manifest.Env)+2)
	for k, v := range globalEnv {
		env = append(env, k+"="+v)
	}
	for k, v := range in.manifest.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "SYMBION_PLUGIN_NAME="+in.manifest.Name, "SYMBION_PLUGIN_INSTANCE_ID="+in.instanceID)
	cmd.Env = env
	cmd.Stdout = &pluginOutputWriter{logger: in.logger, plugin: in.manifest.Name, stream: "stdout"}
	cmd.Stderr = &pluginOutputWriter{logger: in.logger, plugin: in.manifest.Name, stream: "stderr"}

	handle := newProcessHandle(cmd)
	if err := handle.Start(); err != nil {
		in.status = StatusFailed
		in.failureReason = fmt.Sprintf("spawn failed: %v", err)
		in.updateCircuitState()
		return kernelerrors.PluginStartFailure(fmt.Sprintf("starting plugin %s", in.manifest.Name), err)
	}

	now := time.Now().UTC()
	in.handle = handle
	in.status = StatusRunning
	in.startedAt = &now
	in.lastActivity = &now
	manifestCopy := in.manifest
	in.lastWorkingManifest = &manifestCopy
	in.circuitState = CircuitNormal

	in.logger.Info("plugin started", "plugin", in.manifest.Name, "instance_id", in.instanceID)
	return nil
}

// stop issues a graceful-shutdown signal, polls for exit at 100ms
// granularity up to the manifest's shutdown timeout, and force-kills past
// that deadline (spec.md §4.4 "Graceful shutdown").
func (in *instance) stop() error {
	if in.handle == nil {
		in.status = StatusStopped
		in.startedAt = nil
		return nil
	}

	in.status = StatusStopping
	if err := in.handle.Signal(); err != nil {
		in.status = StatusFailed
		in.failureReason = fmt.Sprintf("signal failed: %v", err)
		return kernelerrors.PluginStartFailure(fmt.Sprintf("stopping plugin %s", in.manifest.Name), err)
	}

	deadline := time.Now().Add(time.Duration(in.manifest.ShutdownTimeoutSeconds) * time.Second)
	for {
		exited, success, waitErr := in.handle.TryWait()
		if exited {
			if success {
				in.logger.Info("plugin stopped cleanly", "plugin", in.manifest.Name)
			} else {
				in.logger.Warn("plugin exited non-zero during stop", "plugin", in.manifest.Name, "error", waitErr)
			}
			break
		}
		if time.Now().After(deadline) {
			in.logger.Warn("plugin shutdown timeout exceeded, force killing", "plugin", in.manifest.Name)
			if err := in.handle.Kill(); err != nil {
				in.logger.Warn("force kill failed", "plugin", in.manifest.Name, "error", err)
			}
			_, _ = in.handle.Wait()
			in.status = StatusKilled
			in.startedAt = nil
			in.handle = nil
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	in.status = StatusStopped
	in.startedAt = nil
	in.handle = nil
	return nil
}

// checkHealth polls the child without blocking. A child observed exited
// transitions the instance to Failed and returns false; the process
// handle is the sole source of truth — there is no bus-level probe
// (spec.md §4.4 "Liveness probing").
func (in *instance) checkHealth() bool {
	if in.handle == nil {
		return false
	}
	exited, success, err := in.handle.TryWait()
	if !exited {
		return true
	}

	reason := "exited normally"
	if !success {
		if err != nil {
			reason = fmt.Sprintf("exited with error: %v", err)
		} else {
			reason = "exited with non-zero status"
		}
	}
	in.status = StatusFailed
	in.failureReason = reason
	in.handle = nil
	return false
}

func (in *instance) markActivity() {
	now := time.Now().UTC()
	in.lastActivity = &now
}

// updateCircuitState reclassifies the breaker tier from the three
// thresholds in spec.md §4.4, using restartCount as it stood after the
// last actual attempt. It does not touch lastRestartAttempt — that is
// stamped only by recordRestartAttempt, at the moment of an actual
// restart or rollback attempt, never merely by observing a failure.
func (in *instance) updateCircuitState() {
	switch {
	case in.restartCount <= 2:
		in.circuitState = CircuitNormal
	case in.restartCount <= 5:
		in.circuitState = CircuitDegraded
		in.logger.Warn("plugin entering degraded mode", "plugin", in.manifest.Name, "restart_count", in.restartCount)
	default:
		in.circuitState = CircuitOpen
		in.status = StatusSafeMode
		in.logger.Warn("plugin entering safe mode", "plugin", in.manifest.Name, "restart_count", in.restartCount)
	}
}

// recordRestartAttempt stamps lastRestartAttempt and increments
// restartCount together, exactly once per actual restart or rollback
// attempt, regardless of its eventual outcome (spec.md §4.4: "every
// restart attempt updates last_restart_attempt ... and increments
// restart_count"). Callers: restartPluginLocked, attemptRollback.
func (in *instance) recordRestartAttempt() {
	now := time.Now().UTC()
	in.lastRestartAttempt = &now
	in.restartCount++
}

func (in *instance) canRestart() bool {
	switch in.circuitState {
	case CircuitNormal:
		return true
	case CircuitDegraded:
		if in.lastRestartAttempt == nil {
			return true
		}
		return time.Since(*in.lastRestartAttempt) >= degradedCooldown
	case CircuitOpen:
		if in.lastRestartAttempt == nil {
			return false
		}
		if time.Since(*in.lastRestartAttempt) >= circuitOpenCooldown {
			in.logger.Info("circuit breaker cooldown elapsed, allowing restart attempt", "plugin", in.manifest.Name)
			return true
		}
		return false
	default:
		return false
	}
}

// attemptRollback swaps in the last manifest known to have started
// successfully and tries a normal start. On failure the current manifest
// is restored (spec.md §4.4 "Rollback").
func (in *instance) attemptRollback(globalEnv map[string]string) error {
	if in.lastWorkingManifest == nil {
		return kernelerrors.PluginStartFailure("rollback", fmt.Errorf("no working manifest recorded for %s", in.manifest.Name))
	}

	in.recordRestartAttempt()

	current := in.manifest
	in.manifest = *in.lastWorkingManifest
	in.logger.Info("attempting rollback", "plugin", current.Name, "to_version", in.manifest.Version)

	if err := in.start(globalEnv); err != nil {
		in.manifest = current
		in.logger.Warn("rollback failed", "plugin", current.Name, "error", err)
		return err
	}
	in.logger.Info("rollback successful", "plugin", in.manifest.Name)
	return nil
}

// pluginOutputWriter forwards a child's stdout/stderr into the kernel's
// structured log, one Write call per log line (spec.md §4.4: "Standard
// output and error are captured by the supervisor").
type pluginOutputWriter struct {
	logger *slog.Logger
	plugin string
	stream string
}

func (w *pluginOutputWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.logger.Info("plugin output", "plugin", w.plugin, "stream", w.stream, "line", line)
	}
	return len(p), nil
}
