// Package editor manages the lifecycle of an Unreal editor process for one
// project: launch with remote execution enabled, health and crash
// monitoring, log access, and shutdown.
package editor

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chengdagong/ue-mcp-sub001/internal/logs"
	"github.com/chengdagong/ue-mcp-sub001/internal/remote"
	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
	"github.com/chengdagong/ue-mcp-sub001/pkg/ports"
)

const (
	gracefulStopTimeout = 5 * time.Second
	quitEditorSnippet   = "import unreal; unreal.SystemLibrary.quit_editor()"
)

// Options configures a Manager.
type Options struct {
	ProjectDir string // project root or .uproject path, required
	Binary     string // explicit UnrealEditor path, optional
	LogDir     string // directory for per-launch log files, required
	ExtraArgs  []string

	MulticastGroup string // default 239.0.0.1
	PortRangeStart int    // default 6767
	PortRangeEnd   int    // default 6866

	Bus      *events.EventBus
	Registry *Registry

	// SkipBuildCheck launches even when sources look newer than binaries.
	SkipBuildCheck bool
}

// Status is a point-in-time snapshot of the managed editor.
type Status struct {
	State         State  `json:"state"`
	ProjectName   string `json:"project_name"`
	ProjectRoot   string `json:"project_root,omitempty"`
	PID           int    `json:"pid,omitempty"`
	NodeID        string `json:"node_id,omitempty"`
	Connected     bool   `json:"connected"`
	LogPath       string `json:"log_path,omitempty"`
	MulticastPort int    `json:"multicast_port,omitempty"`
}

// Manager owns at most one editor process at a time.
type Manager struct {
	opts Options

	mu            sync.Mutex
	state         State
	project       *Project
	cmd           *exec.Cmd
	client        *remote.Client
	logPath       string
	mcast         int
	verdict       *ExitVerdict
	liveIndicator string
	tailStop      context.CancelFunc
}

func NewManager(opts Options) *Manager {
	if opts.MulticastGroup == "" {
		opts.MulticastGroup = remote.DefaultMulticastGroup
	}
	if opts.PortRangeStart == 0 {
		opts.PortRangeStart = ports.DefaultRangeStart
	}
	if opts.PortRangeEnd == 0 {
		opts.PortRangeEnd = ports.DefaultRangeEnd
	}
	m := &Manager{opts: opts, state: StateNotRunning}
	if opts.Bus != nil {
		// Live crash detection off the tailed log; the verdict on exit
		// folds this in for cases where the exit code looks clean.
		opts.Bus.Subscribe(events.LogLine, func(e events.Event) {
			line, _ := e.Data["line"].(string)
			if ind, ok := LineIndicatesCrash(line); ok {
				m.mu.Lock()
				m.liveIndicator = ind
				m.mu.Unlock()
				log.Printf("editor: crash indicator in live log: %q", ind)
			}
		})
	}
	return m
}

// Launch starts the editor. With wait=true it blocks until the remote
// execution channel is connected or waitTimeout elapses; a crash during the
// wait surfaces as a LaunchError wrapping a CrashError. With wait=false it
// returns once the process is spawned and a background loop keeps retrying
// the connection.
func (m *Manager) Launch(ctx context.Context, wait bool, waitTimeout time.Duration) error {
	m.mu.Lock()
	if m.state == StateLaunching || m.state == StateRunning || m.state == StateStopping {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}

	project, err := AnalyzeProject(m.opts.ProjectDir)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if m.opts.Registry != nil {
		if inst, live, err := m.opts.Registry.Lookup(project.Name); err != nil {
			m.mu.Unlock()
			return err
		} else if live {
			m.mu.Unlock()
			return fmt.Errorf("%w: pid %d launched %s", ErrAlreadyRunning, inst.PID, inst.LaunchedAt.Format(time.RFC3339))
		}
	}

	if !m.opts.SkipBuildCheck {
		if need, reason := project.NeedsBuild(); need {
			m.mu.Unlock()
			return &BuildRequiredError{Reason: reason}
		}
	}

	binary, err := FindEditorBinary(m.opts.Binary)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	mcastPort, err := ports.FindAvailable(m.opts.PortRangeStart, m.opts.PortRangeEnd)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	logPath := filepath.Join(m.opts.LogDir, logs.FileName(project.Name, time.Now()))

	args := []string{
		project.UProject,
		"-ABSLOG=" + logPath,
		fmt.Sprintf("-ini:Engine:[/Script/PythonScriptPlugin.PythonScriptPluginSettings]:RemoteExecutionMulticastGroupEndpoint=%s:%d",
			m.opts.MulticastGroup, mcastPort),
		"-AutoDeclinePackageRecovery",
		"-NoLiveCoding",
	}
	args = append(args, m.opts.ExtraArgs...)

	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		return &LaunchError{Stage: "spawn", Err: err}
	}

	m.state = StateLaunching
	m.project = project
	m.cmd = cmd
	m.logPath = logPath
	m.mcast = mcastPort
	m.verdict = nil
	m.liveIndicator = ""
	m.client = remote.NewClient(remote.Config{
		MulticastGroup: m.opts.MulticastGroup,
		MulticastPort:  mcastPort,
		ProjectName:    project.Name,
		ExpectedPID:    cmd.Process.Pid,
	})

	if m.opts.Registry != nil {
		err := m.opts.Registry.Register(&Instance{
			ProjectName:   project.Name,
			ProjectRoot:   project.Root,
			PID:           cmd.Process.Pid,
			MulticastPort: mcastPort,
			LogPath:       logPath,
			LaunchedAt:    time.Now(),
		})
		if err != nil {
			log.Printf("editor: register instance: %v", err)
		}
	}

	if m.opts.Bus != nil {
		tailCtx, cancel := context.WithCancel(context.Background())
		m.tailStop = cancel
		go logs.NewTailer(logPath, m.opts.Bus).Run(tailCtx)
	}
	m.publish(events.EditorLaunched, map[string]interface{}{
		"project": project.Name,
		"pid":     cmd.Process.Pid,
		"log":     logPath,
	})
	m.mu.Unlock()

	go m.waitExit(cmd)

	if wait {
		return m.connectBlocking(ctx, waitTimeout)
	}
	go m.connectLoop()
	return nil
}

// connectBlocking retries the remote connection until it succeeds, the
// timeout elapses, or the process dies (which is classified as a crash).
func (m *Manager) connectBlocking(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if verdict := m.exitVerdict(); verdict != nil {
			return &LaunchError{Stage: "crash", Err: &CrashError{ExitCode: verdict.ExitCode, Indicator: verdict.Indicator}}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Keep trying in the background; a slow cold start is
			// not a failure.
			go m.connectLoop()
			return &LaunchError{Stage: "connect", Err: fmt.Errorf("editor not reachable within %s (still launching in background)", timeout)}
		}

		attempt := 10 * time.Second
		if remaining < attempt {
			attempt = remaining
		}
		if err := m.tryConnect(ctx, attempt); err == nil {
			return nil
		}
	}
}

// connectLoop retries in the background with backoff until connected or
// the process is gone.
func (m *Manager) connectLoop() {
	backoff := NewExponentialBackoff()
	for {
		if m.exitVerdict() != nil || m.currentState() == StateNotRunning {
			return
		}
		if m.currentState() == StateRunning {
			return
		}
		if err := m.tryConnect(context.Background(), 10*time.Second); err == nil {
			return
		}
		time.Sleep(backoff.NextDelay())
	}
}

func (m *Manager) tryConnect(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return remote.ErrNotConnected
	}

	if err := client.Connect(ctx, timeout); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateLaunching {
		m.state = StateRunning
	}
	nodeID := client.NodeID()
	project := ""
	if m.project != nil {
		project = m.project.Name
	}
	m.mu.Unlock()

	log.Printf("editor: %s connected (node %s)", project, nodeID)
	m.publish(events.EditorConnected, map[string]interface{}{
		"project": project,
		"node_id": nodeID,
	})
	return nil
}

// waitExit reaps the process and classifies the exit.
func (m *Manager) waitExit(cmd *exec.Cmd) {
	err := cmd.Wait()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	m.mu.Lock()
	verdict := ClassifyExit(exitCode, m.logPath)
	if !verdict.Crashed && m.liveIndicator != "" {
		verdict.Crashed = true
		verdict.Indicator = m.liveIndicator
		verdict.Reason = fmt.Sprintf("crash indicator in log: %q", m.liveIndicator)
	}
	m.verdict = &verdict
	wasStopping := m.state == StateStopping
	project := ""
	if m.project != nil {
		project = m.project.Name
	}
	if wasStopping || (!verdict.Crashed && exitCode == 0) {
		m.state = StateNotRunning
	} else {
		m.state = StateCrashed
	}
	crashed := m.state == StateCrashed
	if m.client != nil {
		m.client.Disconnect()
	}
	if m.tailStop != nil {
		m.tailStop()
		m.tailStop = nil
	}
	m.cmd = nil
	m.mu.Unlock()

	if m.opts.Registry != nil && project != "" {
		if err := m.opts.Registry.Unregister(project); err != nil {
			log.Printf("editor: unregister instance: %v", err)
		}
	}

	if crashed {
		log.Printf("editor: %s crashed: %s", project, verdict.Reason)
		m.publish(events.CrashDetected, map[string]interface{}{
			"project":   project,
			"exit_code": exitCode,
			"reason":    verdict.Reason,
			"indicator": verdict.Indicator,
		})
	} else {
		m.publish(events.EditorExited, map[string]interface{}{
			"project":   project,
			"exit_code": exitCode,
		})
	}
}

// GetStatus returns a snapshot without touching the process or network.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:         m.state,
		LogPath:       m.logPath,
		MulticastPort: m.mcast,
	}
	if m.project != nil {
		s.ProjectName = m.project.Name
		s.ProjectRoot = m.project.Root
	}
	if m.cmd != nil && m.cmd.Process != nil {
		s.PID = m.cmd.Process.Pid
	}
	if m.client != nil {
		s.Connected = m.client.IsConnected()
		s.NodeID = m.client.NodeID()
	}
	return s
}

// ReadLog returns the last tailLines lines of the current launch's log.
func (m *Manager) ReadLog(tailLines int) ([]string, error) {
	m.mu.Lock()
	logPath := m.logPath
	m.mu.Unlock()

	if logPath == "" {
		return nil, ErrLogNotFound
	}
	lines, err := logs.ReadTail(logPath, tailLines)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogNotFound, err)
	}
	return lines, nil
}

// Execute runs Python in the editor, connecting first if needed.
func (m *Manager) Execute(ctx context.Context, code string, execType remote.ExecType, timeout time.Duration) (*remote.CommandResponse, error) {
	m.mu.Lock()
	client := m.client
	state := m.state
	m.mu.Unlock()

	if client == nil || state == StateNotRunning || state == StateCrashed {
		return nil, remote.ErrNotConnected
	}
	if !client.IsConnected() {
		if err := m.tryConnect(ctx, 10*time.Second); err != nil {
			return nil, err
		}
	}

	resp, err := client.Execute(ctx, code, execType, timeout)
	if err == nil {
		m.publish(events.CommandExecuted, map[string]interface{}{
			"exec_mode": string(execType),
			"success":   resp.Success,
		})
	}
	return resp, err
}

// Stop shuts the editor down: remote quit first, then terminate, then kill.
// Stopping an editor that is not running is a no-op. The log file survives.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateNotRunning || m.state == StateCrashed || m.cmd == nil {
		m.state = stateAfterStop(m.state)
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	client := m.client
	cmd := m.cmd
	project := ""
	if m.project != nil {
		project = m.project.Name
	}
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		quitCtx, cancel := context.WithTimeout(ctx, gracefulStopTimeout)
		_, err := client.Execute(quitCtx, quitEditorSnippet, remote.ExecuteStatement, gracefulStopTimeout)
		cancel()
		if err != nil {
			log.Printf("editor: graceful quit for %s: %v", project, err)
		}
	}

	if m.waitForExit(gracefulStopTimeout) {
		m.publishStopped(project)
		return nil
	}

	log.Printf("editor: %s did not quit gracefully, terminating pid %d", project, cmd.Process.Pid)
	if err := terminateProcess(cmd); err != nil {
		log.Printf("editor: terminate: %v", err)
	}
	if m.waitForExit(gracefulStopTimeout) {
		m.publishStopped(project)
		return nil
	}

	log.Printf("editor: killing pid %d", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("editor: kill: %w", err)
	}
	m.waitForExit(gracefulStopTimeout)
	m.publishStopped(project)
	return nil
}

func stateAfterStop(s State) State {
	if s == StateCrashed {
		// Acknowledging a crash via Stop clears it.
		return StateNotRunning
	}
	return s
}

func (m *Manager) publishStopped(project string) {
	m.mu.Lock()
	m.state = StateNotRunning
	m.mu.Unlock()
	m.publish(events.EditorStopped, map[string]interface{}{"project": project})
}

// waitForExit polls for the waitExit goroutine to record a verdict.
func (m *Manager) waitForExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.exitVerdict() != nil {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return m.exitVerdict() != nil
}

func (m *Manager) exitVerdict() *ExitVerdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verdict
}

func (m *Manager) currentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) publish(t events.EventType, data map[string]interface{}) {
	if m.opts.Bus == nil {
		return
	}
	m.opts.Bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	})
}
