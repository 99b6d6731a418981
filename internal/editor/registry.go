package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

const (
	registryDirMode  = 0o755
	registryFileMode = 0o644
)

// Instance is the on-disk record of one managed editor process. Multiple
// controller processes share the registry, so a second controller can see
// an editor is already up instead of launching a duplicate.
type Instance struct {
	ProjectName   string    `json:"project_name"`
	ProjectRoot   string    `json:"project_root"`
	PID           int       `json:"pid"`
	NodeID        string    `json:"node_id,omitempty"`
	MulticastPort int       `json:"multicast_port"`
	LogPath       string    `json:"log_path"`
	LaunchedAt    time.Time `json:"launched_at"`
}

// Registry stores instance records as one JSON file per project under a
// shared directory. All mutations happen under an exclusive flock and are
// written via temp file + rename, so readers never observe partial files.
type Registry struct {
	dir         string
	lockTimeout time.Duration
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:         dir,
		lockTimeout: 30 * time.Second,
	}
}

// Register writes the instance record for its project.
func (r *Registry) Register(inst *Instance) error {
	if inst.ProjectName == "" {
		return fmt.Errorf("editor: instance has no project name")
	}
	return r.withLock(func() error {
		return r.writeInstanceLocked(inst)
	})
}

// Unregister removes the record for a project. Missing records are fine.
func (r *Registry) Unregister(projectName string) error {
	return r.withLock(func() error {
		path := r.instancePath(projectName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("editor: remove instance file: %w", err)
		}
		return nil
	})
}

// Lookup returns the live instance for a project, if one is registered and
// its process still exists. A record whose process is gone is removed and
// reported as absent.
func (r *Registry) Lookup(projectName string) (*Instance, bool, error) {
	var inst *Instance
	err := r.withLock(func() error {
		got, err := r.readInstanceLocked(projectName)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !pidAlive(got.PID) {
			log.Printf("editor: registry entry for %q points at dead pid %d, removing", projectName, got.PID)
			os.Remove(r.instancePath(projectName))
			return nil
		}
		inst = got
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return inst, inst != nil, nil
}

// List returns all registered instances, skipping unreadable records.
func (r *Registry) List() ([]*Instance, error) {
	var out []*Instance
	err := r.withLock(func() error {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			name := e.Name()[:len(e.Name())-len(".json")]
			inst, err := r.readInstanceLocked(name)
			if err != nil {
				log.Printf("editor: skip unreadable instance record %s: %v", e.Name(), err)
				continue
			}
			out = append(out, inst)
		}
		return nil
	})
	return out, err
}

func (r *Registry) withLock(fn func() error) error {
	if err := os.MkdirAll(r.dir, registryDirMode); err != nil {
		return fmt.Errorf("editor: create registry dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(r.dir, ".registry.lock"))
	ctx, cancel := context.WithTimeout(context.Background(), r.lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("editor: acquire registry lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("editor: registry lock not acquired within %v", r.lockTimeout)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Printf("editor: release registry lock: %v", err)
		}
	}()

	return fn()
}

func (r *Registry) instancePath(projectName string) string {
	return filepath.Join(r.dir, projectName+".json")
}

func (r *Registry) readInstanceLocked(projectName string) (*Instance, error) {
	data, err := os.ReadFile(r.instancePath(projectName))
	if err != nil {
		return nil, err
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("editor: parse instance record: %w", err)
	}
	return &inst, nil
}

func (r *Registry) writeInstanceLocked(inst *Instance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(r.instancePath(inst.ProjectName), data, registryFileMode)
}

// atomicWriteFile writes via a temp file in the same directory followed by
// a rename.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-instance-")
	if err != nil {
		return fmt.Errorf("editor: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("editor: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("editor: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("editor: close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("editor: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("editor: rename temp file: %w", err)
	}
	return nil
}

// pidAlive reports whether a process with the given PID exists. On Windows
// FindProcess only succeeds for live processes; elsewhere signal 0 probes
// without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}
