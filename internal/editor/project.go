package editor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Project describes an Unreal project on disk.
type Project struct {
	Name        string // from the .uproject file name
	Root        string // directory containing the .uproject
	UProject    string // absolute path to the .uproject file
	EngineAssoc string // EngineAssociation from the .uproject, may be ""
}

type uprojectFile struct {
	EngineAssociation string `json:"EngineAssociation"`
	Modules           []struct {
		Name string `json:"Name"`
	} `json:"Modules"`
	Plugins []struct {
		Name    string `json:"Name"`
		Enabled bool   `json:"Enabled"`
	} `json:"Plugins"`
}

// AnalyzeProject locates and parses the .uproject for a project directory.
// dir may be the project root or the .uproject file itself.
func AnalyzeProject(dir string) (*Project, error) {
	path := dir
	if !strings.HasSuffix(strings.ToLower(path), ".uproject") {
		found, err := findUProject(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Name:     strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Root:     filepath.Dir(abs),
		UProject: abs,
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("editor: read %s: %w", abs, err)
	}
	var up uprojectFile
	if err := json.Unmarshal(data, &up); err != nil {
		return nil, fmt.Errorf("editor: parse %s: %w", abs, err)
	}
	p.EngineAssoc = up.EngineAssociation
	return p, nil
}

func findUProject(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("editor: read project dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".uproject") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("editor: no .uproject file in %s", dir)
}

// IsCppProject reports whether the project has C++ sources that require
// compiled binaries. Blueprint-only projects launch without a build step.
func (p *Project) IsCppProject() bool {
	if hasSourceFiles(filepath.Join(p.Root, "Source")) {
		return true
	}
	plugins := filepath.Join(p.Root, "Plugins")
	entries, err := os.ReadDir(plugins)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && hasSourceFiles(filepath.Join(plugins, e.Name(), "Source")) {
			return true
		}
	}
	return false
}

func hasSourceFiles(dir string) bool {
	found := false
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipAll
		}
		if !d.IsDir() && isSourceFile(path) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func isSourceFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cpp", ".h", ".cs":
		return true
	}
	return false
}

// NeedsBuild reports whether the project's editor binaries are missing or
// older than its newest source file. Returns the reason when a build is
// needed. Blueprint-only projects never need one.
func (p *Project) NeedsBuild() (bool, string) {
	if !p.IsCppProject() {
		return false, ""
	}

	binDir := filepath.Join(p.Root, "Binaries", platformBinaryDir())
	newestBin, ok := newestModTime(binDir, isEditorBinary)
	if !ok {
		return true, fmt.Sprintf("no editor binaries under %s", binDir)
	}

	roots := []string{filepath.Join(p.Root, "Source")}
	if plugins, err := os.ReadDir(filepath.Join(p.Root, "Plugins")); err == nil {
		for _, e := range plugins {
			if e.IsDir() {
				roots = append(roots, filepath.Join(p.Root, "Plugins", e.Name(), "Source"))
			}
		}
	}

	for _, root := range roots {
		if newestSrc, ok := newestModTime(root, isSourceFile); ok && newestSrc.After(newestBin) {
			return true, fmt.Sprintf("sources under %s newer than binaries", root)
		}
	}
	return false, ""
}

func platformBinaryDir() string {
	switch runtime.GOOS {
	case "windows":
		return "Win64"
	case "darwin":
		return "Mac"
	default:
		return "Linux"
	}
}

func isEditorBinary(path string) bool {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "UnrealEditor") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".dll", ".so", ".dylib", ".modules":
		return true
	}
	return false
}

func newestModTime(dir string, match func(string) bool) (time.Time, bool) {
	var newest time.Time
	found := false
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
		return nil
	})
	return newest, found
}
