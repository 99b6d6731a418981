package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// FindEditorBinary resolves the UnrealEditor executable. Resolution order:
// explicit path, UE_EDITOR environment variable, then conventional engine
// install locations for the platform (newest engine version wins).
func FindEditorBinary(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("editor: binary %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if env := os.Getenv("UE_EDITOR"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("editor: UE_EDITOR=%s: %w", env, err)
		}
		return env, nil
	}

	var candidates []string
	for _, root := range engineSearchRoots() {
		matches, _ := filepath.Glob(filepath.Join(root, editorRelPath()))
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("editor: UnrealEditor binary not found; set UE_EDITOR or configure editor.binary")
	}
	// Glob results sort lexically; UE_5.4 sorts after UE_5.3.
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

func engineSearchRoots() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files\Epic Games\UE_*`,
			`D:\Epic Games\UE_*`,
		}
	case "darwin":
		return []string{
			"/Users/Shared/Epic Games/UE_*",
			filepath.Join(home, "UnrealEngine"),
		}
	default:
		return []string{
			filepath.Join(home, "UnrealEngine"),
			"/opt/unreal-engine",
			"/opt/UnrealEngine",
		}
	}
}

func editorRelPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join("Engine", "Binaries", "Win64", "UnrealEditor.exe")
	case "darwin":
		return filepath.Join("Engine", "Binaries", "Mac", "UnrealEditor.app", "Contents", "MacOS", "UnrealEditor")
	default:
		return filepath.Join("Engine", "Binaries", "Linux", "UnrealEditor")
	}
}
