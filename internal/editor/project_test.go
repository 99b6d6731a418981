package editor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func blueprintProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "MyGame.uproject"), `{"FileVersion": 3, "EngineAssociation": "5.4"}`)
	return root
}

func cppProject(t *testing.T) string {
	root := blueprintProject(t)
	writeFile(t, filepath.Join(root, "Source", "MyGame", "MyGame.cpp"), "// impl\n")
	writeFile(t, filepath.Join(root, "Source", "MyGame", "MyGame.Build.cs"), "// build rules\n")
	return root
}

func TestAnalyzeProjectFindsUProject(t *testing.T) {
	root := blueprintProject(t)

	p, err := AnalyzeProject(root)
	require.NoError(t, err)
	assert.Equal(t, "MyGame", p.Name)
	assert.Equal(t, "5.4", p.EngineAssoc)
	assert.Equal(t, filepath.Join(root, "MyGame.uproject"), p.UProject)
}

func TestAnalyzeProjectAcceptsUProjectPath(t *testing.T) {
	root := blueprintProject(t)

	p, err := AnalyzeProject(filepath.Join(root, "MyGame.uproject"))
	require.NoError(t, err)
	assert.Equal(t, "MyGame", p.Name)
}

func TestAnalyzeProjectMissing(t *testing.T) {
	_, err := AnalyzeProject(t.TempDir())
	assert.Error(t, err)
}

func TestIsCppProject(t *testing.T) {
	bp, err := AnalyzeProject(blueprintProject(t))
	require.NoError(t, err)
	assert.False(t, bp.IsCppProject())

	cpp, err := AnalyzeProject(cppProject(t))
	require.NoError(t, err)
	assert.True(t, cpp.IsCppProject())
}

func TestIsCppProjectViaPlugin(t *testing.T) {
	root := blueprintProject(t)
	writeFile(t, filepath.Join(root, "Plugins", "MyPlugin", "Source", "MyPlugin", "MyPlugin.cpp"), "// plugin\n")

	p, err := AnalyzeProject(root)
	require.NoError(t, err)
	assert.True(t, p.IsCppProject())
}

func TestNeedsBuildBlueprintProject(t *testing.T) {
	p, err := AnalyzeProject(blueprintProject(t))
	require.NoError(t, err)

	need, _ := p.NeedsBuild()
	assert.False(t, need)
}

func TestNeedsBuildMissingBinaries(t *testing.T) {
	p, err := AnalyzeProject(cppProject(t))
	require.NoError(t, err)

	need, reason := p.NeedsBuild()
	assert.True(t, need)
	assert.Contains(t, reason, "no editor binaries")
}

func TestNeedsBuildStaleBinaries(t *testing.T) {
	root := cppProject(t)
	p, err := AnalyzeProject(root)
	require.NoError(t, err)

	binName := "UnrealEditor-MyGame.so"
	binPath := filepath.Join(root, "Binaries", platformBinaryDir(), binName)
	writeFile(t, binPath, "binary")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(binPath, old, old))

	need, reason := p.NeedsBuild()
	assert.True(t, need)
	assert.Contains(t, reason, "newer than binaries")
}

func TestNeedsBuildFreshBinaries(t *testing.T) {
	root := cppProject(t)
	p, err := AnalyzeProject(root)
	require.NoError(t, err)

	binPath := filepath.Join(root, "Binaries", platformBinaryDir(), "UnrealEditor-MyGame.so")
	writeFile(t, binPath, "binary")

	// Sources predate the binary.
	old := time.Now().Add(-time.Hour)
	for _, src := range []string{
		filepath.Join(root, "Source", "MyGame", "MyGame.cpp"),
		filepath.Join(root, "Source", "MyGame", "MyGame.Build.cs"),
	} {
		require.NoError(t, os.Chtimes(src, old, old))
	}

	need, _ := p.NeedsBuild()
	assert.False(t, need)
}
