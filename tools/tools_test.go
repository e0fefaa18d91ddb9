package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSource_RegisterListGet(t *testing.T) {
	src := NewLocalSource("")
	assert.Equal(t, "local", src.Name())
	assert.Equal(t, "local", src.Type())

	require.NoError(t, src.Register(NewCommandTool(CommandToolConfig{})))
	assert.Error(t, src.Register(NewCommandTool(CommandToolConfig{})))

	tool, ok := src.GetTool("execute_command")
	require.True(t, ok)
	assert.Equal(t, "execute_command", tool.Name())
	assert.Len(t, src.ListTools(), 1)
}

func TestRegistry_AddSourceAndResolve(t *testing.T) {
	src := NewLocalSource("s1")
	require.NoError(t, src.Register(NewCommandTool(CommandToolConfig{})))

	reg := NewRegistry()
	require.NoError(t, reg.AddSource(context.Background(), src))

	resolved, err := reg.Resolve([]string{"execute_command"})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)

	_, err = reg.Resolve([]string{"missing"})
	assert.Error(t, err)
}

func TestRegistry_AddSourceCollision(t *testing.T) {
	first := NewLocalSource("first")
	require.NoError(t, first.Register(NewCommandTool(CommandToolConfig{})))
	second := NewLocalSource("second")
	require.NoError(t, second.Register(NewCommandTool(CommandToolConfig{})))

	reg := NewRegistry()
	require.NoError(t, reg.AddSource(context.Background(), first))
	assert.Error(t, reg.AddSource(context.Background(), second))
}

func TestFileWriterTool_WriteAndBackup(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriterTool(FileWriterConfig{WorkingDirectory: dir})

	res, err := tool.Invoke(context.Background(), map[string]any{"path": "notes.txt", "content": "hello"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "created")

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = tool.Invoke(context.Background(), map[string]any{"path": "notes.txt", "content": "world", "backup": true})
	require.NoError(t, err)
	backup, err := os.ReadFile(filepath.Join(dir, "notes.txt.bak"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(backup))
}

func TestFileWriterTool_RejectsTraversalAndExtension(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriterTool(FileWriterConfig{WorkingDirectory: dir})

	_, err := tool.Invoke(context.Background(), map[string]any{"path": "../escape.go", "content": "x"})
	assert.Error(t, err)

	_, err = tool.Invoke(context.Background(), map[string]any{"path": "file.exe", "content": "x"})
	assert.Error(t, err)
}

func TestSearchReplaceTool_ReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo bar baz"), 0644))

	tool := NewSearchReplaceTool(SearchReplaceConfig{WorkingDirectory: dir})
	_, err := tool.Invoke(context.Background(), map[string]any{"path": "a.txt", "old_string": "bar", "new_string": "qux"})
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "foo qux baz", string(data))
}

func TestSearchReplaceTool_AmbiguousMatchRequiresReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo foo"), 0644))

	tool := NewSearchReplaceTool(SearchReplaceConfig{WorkingDirectory: dir})
	_, err := tool.Invoke(context.Background(), map[string]any{"path": "a.txt", "old_string": "foo", "new_string": "bar"})
	assert.Error(t, err)

	_, err = tool.Invoke(context.Background(), map[string]any{
		"path": "a.txt", "old_string": "foo", "new_string": "bar", "replace_all": true,
	})
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "bar bar bar", string(data))
}

func TestSearchTool_FindsSubstring(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line one\nfindme here\n"), 0644))

	tool := NewSearchTool(SearchToolConfig{WorkingDirectory: dir})
	res, err := tool.Invoke(context.Background(), map[string]any{"query": "findme"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "findme here")
}

func TestCommandTool_RejectsDisallowedCommand(t *testing.T) {
	tool := NewCommandTool(CommandToolConfig{AllowedCommands: []string{"echo"}})
	_, err := tool.Invoke(context.Background(), map[string]any{"command": "rm -rf /"})
	assert.Error(t, err)
}

func TestCommandTool_RunsAllowedCommand(t *testing.T) {
	tool := NewCommandTool(CommandToolConfig{AllowedCommands: []string{"echo"}})
	res, err := tool.Invoke(context.Background(), map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "hi")
}

func TestNewBuiltinSource_RegistersAllFour(t *testing.T) {
	src := NewBuiltinSource(t.TempDir())
	assert.Len(t, src.ListTools(), 4)
}
