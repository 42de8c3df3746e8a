package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentteam/agent/resource"
	"github.com/BaSui01/agentteam/config"
)

func TestClockTool(t *testing.T) {
	tools := builtinTools()
	require.Len(t, tools, 1)
	clock, ok := tools[0].(*resource.FunctionTool)
	require.True(t, ok)

	out, err := clock.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	ts, err := time.Parse(time.RFC3339, out.(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	_, err = clock.Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"})
	assert.Error(t, err)
}

func TestLoadResources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE sales (id INT);"), 0o600))

	res, err := loadResources([]config.ResourceConfig{
		{Name: "glossary", Type: "knowledge", Text: "GMV: gross merchandise value"},
		{Name: "warehouse", Type: "database", File: path},
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, "glossary", res[1].Name())
	assert.Equal(t, resource.TypeKnowledge, res[1].Type())
	assert.Equal(t, resource.TypeDatabase, res[2].Type())
	prompt, err := res[2].Prompt(context.Background())
	require.NoError(t, err)
	assert.Contains(t, prompt, "CREATE TABLE sales")

	_, err = loadResources([]config.ResourceConfig{{Name: "missing", File: filepath.Join(dir, "nope.txt")}})
	assert.Error(t, err)
}
