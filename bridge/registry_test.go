package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFromEnv(t *testing.T) {
	t.Setenv("TOOLBRIDGE_PYTHON_URL", "https://python.tools.example.com")
	t.Setenv("TOOLBRIDGE_OCTAVE_URL", "")
	t.Setenv("TOOLBRIDGE_MANIM_URL", "")

	reg := NewRegistryFromEnv(log)
	require.Equal(t, []string{"manim", "octave", "python"}, reg.Names())

	python, ok := reg.Get("python")
	require.True(t, ok)
	assert.Equal(t, "https://python.tools.example.com", python.Status().Config.Endpoint)

	// unset variables fall back to the hardcoded defaults
	octave, ok := reg.Get("octave")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8002", octave.Status().Config.Endpoint)

	manim, ok := reg.Get("manim")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8003", manim.Status().Config.Endpoint)

	for _, status := range reg.StatusAll() {
		assert.Equal(t, "mcp", status.Config.Protocol)
		assert.False(t, status.Connected)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("fortran")
	assert.False(t, ok)
	assert.Empty(t, reg.Names())
	assert.Empty(t, reg.StatusAll())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewConnection("python", ServiceConfig{Endpoint: "http://localhost:8001", Protocol: "mcp"}))
	reg.Register(NewConnection("python", ServiceConfig{Endpoint: "http://localhost:9001", Protocol: "mcp"}))

	require.Equal(t, []string{"python"}, reg.Names())
	c, ok := reg.Get("python")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9001", c.Status().Config.Endpoint)
}

func TestRegistryStatusAllOrdered(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewConnection("octave", ServiceConfig{Protocol: "mcp"}))
	reg.Register(NewConnection("manim", ServiceConfig{Protocol: "mcp"}))
	reg.Register(NewConnection("python", ServiceConfig{Protocol: "mcp"}))

	statuses := reg.StatusAll()
	require.Len(t, statuses, 3)
	assert.Equal(t, "manim", statuses[0].ToolName)
	assert.Equal(t, "octave", statuses[1].ToolName)
	assert.Equal(t, "python", statuses[2].ToolName)
}
