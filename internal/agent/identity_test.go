package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"coflowd/internal/agent/config"
	commonCfg "coflowd/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAgentID(t *testing.T) {
	instant := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	id := GenerateAgentID(instant, "node1", 1607)
	assert.Equal(t, "agent-20250314092653-node1-1607", id)

	// Deterministic for fixed inputs
	assert.Equal(t, id, GenerateAgentID(instant, "node1", 1607))

	// Different instants produce different ids
	later := instant.Add(time.Second)
	assert.NotEqual(t, id, GenerateAgentID(later, "node1", 1607))
}

func TestResolvePublicAddress(t *testing.T) {
	cfg := &config.AgentConfig{Host: "node1"}

	assert.Equal(t, "node1", ResolvePublicAddress(cfg))

	cfg.PublicAddress = "node1.example.com"
	assert.Equal(t, "node1.example.com", ResolvePublicAddress(cfg))

	t.Setenv(commonCfg.PublicAddressEnv, "override.example.com")
	assert.Equal(t, "override.example.com", ResolvePublicAddress(cfg))
}

func TestResolveWorkDir(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "work")
		got, err := ResolveWorkDir(&config.AgentConfig{WorkDir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, got)
		assert.DirExists(t, got)
	})

	t.Run("default under home dir", func(t *testing.T) {
		home := t.TempDir()
		got, err := ResolveWorkDir(&config.AgentConfig{HomeDir: home})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "work"), got)
		assert.DirExists(t, got)
	})

	t.Run("creation failure", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := ResolveWorkDir(&config.AgentConfig{WorkDir: filepath.Join(file, "work")})
		assert.Error(t, err)
	})
}

func TestNewIdentity(t *testing.T) {
	cfg := &config.AgentConfig{
		Host:        "node2",
		ControlPort: 1607,
		DataPort:    1608,
		WebPort:     16017,
	}
	instant := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	id := NewIdentity(cfg, instant)
	assert.Equal(t, "agent-20250601120000-node2-1607", id.ID)
	assert.Equal(t, "node2", id.PublicAddress)

	req := id.RegisterRequest()
	assert.Equal(t, id.ID, req.AgentID)
	assert.Equal(t, 1607, req.ControlPort)
	assert.Equal(t, 1608, req.DataPort)
	assert.Equal(t, 16017, req.WebPort)
}
