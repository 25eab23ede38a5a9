package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coflowd/internal/agent/config"
	commonCfg "coflowd/internal/config"
	"coflowd/internal/types"
)

// Identity is the agent's immutable identity, generated once at startup.
// The id embeds the start instant, so a restarted agent never collides
// with its previous incarnation.
type Identity struct {
	ID            string
	Host          string
	ControlPort   int
	DataPort      int
	WebPort       int
	PublicAddress string
}

// NewIdentity builds the identity from configuration at the given instant
func NewIdentity(cfg *config.AgentConfig, now time.Time) Identity {
	return Identity{
		ID:            GenerateAgentID(now, cfg.Host, cfg.ControlPort),
		Host:          cfg.Host,
		ControlPort:   cfg.ControlPort,
		DataPort:      cfg.DataPort,
		WebPort:       cfg.WebPort,
		PublicAddress: ResolvePublicAddress(cfg),
	}
}

// GenerateAgentID formats a sortable, human-debuggable agent id from the
// start instant, host and control port. Deterministic for fixed inputs.
func GenerateAgentID(now time.Time, host string, port int) string {
	return fmt.Sprintf("agent-%s-%s-%d", now.Format("20060102150405"), host, port)
}

// ResolvePublicAddress returns the advertised address: environment
// override first, then the configured public address, then the host.
func ResolvePublicAddress(cfg *config.AgentConfig) string {
	if addr := os.Getenv(commonCfg.PublicAddressEnv); addr != "" {
		return addr
	}
	if cfg.PublicAddress != "" {
		return cfg.PublicAddress
	}
	return cfg.Host
}

// ResolveWorkDir resolves and creates the agent's working directory:
// the explicit work_dir if set, else a default under the home directory.
// Creation failure is fatal to the caller, the agent does not retry.
func ResolveWorkDir(cfg *config.AgentConfig) (string, error) {
	dir := cfg.WorkDir
	if dir == "" {
		dir = filepath.Join(cfg.HomeDir, "work")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create work directory %s: %w", dir, err)
	}
	return dir, nil
}

// RegisterRequest converts the identity into the registration payload
func (id Identity) RegisterRequest() types.RegisterRequest {
	return types.RegisterRequest{
		AgentID:       id.ID,
		Host:          id.Host,
		ControlPort:   id.ControlPort,
		WebPort:       id.WebPort,
		DataPort:      id.DataPort,
		PublicAddress: id.PublicAddress,
	}
}
