// Package config loads the TOML files used by the simlink commands.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/simlink/internal/gym"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol/session"
	"github.com/danmuck/simlink/internal/shm"
)

// Kinds of node a config file can describe.
const (
	KindSim   = "sim"
	KindAgent = "agent"
)

type namesFile struct {
	Segment    string `toml:"segment"`
	SimToAgent string `toml:"sim_to_agent"`
	AgentToSim string `toml:"agent_to_sim"`
	Lock       string `toml:"lock"`
}

// simlink config.toml key mapping to NodeConfig.
type fileConfig struct {
	EnvID         uint32    `toml:"env_id"`
	Role          string    `toml:"role"`
	Capacity      int       `toml:"capacity"`
	Dir           string    `toml:"dir"`
	AdminAddr     string    `toml:"admin_addr"`
	CORSOrigins   []string  `toml:"cors_origins"`
	Steps         int       `toml:"steps"`
	AttachTimeout string    `toml:"attach_timeout"`
	Names         namesFile `toml:"names"`
}

// NodeConfig is the runtime configuration of one sim or agent process.
type NodeConfig struct {
	Kind        string
	EnvID       uint32
	Role        shm.Role
	Capacity    int
	Dir         string
	AdminAddr   string
	CORSOrigins []string
	// Steps bounds the episode: the sim ends the simulation after Steps
	// steps, the agent stops after Steps states. Zero means unbounded.
	Steps   int
	Names   shm.Names
	Session session.Config
}

// DefaultNodeConfig returns the defaults for kind. The agent creates the
// segment and the sim attaches to it.
func DefaultNodeConfig(kind string) (NodeConfig, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	cfg := NodeConfig{
		Kind:     kind,
		Capacity: shm.DefaultCapacity,
		Steps:    100,
		Names:    shm.NamesFor(0),
		Session:  session.DefaultConfig(),
	}
	switch kind {
	case KindSim:
		cfg.Role = shm.Attacher
	case KindAgent:
		cfg.Role = shm.Creator
		cfg.Steps = 0
	default:
		return NodeConfig{}, fmt.Errorf("unknown config kind: %s", kind)
	}
	return cfg, nil
}

// Load reads path and overlays the keys it defines on the defaults for kind.
func Load(path, kind string) (NodeConfig, error) {
	cfg, err := DefaultNodeConfig(kind)
	if err != nil {
		return NodeConfig{}, err
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("load %s config: %w", cfg.Kind, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("load %s config: unknown key %q", cfg.Kind, undecoded[0].String())
	}

	if meta.IsDefined("env_id") {
		cfg.EnvID = raw.EnvID
		cfg.Names = shm.NamesFor(raw.EnvID)
	}
	if meta.IsDefined("role") {
		role, err := shm.ParseRole(raw.Role)
		if err != nil {
			return NodeConfig{}, fmt.Errorf("load %s config: %w", cfg.Kind, err)
		}
		cfg.Role = role
	}
	if meta.IsDefined("capacity") {
		cfg.Capacity = raw.Capacity
	}
	if meta.IsDefined("dir") {
		cfg.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("steps") {
		cfg.Steps = raw.Steps
	}
	if meta.IsDefined("attach_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.AttachTimeout))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("load %s config: attach_timeout: %w", cfg.Kind, err)
		}
		cfg.Session.AttachTimeout = d
	}
	if meta.IsDefined("names", "segment") {
		cfg.Names.Segment = strings.TrimSpace(raw.Names.Segment)
	}
	if meta.IsDefined("names", "sim_to_agent") {
		cfg.Names.SimToAgent = strings.TrimSpace(raw.Names.SimToAgent)
	}
	if meta.IsDefined("names", "agent_to_sim") {
		cfg.Names.AgentToSim = strings.TrimSpace(raw.Names.AgentToSim)
	}
	if meta.IsDefined("names", "lock") {
		cfg.Names.Lock = strings.TrimSpace(raw.Names.Lock)
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, fmt.Errorf("load %s config: %w", cfg.Kind, err)
	}
	return cfg, nil
}

func (c NodeConfig) Validate() error {
	if c.Kind != KindSim && c.Kind != KindAgent {
		return fmt.Errorf("unknown config kind: %s", c.Kind)
	}
	if c.Steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	if c.AdminAddr != "" {
		if _, err := observability.NormalizeAdminAddr(c.AdminAddr); err != nil {
			return err
		}
	}
	return c.Channel().Validate()
}

// Channel is the shm endpoint for this node's side.
func (c NodeConfig) Channel() shm.Config {
	var ch shm.Config
	if c.Kind == KindAgent {
		ch = c.Names.AgentConfig(c.Role, c.Capacity)
	} else {
		ch = c.Names.SimConfig(c.Role, c.Capacity)
	}
	ch.Dir = c.Dir
	return ch
}

func (c NodeConfig) Gym() gym.Config {
	return gym.Config{EnvID: c.EnvID, Channel: c.Channel(), Attach: c.Session}
}

// Admin returns the admin surface config, or false when admin_addr is unset.
func (c NodeConfig) Admin(status func() any) (observability.AdminConfig, bool) {
	if c.AdminAddr == "" {
		return observability.AdminConfig{}, false
	}
	return observability.AdminConfig{
		Addr:        c.AdminAddr,
		Node:        fmt.Sprintf("%s-%d", c.Kind, c.EnvID),
		CORSOrigins: c.CORSOrigins,
		Status:      status,
	}, true
}
