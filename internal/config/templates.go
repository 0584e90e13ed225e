package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindSim:
		return simTemplate, nil
	case KindAgent:
		return agentTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const simTemplate = `# simulator side: attaches to the segment the agent created
env_id = 0
role = "attacher"
capacity = 4096
dir = ""
admin_addr = ""
cors_origins = ["http://localhost:3000"]
steps = 100
attach_timeout = "30s"

# Optional explicit names. Defaults derive from env_id.
# [names]
# segment = "seg0"
# sim_to_agent = "cpp2py0"
# agent_to_sim = "py2cpp0"
# lock = "lockable0"
`

const agentTemplate = `# controller side: creates the segment and drives the episode
env_id = 0
role = "creator"
capacity = 4096
dir = ""
admin_addr = "127.0.0.1:7020"
cors_origins = ["http://localhost:3000"]
steps = 0
attach_timeout = "30s"
`
