package hooks

// Config is the hooks file layout (.voiceops.hooks.yml).
type Config struct {
	Version int         `yaml:"version"`
	Hooks   HooksConfig `yaml:"hooks"`
}

// HooksConfig groups hooks by the event that fires them.
type HooksConfig struct {
	PostCommand []*HookConfig `yaml:"post_command"`
}

// HookConfig is one shell hook.
type HookConfig struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout"` // seconds, default 30
}

// DefaultTimeout is the default hook timeout in seconds.
const DefaultTimeout = 30
