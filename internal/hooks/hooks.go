// Package hooks runs user-configured shell commands after a command has been
// executed and reconciled.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/voiceops/internal/logger"
	"gopkg.in/yaml.v3"
)

var log = logger.Named("hooks")

// ConfigFileName is the default hooks file, relative to the working directory.
const ConfigFileName = ".voiceops.hooks.yml"

// LoadConfig reads a hooks file. A missing file yields nil, nil since hooks
// are optional.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("No hooks config found at %s", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hooks config: %w", err)
	}
	for i, h := range cfg.Hooks.PostCommand {
		if h == nil || strings.TrimSpace(h.Command) == "" {
			return nil, fmt.Errorf("post_command hook %d has no command", i+1)
		}
	}

	log.Debug("Loaded %d post_command hooks from %s", len(cfg.Hooks.PostCommand), path)
	return &cfg, nil
}

// Variables are substituted into hook commands. Values are shell-quoted.
type Variables struct {
	Session string
	Command string // Transcript of the executed command
	Summary string // Outcome summary from the audit entry
	Token   uint64
}

// Runner executes the post_command hooks of a Config.
type Runner struct {
	cfg     *Config
	workDir string
}

// NewRunner creates a Runner. A nil cfg runs nothing.
func NewRunner(cfg *Config, workDir string) *Runner {
	return &Runner{cfg: cfg, workDir: workDir}
}

// PostCommand runs every post_command hook in order and returns their
// combined output.
func (r *Runner) PostCommand(ctx context.Context, vars Variables) (string, error) {
	if r == nil || r.cfg == nil {
		return "", nil
	}
	return ExecuteAll(ctx, r.cfg.Hooks.PostCommand, r.workDir, vars)
}

// ExecuteAll runs hooks sequentially. Outputs are joined by a blank line;
// hooks producing no output are left out.
func ExecuteAll(ctx context.Context, hooks []*HookConfig, workDir string, vars Variables) (string, error) {
	var outputs []string
	for _, h := range hooks {
		out, err := Execute(ctx, h, workDir, vars)
		if err != nil {
			return "", err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return strings.Join(outputs, "\n"), nil
}

// Execute runs one hook through sh -c. A failing or timed-out hook is
// reported in the returned output, not as an error; only cancellation of
// ctx is returned as an error.
func Execute(ctx context.Context, hook *HookConfig, workDir string, vars Variables) (string, error) {
	if hook == nil || hook.Command == "" {
		return "", nil
	}

	command := expandVariables(hook.Command, vars)
	log.Debug("Executing hook command: %s", command)

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"VOICEOPS_SESSION="+vars.Session,
		"VOICEOPS_TOKEN="+strconv.FormatUint(vars.Token, 10),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if execCtx.Err() == context.DeadlineExceeded {
		log.Warn("Hook timed out after %ds: %s", timeout, command)
		return fmt.Sprintf("[hook timed out after %ds]\n%s", timeout, stdout.String()), nil
	}
	if err != nil {
		log.Warn("Hook failed: %v", err)
		out := stdout.String()
		if stderr.Len() > 0 {
			out += "\n[stderr]\n" + stderr.String()
		}
		return fmt.Sprintf("[hook failed: %v]\n%s", err, out), nil
	}

	if stderr.Len() > 0 {
		log.Debug("Hook stderr: %s", stderr.String())
	}
	return stdout.String(), nil
}

func expandVariables(command string, vars Variables) string {
	r := strings.NewReplacer(
		"{{session}}", shellQuote(vars.Session),
		"{{command}}", shellQuote(vars.Command),
		"{{summary}}", shellQuote(vars.Summary),
		"{{token}}", strconv.FormatUint(vars.Token, 10),
	)
	return r.Replace(command)
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
