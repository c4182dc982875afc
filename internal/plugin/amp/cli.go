package amp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/review"
)

const (
	defaultBinary  = "amp"
	defaultTimeout = 60 * time.Second

	binaryEnv         = "LOUPE_AMP_CLI_BIN"
	passthroughPrefix = "LOUPE_AMP_"
)

// ampEnvVars are the agent's own configuration variables forwarded to
// every invocation.
var ampEnvVars = []string{"AMP_API_KEY", "AMP_URL", "AMP_SETTINGS_FILE"}

// cli runs the amp binary with a scrubbed environment and a hard
// per-invocation deadline.
type cli struct {
	binary  string
	timeout time.Duration
	env     []string
}

func newCLI(binary string, timeout time.Duration) cli {
	if binary == "" {
		binary = os.Getenv(binaryEnv)
	}
	if binary == "" {
		binary = defaultBinary
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return cli{binary: binary, timeout: timeout, env: collectEnv()}
}

// collectEnv keeps only PATH, HOME, the agent's AMP_* settings and
// LOUPE_AMP_* overrides. Everything else is withheld from the child.
func collectEnv() []string {
	var env []string
	for _, key := range []string{"PATH", "HOME"} {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	for _, key := range ampEnvVars {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	for _, entry := range os.Environ() {
		if strings.HasPrefix(entry, passthroughPrefix) {
			env = append(env, entry)
		}
	}
	return env
}

func (c cli) listThreads(ctx context.Context) ([]plugin.ThreadRef, error) {
	stdout, err := c.run(ctx, []string{"threads", "list"}, "")
	if err != nil {
		return nil, err
	}
	return parseThreadTable(stdout), nil
}

func (c cli) createThread(ctx context.Context) (string, error) {
	stdout, err := c.run(ctx, []string{"threads", "new"}, "")
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", review.NewError(review.KindPlugin, "amp CLI did not return a thread id")
	}
	return id, nil
}

func (c cli) continueThread(ctx context.Context, threadID, message string) (string, error) {
	return c.run(ctx, []string{"threads", "continue", threadID, "--execute"}, message)
}

func (c cli) run(ctx context.Context, args []string, stdin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Env = c.env
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", review.NewError(review.KindPlugin, fmt.Sprintf("amp CLI timed out after %s", c.timeout))
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", review.WrapError(review.KindPlugin, err, fmt.Sprintf("amp CLI %s failed: %s", strings.Join(args, " "), detail))
	}
	return stdout.String(), nil
}
