package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/phuslu/log"
)

// Bridge executes commands on the remote browser host over SSH.
type Bridge struct {
	host    string
	user    string
	sshOpts []string
	logger  log.Logger

	// wakeHost is an always-on hop that can wake the browser host when the
	// direct connection is refused. Empty disables waking. The browser host
	// is assumed to be a WSL instance reachable from the wake host.
	wakeHost   string
	wakeUser   string
	wakeDistro string
}

// NewBridge builds a bridge for the given host. sshOpts is a space-separated
// option string passed through to every ssh invocation.
func NewBridge(host, user, sshOpts string, logger log.Logger) *Bridge {
	return &Bridge{
		host:    host,
		user:    user,
		sshOpts: strings.Fields(sshOpts),
		logger:  logger,
	}
}

// WithWakeHost configures the secondary hop used to wake the browser host.
// distro names the WSL distribution whose SSH service gets started; empty
// defaults to Ubuntu.
func (b *Bridge) WithWakeHost(host, user, distro string) *Bridge {
	b.wakeHost = host
	b.wakeUser = user
	b.wakeDistro = distro
	return b
}

func (b *Bridge) target() string {
	if b.user != "" {
		return b.user + "@" + b.host
	}
	return b.host
}

// Run executes a shell command on the remote host and returns its combined
// output. The command is base64-encoded on the wire so quoting survives the
// local shell, the ssh layer, and the remote shell unchanged.
func (b *Bridge) Run(ctx context.Context, command string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(command))
	wrapped := fmt.Sprintf("echo %s | base64 -d | bash", encoded)

	args := append([]string{}, b.sshOpts...)
	args = append(args, b.target(), wrapped)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("ssh %s: %w: %s", b.host, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// browserCandidates are probed in order when no binary is configured.
var browserCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// ResolveBrowserBin returns a usable browser binary on the remote host. An
// explicitly configured binary wins; otherwise well-known names are probed
// with command -v.
func (b *Bridge) ResolveBrowserBin(ctx context.Context, configured string) (string, error) {
	candidates := browserCandidates
	if configured != "" {
		candidates = append([]string{configured}, candidates...)
	}
	for _, name := range candidates {
		out, err := b.Run(ctx, fmt.Sprintf("command -v %s", name))
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(strings.SplitN(out, "\n", 2)[0]), nil
		}
	}
	return "", fmt.Errorf("no browser binary found on %s", b.host)
}

// EnsureBrowser makes sure a debug-port Chrome serves the given profile on
// the remote host, reusing a live instance recorded in the profile's PID
// file when possible. When the SSH connection itself is refused it performs
// one wake-and-retry cycle before giving up.
func (b *Bridge) EnsureBrowser(ctx context.Context, bin, profileDir string, port int) error {
	err := b.ensureBrowserOnce(ctx, bin, profileDir, port)
	if err == nil {
		return nil
	}
	if b.wakeHost == "" || !isConnectionRefused(err) {
		return err
	}
	b.logger.Warn().Str("host", b.host).Msg("connection refused, attempting to wake remote host")
	if wakeErr := b.Wake(ctx); wakeErr != nil {
		b.logger.Warn().Err(wakeErr).Msg("wake attempt failed")
	}
	return b.ensureBrowserOnce(ctx, bin, profileDir, port)
}

func (b *Bridge) ensureBrowserOnce(ctx context.Context, bin, profileDir string, port int) error {
	pidFile := profileDir + "/chrome.pid"

	// Reuse a previously started instance if its PID is still alive.
	out, err := b.Run(ctx, fmt.Sprintf(
		"test -f %[1]s && kill -0 $(cat %[1]s) 2>/dev/null && echo alive || echo dead", pidFile))
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "alive" {
		b.logger.Debug().Str("pid_file", pidFile).Msg("reusing remote browser")
		return nil
	}

	// Stale singleton locks from a crashed instance block startup.
	start := fmt.Sprintf(
		"mkdir -p %[1]s && rm -f %[1]s/Singleton* && "+
			"nohup %[2]s --remote-debugging-port=%[3]d --remote-debugging-address=127.0.0.1 "+
			"--user-data-dir=%[1]s --no-first-run --no-default-browser-check "+
			">/dev/null 2>&1 & echo $! > %[4]s",
		profileDir, bin, port, pidFile)
	if _, err := b.Run(ctx, start); err != nil {
		return fmt.Errorf("start remote browser: %w", err)
	}
	b.logger.Info().Str("host", b.host).Int("port", port).Msg("started remote browser")

	// Chrome needs a moment before the debug endpoint accepts connections.
	time.Sleep(3 * time.Second)
	return nil
}

// StopBrowser kills the instance recorded in the profile's PID file.
func (b *Bridge) StopBrowser(ctx context.Context, profileDir string) error {
	pidFile := profileDir + "/chrome.pid"
	_, err := b.Run(ctx, fmt.Sprintf(
		"test -f %[1]s && kill $(cat %[1]s) 2>/dev/null; rm -f %[1]s", pidFile))
	return err
}

// Wake starts the SSH service inside the browser host's WSL distribution by
// way of the Windows desktop host. Requires passwordless sudo for
// "service ssh start" in the distro.
func (b *Bridge) Wake(ctx context.Context) error {
	if b.wakeHost == "" {
		return fmt.Errorf("no wake host configured")
	}
	target := b.wakeHost
	if b.wakeUser != "" {
		target = b.wakeUser + "@" + b.wakeHost
	}
	distro := b.wakeDistro
	if distro == "" {
		distro = "Ubuntu"
	}
	args := append([]string{}, b.sshOpts...)
	args = append(args, target, fmt.Sprintf("wsl -d %s -- sudo service ssh start", distro))
	cmd := exec.CommandContext(ctx, "ssh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ssh %s: %w: %s", b.wakeHost, err, strings.TrimSpace(string(out)))
	}
	// Give sshd a moment to come up before the retry.
	time.Sleep(2 * time.Second)
	return nil
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "connection timed out")
}
