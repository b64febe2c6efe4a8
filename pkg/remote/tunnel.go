package remote

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
)

// Tunnel owns a forwarding ssh subprocess that maps a local port onto the
// remote browser's debug port.
type Tunnel struct {
	cmd       *exec.Cmd
	waitCh    chan error
	LocalPort int
}

// OpenTunnel frees the local port, launches the forwarding process, and
// verifies it survived its first second. The ssh process runs without -f so
// it stays a direct child and can be torn down deterministically.
func OpenTunnel(host, user, sshOpts string, remotePort, localPort int, logger log.Logger) (*Tunnel, error) {
	// Evict whatever still holds the local port from a previous run.
	kill := exec.Command("fuser", "-k", "-n", "tcp", strconv.Itoa(localPort))
	_ = kill.Run()
	time.Sleep(500 * time.Millisecond)

	target := host
	if user != "" {
		target = user + "@" + host
	}
	args := append([]string{}, strings.Fields(sshOpts)...)
	args = append(args,
		"-N",
		"-o", "ExitOnForwardFailure=yes",
		"-L", fmt.Sprintf("127.0.0.1:%d:127.0.0.1:%d", localPort, remotePort),
		target,
	)

	cmd := exec.Command("ssh", args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ssh tunnel: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// ExitOnForwardFailure makes a doomed tunnel die fast; give it a second.
	select {
	case err := <-waitCh:
		return nil, fmt.Errorf("ssh tunnel exited immediately: %v", err)
	case <-time.After(time.Second):
	}

	logger.Info().
		Int("local_port", localPort).
		Int("remote_port", remotePort).
		Int("pid", cmd.Process.Pid).
		Msg("ssh tunnel established")
	return &Tunnel{cmd: cmd, waitCh: waitCh, LocalPort: localPort}, nil
}

// URL returns the CDP endpoint served through the tunnel.
func (t *Tunnel) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", t.LocalPort)
}

// Close terminates the tunnel process, escalating to SIGKILL after a two
// second grace period.
func (t *Tunnel) Close() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	_ = t.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-t.waitCh:
	case <-time.After(2 * time.Second):
		_ = t.cmd.Process.Kill()
		<-t.waitCh
	}
	t.cmd = nil
	return nil
}
