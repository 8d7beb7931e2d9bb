package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/f4biogr/rollout/internal/domain"
)

// SSHRunner implements [Runner] over SSH with public key authentication.
// Each Run opens a fresh connection; deployments issue a handful of
// commands per host, so connection reuse is not worth the liveness
// bookkeeping.
type SSHRunner struct {
	User    string
	KeyFile string
	// KeyDir resolves per-host keys: a host whose CredentialsRef is set
	// uses KeyDir/CredentialsRef instead of KeyFile.
	KeyDir string
	Port   int
	// KnownHostsFile enables host key verification. Empty skips it, which
	// is only acceptable on trusted private networks.
	KnownHostsFile string
	DialTimeout    time.Duration

	mu      sync.Mutex
	signers map[string]ssh.Signer
}

func (r *SSHRunner) port() int {
	if r.Port > 0 {
		return r.Port
	}
	return 22
}

func (r *SSHRunner) dialTimeout() time.Duration {
	if r.DialTimeout > 0 {
		return r.DialTimeout
	}
	return 10 * time.Second
}

func (r *SSHRunner) keyPath(host domain.Host) string {
	if host.CredentialsRef != "" && r.KeyDir != "" {
		return filepath.Join(r.KeyDir, host.CredentialsRef)
	}
	return r.KeyFile
}

func (r *SSHRunner) signerFor(host domain.Host) (ssh.Signer, error) {
	path := r.keyPath(host)
	if path == "" {
		return nil, fmt.Errorf("no SSH key configured for host %s", host.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if signer, ok := r.signers[path]; ok {
		return signer, nil
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse SSH key %s: %w", path, err)
	}
	if r.signers == nil {
		r.signers = make(map[string]ssh.Signer)
	}
	r.signers[path] = signer
	return signer, nil
}

func (r *SSHRunner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(r.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

func (r *SSHRunner) dial(ctx context.Context, host domain.Host) (*ssh.Client, error) {
	signer, err := r.signerFor(host)
	if err != nil {
		return nil, err
	}
	hostKeys, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         r.dialTimeout(),
	}

	addr := net.JoinHostPort(host.Address, strconv.Itoa(r.port()))
	dialer := net.Dialer{Timeout: r.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (r *SSHRunner) Run(ctx context.Context, host domain.Host, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("empty command")
	}
	command := shellquote.Join(args...)

	client, err := r.dial(ctx, host)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open session on %s: %w", host.Address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the client unblocks session.Run.
		client.Close()
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	case err = <-done:
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("run %q on %s: %w", args[0], host.Address, err)
	}
	return result, nil
}
