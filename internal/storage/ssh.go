package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/edvin/hostbackup/internal/model"
)

const sshDialTimeout = 30 * time.Second

// SSH stores artifacts on a remote host over an SSH connection using plain
// shell commands (mkdir, cat, mv, rm, test), so the remote side only needs
// a POSIX shell.
type SSH struct {
	client *ssh.Client
	addr   string
	root   string
}

// DialSSH connects to the destination described by desc. The remote host key
// must be present in desc.KnownHostsFile.
func DialSSH(ctx context.Context, desc model.StorageDescriptor) (*SSH, error) {
	cfg, err := sshClientConfig(desc)
	if err != nil {
		return nil, err
	}

	port := desc.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(desc.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: sshDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &SSH{
		client: ssh.NewClient(sshConn, chans, reqs),
		addr:   addr,
		root:   desc.Path,
	}, nil
}

func sshClientConfig(desc model.StorageDescriptor) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if desc.KeyFile != "" {
		pemBytes, err := os.ReadFile(desc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if desc.Password != "" {
		auth = append(auth, ssh.Password(desc.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh destination %s has no key file or password", desc.Host)
	}

	hostKeys, err := knownhosts.New(desc.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	return &ssh.ClientConfig{
		User:            desc.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         sshDialTimeout,
	}, nil
}

func (s *SSH) remotePath(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.root == "" {
		return k, nil
	}
	return path.Join(s.root, k), nil
}

// run executes cmd on the remote host. The session is closed when ctx ends,
// which aborts the command.
func (s *SSH) run(ctx context.Context, cmd string, stdin []byte) ([]byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.Bytes(), &remoteError{cmd: cmd, stderr: strings.TrimSpace(stderr.String()), err: err}
		}
		return stdout.Bytes(), nil
	}
}

type remoteError struct {
	cmd    string
	stderr string
	err    error
}

func (e *remoteError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("remote command %q: %v: %s", e.cmd, e.err, e.stderr)
	}
	return fmt.Sprintf("remote command %q: %v", e.cmd, e.err)
}

func (e *remoteError) Unwrap() error { return e.err }

func exitStatus(err error) (int, bool) {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}

// Write uploads data to key via a temporary file and an atomic rename.
func (s *SSH) Write(ctx context.Context, key string, data []byte) error {
	p, err := s.remotePath(key)
	if err != nil {
		return err
	}
	tmp := p + ".upload"
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && mv -f %s %s",
		shellQuote(path.Dir(p)), shellQuote(tmp), shellQuote(tmp), shellQuote(p))
	if _, err := s.run(ctx, cmd, data); err != nil {
		return fmt.Errorf("upload to %s: %w", s.Location(key), err)
	}
	return nil
}

// Read downloads key.
func (s *SSH) Read(ctx context.Context, key string) ([]byte, error) {
	p, err := s.remotePath(key)
	if err != nil {
		return nil, err
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("read %s: %w", s.Location(key), ErrNotFound)
	}
	out, err := s.run(ctx, "cat "+shellQuote(p), nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", s.Location(key), err)
	}
	return out, nil
}

// Delete removes key on the remote host.
func (s *SSH) Delete(ctx context.Context, key string) error {
	p, err := s.remotePath(key)
	if err != nil {
		return err
	}
	if _, err := s.run(ctx, "rm -f "+shellQuote(p), nil); err != nil {
		return fmt.Errorf("delete %s: %w", s.Location(key), err)
	}
	return nil
}

// Exists reports whether key is present on the remote host.
func (s *SSH) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.remotePath(key)
	if err != nil {
		return false, err
	}
	_, err = s.run(ctx, "test -f "+shellQuote(p), nil)
	if err == nil {
		return true, nil
	}
	if status, ok := exitStatus(err); ok && status == 1 {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", s.Location(key), err)
}

// Location returns an ssh://host:port/path URL for key.
func (s *SSH) Location(key string) string {
	p, err := s.remotePath(key)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "ssh://" + s.addr + p
}

// Close closes the SSH connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
