package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSSHPort     = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxTries    = 5

	remoteFileMode fs.FileMode = 0644
)

// errNoAgent is returned when no SSH agent socket is available
var errNoAgent = errors.New("SSH agent socket not set (SSH_AUTH_SOCK)")

// SFTPConfig describes the remote host artifacts are mirrored to
type SFTPConfig struct {
	Host           string
	Port           int
	User           string
	KnownHostsFile string

	// AgentSocket defaults to $SSH_AUTH_SOCK
	AgentSocket string

	// RemoteDir is prepended to the local path; empty keeps the same absolute path
	RemoteDir string

	DialTimeout time.Duration

	// MaxTries bounds connection attempts per reconnect
	MaxTries uint
}

// connectFunc opens an SFTP session; closing the returned io.Closer releases
// the underlying connection
type connectFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTPTransport uploads artifacts over SFTP.
// Each file is uploaded to a temporary name and renamed over the target, so
// readers on the remote host never see a partial file.
type SFTPTransport struct {
	cfg        SFTPConfig
	connect    connectFunc
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	client *sftp.Client
	conn   io.Closer
}

var _ Transport = (*SFTPTransport)(nil)

// NewSFTPTransport creates a transport for cfg. No connection is made until
// the first Copy.
func NewSFTPTransport(cfg SFTPConfig) (*SFTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mirror host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("mirror user is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.AgentSocket == "" {
		cfg.AgentSocket = os.Getenv("SSH_AUTH_SOCK")
	}

	t := &SFTPTransport{
		cfg: cfg,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	t.connect = t.dialSSH
	return t, nil
}

// Copy uploads the file at localPath to the remote host.
// A file that no longer exists locally has been superseded and is skipped.
func (t *SFTPTransport) Copy(ctx context.Context, localPath string) error {
	local, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Artifact no longer exists, skipping", "path", localPath)
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer local.Close()

	client, err := t.ensureClient(ctx)
	if err != nil {
		return err
	}

	remotePath := t.remotePath(localPath)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("failed to create remote directory for %s: %w", remotePath, err)
	}

	tempPath := remotePath + "." + uuid.NewString() + ".tmp"
	if err := upload(client, local, tempPath); err != nil {
		_ = client.Remove(tempPath)
		return err
	}

	if err := client.PosixRename(tempPath, remotePath); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", remotePath, err)
	}

	slog.Debug("Mirrored artifact", "path", localPath, "host", t.cfg.Host)
	return nil
}

// Close drops the connection; the next Copy reconnects
func (t *SFTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}

	err := errors.Join(t.client.Close(), t.conn.Close())
	t.client = nil
	t.conn = nil
	return err
}

// ensureClient returns the open SFTP client, connecting with backoff if needed
func (t *SFTPTransport) ensureClient(ctx context.Context) (*sftp.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	type session struct {
		client *sftp.Client
		conn   io.Closer
	}

	s, err := backoff.Retry(ctx,
		func() (session, error) {
			client, conn, err := t.connect(ctx)
			if err != nil {
				return session{}, err
			}
			return session{client: client, conn: conn}, nil
		},
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(t.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Mirror connection failed, retrying",
				"host", t.cfg.Host,
				"retry_in", next,
				"error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.cfg.Host, err)
	}

	slog.Info("Mirror connection established", "host", t.cfg.Host, "user", t.cfg.User)
	t.client = s.client
	t.conn = s.conn
	return t.client, nil
}

// dialSSH opens an SSH connection authenticated by the agent and starts SFTP
func (t *SFTPTransport) dialSSH(ctx context.Context) (*sftp.Client, io.Closer, error) {
	if t.cfg.AgentSocket == "" {
		return nil, nil, backoff.Permanent(errNoAgent)
	}

	hostKeyCallback, err := knownhosts.New(t.cfg.KnownHostsFile)
	if err != nil {
		return nil, nil, backoff.Permanent(fmt.Errorf("failed to load known hosts: %w", err))
	}

	var dialer net.Dialer
	agentConn, err := dialer.DialContext(ctx, "unix", t.cfg.AgentSocket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}
	// Keys are only needed during the handshake
	defer agentConn.Close()

	sshCfg := &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.cfg.DialTimeout,
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer.Timeout = t.cfg.DialTimeout
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	_ = netConn.SetDeadline(time.Now().Add(t.cfg.DialTimeout))
	conn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		_ = netConn.Close()
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			return nil, nil, backoff.Permanent(fmt.Errorf("host key verification failed for %s: %w", addr, err))
		}
		return nil, nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(conn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("failed to start SFTP session: %w", err)
	}

	return client, sshClient, nil
}

// remotePath maps a local artifact path onto the remote host
func (t *SFTPTransport) remotePath(localPath string) string {
	p := filepath.ToSlash(localPath)
	if t.cfg.RemoteDir == "" {
		return p
	}
	return path.Join(t.cfg.RemoteDir, p)
}

// upload writes src to dst on the remote host
func upload(client *sftp.Client, src io.Reader, dst string) error {
	remote, err := client.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := remote.ReadFrom(src); err != nil {
		_ = remote.Close()
		return fmt.Errorf("failed to upload %s: %w", dst, err)
	}
	if err := remote.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	if err := client.Chmod(dst, remoteFileMode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", dst, err)
	}
	return nil
}
