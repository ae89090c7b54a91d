package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Options describe how to reach the backup host.
type Options struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	ConnectTimeout time.Duration
}

// SSHClient implements Client over one lazily established SSH
// connection with an SFTP subsystem on top.
type SSHClient struct {
	opts Options

	client     *ssh.Client
	sftpClient *sftp.Client
}

func NewSSHClient(opts Options) *SSHClient {
	if opts.Port == 0 {
		opts.Port = 22
	}
	return &SSHClient{opts: opts}
}

func (c *SSHClient) connect() error {
	if c.sftpClient != nil {
		return nil
	}

	config := &ssh.ClientConfig{
		User:            c.opts.User,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.opts.ConnectTimeout,
	}

	if c.opts.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(c.opts.Password))
	}

	if c.opts.KeyFile != "" {
		signer, err := loadKey(c.opts.KeyFile)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindConnection,
				fmt.Sprintf("failed to load SSH key %s", c.opts.KeyFile),
				"Check ssh.key_file in the configuration.")
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}

	if c.opts.Password == "" && c.opts.KeyFile == "" {
		// 1. Try SSH agent
		if authSock := os.Getenv("SSH_AUTH_SOCK"); authSock != "" {
			if conn, err := net.Dial("unix", authSock); err == nil {
				ag := agent.NewClient(conn)
				if signers, err := ag.Signers(); err == nil && len(signers) > 0 {
					config.Auth = append(config.Auth, ssh.PublicKeysCallback(ag.Signers))
				}
			}
		}

		// 2. Try common private keys
		if home, err := os.UserHomeDir(); err == nil {
			for _, k := range []string{"id_rsa", "id_ed25519", "id_ecdsa"} {
				if signer, err := loadKey(filepath.Join(home, ".ssh", k)); err == nil {
					config.Auth = append(config.Auth, ssh.PublicKeys(signer))
				}
			}
		}
	}

	if len(config.Auth) == 0 {
		return apperrors.New(apperrors.KindConnection, "no supported SSH authentication methods found",
			"Ensure an SSH agent is running or configure ssh.password or ssh.key_file.")
	}

	addr := fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to connect via SSH",
			"Check host reachability, SSH port, and credentials.")
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return apperrors.Wrap(err, apperrors.KindConnection, "failed to create SFTP client",
			"Verify the SFTP subsystem is enabled on the remote host.")
	}

	c.client = client
	c.sftpClient = sftpClient
	return nil
}

func loadKey(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

func (c *SSHClient) Exec(ctx context.Context, name string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.connect(); err != nil {
		return "", err
	}
	session, err := c.client.NewSession()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.KindConnection, "failed to open SSH session", "")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = QuoteArg(arg)
	}
	cmd := name
	if len(escaped) > 0 {
		cmd += " " + strings.Join(escaped, " ")
	}

	// session.Run has no context form; tearing the session down is the
	// only way to unblock it when the caller gives up.
	watch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-watch:
		}
	}()
	runErr := session.Run(cmd)
	close(watch)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return "", fmt.Errorf("remote command %q failed: %s", name, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *SSHClient) Stat(ctx context.Context, path string) (int64, error) {
	if err := c.connect(); err != nil {
		return 0, err
	}
	info, err := c.sftpClient.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (c *SSHClient) ReadDir(ctx context.Context, path string) ([]Entry, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	infos, err := c.sftpClient.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:  info.Name(),
			Size:  info.Size(),
			IsDir: info.IsDir(),
		})
	}
	return entries, nil
}

func (c *SSHClient) MkdirAll(ctx context.Context, path string) error {
	if err := c.connect(); err != nil {
		return err
	}
	return c.sftpClient.MkdirAll(path)
}

func (c *SSHClient) RemoveAll(ctx context.Context, path string) error {
	if err := c.connect(); err != nil {
		return err
	}
	return c.sftpClient.RemoveAll(path)
}

func (c *SSHClient) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}
	f, err := c.sftpClient.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *SSHClient) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := c.connect(); err != nil {
		return err
	}
	if err := c.sftpClient.MkdirAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", filepath.Dir(path), err)
	}
	f, err := c.sftpClient.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", path, err)
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (c *SSHClient) Close() error {
	if c.sftpClient != nil {
		c.sftpClient.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// QuoteArg wraps an argument in single quotes for a remote shell,
// escaping embedded single quotes.
func QuoteArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", "'\\''") + "'"
}

var _ Client = (*SSHClient)(nil)
