// Package transport provides the SSH connection layer used by the executor.
// It wraps golang.org/x/crypto/ssh behind small interfaces so executor logic
// can be tested without real connections.
package transport

import (
	"io"

	"github.com/benjamin-robertson/bolt/internal/target"
)

// Connection is an open session-capable connection to one target.
type Connection interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecWithInput runs a command feeding the given reader to stdin.
	ExecWithInput(cmd string, input io.Reader) (stdout, stderr []byte, exitCode int, err error)

	// Upload streams the reader's contents to a file at the remote path.
	Upload(dest string, mode string, content io.Reader) error

	// Close closes the connection.
	Close() error
}

// Dialer opens connections to targets. The SSH implementation is the only
// production dialer; tests substitute fakes.
type Dialer interface {
	Dial(t target.Target) (Connection, error)
}
