// Package testing provides mock transport implementations for executor and
// dispatcher tests. No real connections are made.
package testing

import (
	"fmt"
	"io"
	"sync"

	"github.com/benjamin-robertson/bolt/internal/target"
	"github.com/benjamin-robertson/bolt/internal/transport"
)

// Response is a scripted result for a command on a mock connection.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// MockConnection implements transport.Connection with scripted responses.
// Commands without a scripted response succeed with empty output.
type MockConnection struct {
	mu        sync.Mutex
	Name      string
	Responses map[string]Response // keyed by command string
	Default   Response
	Commands  []string          // commands executed, in order
	Uploads   map[string][]byte // dest path -> content
	Closed    bool
}

// NewMockConnection creates a mock connection for a named target.
func NewMockConnection(name string) *MockConnection {
	return &MockConnection{
		Name:      name,
		Responses: map[string]Response{},
		Uploads:   map[string][]byte{},
	}
}

// Exec returns the scripted response for cmd, or the default.
func (c *MockConnection) Exec(cmd string) ([]byte, []byte, int, error) {
	return c.ExecWithInput(cmd, nil)
}

// ExecWithInput records the command and returns its scripted response.
func (c *MockConnection) ExecWithInput(cmd string, input io.Reader) ([]byte, []byte, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Commands = append(c.Commands, cmd)
	resp, ok := c.Responses[cmd]
	if !ok {
		resp = c.Default
	}
	if resp.Err != nil {
		return nil, nil, -1, resp.Err
	}
	return []byte(resp.Stdout), []byte(resp.Stderr), resp.ExitCode, nil
}

// Upload records the uploaded content.
func (c *MockConnection) Upload(dest string, mode string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Uploads[dest] = data
	return nil
}

// Close marks the connection closed.
func (c *MockConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// ExecutedCommands returns a copy of the commands run so far.
func (c *MockConnection) ExecutedCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmds := make([]string, len(c.Commands))
	copy(cmds, c.Commands)
	return cmds
}

// MockDialer implements transport.Dialer, handing out per-target mock
// connections. Unknown targets get a fresh default-success connection.
type MockDialer struct {
	mu          sync.Mutex
	Connections map[string]*MockConnection
	DialErrors  map[string]error // target name -> dial failure
	Dialed      []string
}

// NewMockDialer creates an empty mock dialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		Connections: map[string]*MockConnection{},
		DialErrors:  map[string]error{},
	}
}

// Connection returns (creating if needed) the mock connection for a target name.
func (d *MockDialer) Connection(name string) *MockConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn, ok := d.Connections[name]
	if !ok {
		conn = NewMockConnection(name)
		d.Connections[name] = conn
	}
	return conn
}

// FailDial scripts a dial failure for a target name.
func (d *MockDialer) FailDial(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialErrors[name] = fmt.Errorf("dial %s: connection refused", name)
}

// Dial implements transport.Dialer.
func (d *MockDialer) Dial(t target.Target) (transport.Connection, error) {
	d.mu.Lock()
	d.Dialed = append(d.Dialed, t.Name)
	err := d.DialErrors[t.Name]
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return d.Connection(t.Name), nil
}
