// Package executor fans ad-hoc operations out across many targets in
// parallel. The dispatcher drives it synchronously: each run call blocks
// until every target has finished or the run context is cancelled.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/target"
	"github.com/benjamin-robertson/bolt/internal/transport"
	"github.com/google/uuid"
)

// Executor is the remote-execution collaborator consumed by the dispatcher.
type Executor interface {
	RunCommand(ctx context.Context, targets []target.Target, cmd string) (ResultSet, error)
	RunScript(ctx context.Context, targets []target.Target, path string, args []string, env map[string]string) (ResultSet, error)
	UploadFile(ctx context.Context, targets []target.Target, src, dest string) (ResultSet, error)

	Subscribe(o Observer)
	PublishEvent(event Event)

	// Shutdown releases executor resources. It is idempotent and never
	// panics once called; the dispatcher calls it on both normal and
	// interrupted paths.
	Shutdown()
}

// SSHExecutor executes operations over SSH with a bounded worker pool.
type SSHExecutor struct {
	dialer      transport.Dialer
	concurrency int
	tmpdir      string
	log         logger.Logger
	runID       string

	pub publisher

	shutdownOnce sync.Once
	done         chan struct{}
}

// Option configures an SSHExecutor.
type Option func(*SSHExecutor)

// WithLogger sets the executor's logger.
func WithLogger(log logger.Logger) Option {
	return func(e *SSHExecutor) { e.log = log }
}

// WithTmpdir sets the remote scratch directory used for scripts and tasks.
func WithTmpdir(dir string) Option {
	return func(e *SSHExecutor) { e.tmpdir = dir }
}

// NewSSHExecutor creates an executor that fans out over at most concurrency
// targets at a time.
func NewSSHExecutor(dialer transport.Dialer, concurrency int, opts ...Option) *SSHExecutor {
	e := &SSHExecutor{
		dialer:      dialer,
		concurrency: concurrency,
		tmpdir:      "/tmp",
		log:         logger.Noop(),
		runID:       uuid.NewString(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

// Subscribe adds a progress observer. Events are delivered in emission order.
func (e *SSHExecutor) Subscribe(o Observer) {
	e.pub.subscribe(o)
}

// PublishEvent delivers an event to all subscribed observers.
func (e *SSHExecutor) PublishEvent(event Event) {
	if event.RunID == "" {
		event.RunID = e.runID
	}
	e.pub.publish(event)
}

// Shutdown releases resources. Safe to call any number of times.
func (e *SSHExecutor) Shutdown() {
	e.shutdownOnce.Do(func() {
		close(e.done)
		e.log.Debug("executor shut down")
	})
}

// RunCommand runs a shell command on every target.
func (e *SSHExecutor) RunCommand(ctx context.Context, targets []target.Target, cmd string) (ResultSet, error) {
	return e.fanOut(ctx, targets, func(conn transport.Connection) (string, string, int, error) {
		stdout, stderr, code, err := conn.Exec(cmd)
		return string(stdout), string(stderr), code, err
	})
}

// RunScript uploads a local script to each target and executes it with the
// given arguments and environment.
func (e *SSHExecutor) RunScript(ctx context.Context, targets []target.Target, path string, args []string, env map[string]string) (ResultSet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ResultSet{}, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read script: "+path,
			"Check the path and file permissions")
	}

	remote := filepath.Join(e.tmpdir, fmt.Sprintf("bolt-script-%s-%s", e.runID[:8], filepath.Base(path)))
	cmd := buildScriptCommand(remote, args, env)

	return e.fanOut(ctx, targets, func(conn transport.Connection) (string, string, int, error) {
		if err := conn.Upload(remote, "0755", strings.NewReader(string(content))); err != nil {
			return "", "", -1, err
		}
		stdout, stderr, code, err := conn.Exec(cmd)
		return string(stdout), string(stderr), code, err
	})
}

// UploadFile copies a local file to the destination path on every target.
func (e *SSHExecutor) UploadFile(ctx context.Context, targets []target.Target, src, dest string) (ResultSet, error) {
	info, err := os.Stat(src)
	if err != nil {
		return ResultSet{}, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read source file: "+src,
			"Check the path and file permissions")
	}
	if info.IsDir() {
		return ResultSet{}, errors.New(errors.ErrFile,
			"Source is a directory: "+src,
			"Directory upload is not supported; upload files individually")
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return ResultSet{}, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read source file: "+src,
			"Check the path and file permissions")
	}

	return e.fanOut(ctx, targets, func(conn transport.Connection) (string, string, int, error) {
		if err := conn.Upload(dest, "0644", strings.NewReader(string(content))); err != nil {
			return "", "", -1, err
		}
		return fmt.Sprintf("Uploaded %s to %s", src, dest), "", 0, nil
	})
}

// operation is one per-target unit of work.
type operation func(conn transport.Connection) (stdout, stderr string, exitCode int, err error)

// fanOut runs op against every target with bounded concurrency. A failed
// target never aborts the others; cancellation is observed between target
// dispatches, so already-dispatched operations run to completion.
func (e *SSHExecutor) fanOut(ctx context.Context, targets []target.Target, op operation) (ResultSet, error) {
	select {
	case <-e.done:
		return ResultSet{}, errors.New(errors.ErrExec,
			"Executor has been shut down",
			"")
	default:
	}

	start := time.Now()

	jobs := make(chan target.Target, len(targets))
	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	workers := e.concurrency
	if workers > len(targets) {
		workers = len(targets)
	}

	resultChan := make(chan Result, len(targets))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				select {
				case <-ctx.Done():
					resultChan <- Result{Target: t, ExitCode: -1, Err: ctx.Err()}
					continue
				default:
				}
				resultChan <- e.runOne(t, op)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var results []Result
	for r := range resultChan {
		results = append(results, r)
	}

	// Present results in target order even though they complete unordered.
	order := map[string]int{}
	for i, t := range targets {
		order[t.Name] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].Target.Name] < order[results[j].Target.Name]
	})

	return ResultSet{Results: results, Elapsed: time.Since(start)}, nil
}

// runOne dials one target, runs the operation, and emits progress events.
func (e *SSHExecutor) runOne(t target.Target, op operation) Result {
	e.PublishEvent(Event{Type: EventNodeStart, Target: t.Name})
	start := time.Now()

	result := Result{Target: t, ExitCode: -1}
	conn, err := e.dialer.Dial(t)
	if err != nil {
		result.Err = err
	} else {
		defer conn.Close()
		stdout, stderr, code, opErr := op(conn)
		result.Stdout = stdout
		result.Stderr = stderr
		result.ExitCode = code
		result.Err = opErr
	}
	result.Duration = time.Since(start)

	message := "succeeded"
	if !result.OK() {
		if result.Err != nil {
			message = result.Err.Error()
		} else {
			message = fmt.Sprintf("failed with exit code %d", result.ExitCode)
		}
	}
	e.PublishEvent(Event{
		Type:    EventNodeResult,
		Target:  t.Name,
		OK:      result.OK(),
		Message: message,
	})
	return result
}

// buildScriptCommand renders the remote invocation of an uploaded script.
func buildScriptCommand(remote string, args []string, env map[string]string) string {
	var b strings.Builder

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s=%s ", k, shellQuote(env[k])))
	}

	b.WriteString(shellQuote(remote))
	for _, arg := range args {
		b.WriteString(" ")
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
