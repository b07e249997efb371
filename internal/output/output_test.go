package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/logger"
	"github.com/benjamin-robertson/bolt/internal/runtime"
	"github.com/benjamin-robertson/bolt/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResultSet() executor.ResultSet {
	return executor.ResultSet{
		Elapsed: 1200 * time.Millisecond,
		Results: []executor.Result{
			{Target: target.Target{Name: "web1"}, Stdout: "ok\n", ExitCode: 0},
			{Target: target.Target{Name: "web2"}, Stderr: "boom\n", ExitCode: 1},
		},
	}
}

func TestNewSelectsRenderer(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &JSONRenderer{}, New("json", &buf, false))
	assert.IsType(t, &HumanRenderer{}, New("human", &buf, false))
	assert.IsType(t, &HumanRenderer{}, New("", &buf, false))
}

func TestHumanRenderResults(t *testing.T) {
	var buf bytes.Buffer
	r := NewHumanRenderer(&buf, false)

	r.RenderResults("Ran command", sampleResultSet())
	out := buf.String()

	assert.Contains(t, out, "web1")
	assert.Contains(t, out, "web2")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "1 succeeded, 1 failed")
}

func TestHumanRenderPlanResult(t *testing.T) {
	var buf bytes.Buffer
	r := NewHumanRenderer(&buf, false)

	r.RenderPlanResult(runtime.PlanResult{
		Plan: "deploy::rollout",
		Steps: []runtime.StepResult{
			{Name: "stop", OK: true, Message: "2 succeeded, 0 failed"},
			{Name: "start", OK: false, Message: "1 succeeded, 1 failed"},
		},
		Message: "Plan aborted: step 'start' failed",
		Elapsed: 1200 * time.Millisecond,
	})
	out := buf.String()

	assert.Contains(t, out, "deploy::rollout")
	assert.Contains(t, out, "stop")
	assert.Contains(t, out, "Plan aborted")
	assert.Contains(t, out, "(1.2s)")
}

func TestHumanHandleEvent(t *testing.T) {
	var buf bytes.Buffer
	r := NewHumanRenderer(&buf, false)

	r.HandleEvent(executor.Event{Type: executor.EventNodeResult, Target: "web1", OK: true})
	r.HandleEvent(executor.Event{Type: executor.EventNodeResult, Target: "web2", OK: false, Message: "exit 1"})

	out := buf.String()
	assert.Contains(t, out, "Finished on web1")
	assert.Contains(t, out, "Failed on web2")
}

func TestJSONRenderResults(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONRenderer(&buf)

	r.RenderResults("command", sampleResultSet())

	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "command", env.Kind)

	items, ok := env.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestJSONRenderError(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONRenderer(&buf)

	r.RenderError(fmt.Errorf("something broke"))

	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "something broke", env.Error)
}

func TestJSONSuppressesProgressEvents(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONRenderer(&buf)

	r.HandleEvent(executor.Event{Type: executor.EventNodeStart, Target: "web1"})
	assert.Empty(t, buf.String())
}

func TestLogObserver(t *testing.T) {
	log := logger.NewBufferLogger()
	obs := &LogObserver{Log: log}

	obs.HandleEvent(executor.Event{Type: executor.EventNodeResult, Target: "web1", OK: false, Message: "exit 1"})
	obs.HandleEvent(executor.Event{Type: executor.EventNodeResult, Target: "web2", OK: true})

	assert.True(t, log.HasLevel("warn"))
	assert.True(t, log.HasLevel("debug"))
}
