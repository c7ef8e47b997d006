package runner

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolbridge/toolbridge/bridge"
	"github.com/toolbridge/toolbridge/internal/netutil"
	"go.uber.org/zap"
)

var log *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	log = l
}

// startRunner runs r in the background and blocks until its health route
// responds.
func startRunner(t *testing.T, r *Runner, addr string) string {
	go r.Run()
	t.Cleanup(func() { require.NoError(t, r.Stop()) })

	endpoint := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(endpoint + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	return endpoint
}

func newTestRunner(t *testing.T, service string) (*Runner, string) {
	addr, err := netutil.EphemeralAddr()
	require.NoError(t, err)
	r := New(service, WithListenAddr(addr), WithLogger(log))
	endpoint := startRunner(t, r, addr)
	return r, endpoint
}

func TestRunnerPing(t *testing.T) {
	_, endpoint := newTestRunner(t, "python")

	conn := bridge.NewConnection("python", bridge.ServiceConfig{Endpoint: endpoint, Protocol: "mcp"}, bridge.WithLogger(log))
	result := conn.Execute(context.Background(), "ping", nil)

	require.Equal(t, true, result["success"])
	assert.Equal(t, "pong", result["message"])
	assert.Equal(t, "python", result["service"])
	assert.NotEmpty(t, result["execution_id"])
}

func TestRunnerCustomHandler(t *testing.T) {
	r, endpoint := newTestRunner(t, "octave")
	r.Handle("eval", func(_ *http.Request, params map[string]any) map[string]any {
		return map[string]any{"success": true, "expr": params["expr"]}
	})

	conn := bridge.NewConnection("octave", bridge.ServiceConfig{Endpoint: endpoint, Protocol: "mcp"}, bridge.WithLogger(log))
	result := conn.Execute(context.Background(), "eval", map[string]any{"expr": "1+1"})

	require.Equal(t, true, result["success"])
	assert.Equal(t, "1+1", result["expr"])
}

func TestRunnerUnknownCommand(t *testing.T) {
	// An unknown command is a backend-reported failure: the runner responds
	// 200 and the bridge passes the envelope through on its success path.
	_, endpoint := newTestRunner(t, "python")

	conn := bridge.NewConnection("python", bridge.ServiceConfig{Endpoint: endpoint, Protocol: "mcp"}, bridge.WithLogger(log))
	result := conn.Execute(context.Background(), "levitate", nil)

	require.Equal(t, false, result["success"])
	errMsg, ok := result["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "levitate")
	_, hasEndpoint := result["endpoint"]
	assert.False(t, hasEndpoint)
}

func TestRunnerBadRequestBody(t *testing.T) {
	_, endpoint := newTestRunner(t, "python")

	resp, err := http.Post(endpoint+"/execute", "application/json", bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTailLogs(t *testing.T) {
	_, endpoint := newTestRunner(t, "manim")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		TailLogs(ctx, endpoint, pw)
		pw.Close()
	}()

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	conn := bridge.NewConnection("manim", bridge.ServiceConfig{Endpoint: endpoint, Protocol: "mcp"}, bridge.WithLogger(log))
	result := conn.Execute(ctx, "ping", nil)
	require.Equal(t, true, result["success"])

	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "log stream closed before a ping line arrived")
			if strings.Contains(line, `"ping"`) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a ping log line")
		}
	}
}

func TestLogBufferTrims(t *testing.T) {
	b := newLogBuffer(2)
	b.append(LogEntry{Line: "one"})
	b.append(LogEntry{Line: "two"})
	b.append(LogEntry{Line: "three"})

	snapshot, _, cancel := b.subscribe()
	defer cancel()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "two", snapshot[0].Line)
	assert.Equal(t, "three", snapshot[1].Line)
}
