package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Handler executes one command. The params map is the decoded request body,
// including the "command" key. The returned map is written back to the
// caller as the response body; nil means a plain {"success": true}.
type Handler func(r *http.Request, params map[string]any) map[string]any

// Runner is an HTTP server implementing the backend runner wire protocol.
type Runner struct {
	logger     *zap.SugaredLogger
	service    string
	listenAddr string
	logs       *logBuffer

	handlersMut sync.RWMutex
	handlers    map[string]Handler

	serverMut  sync.Mutex
	httpServer *http.Server
}

type Option func(r *Runner)

func WithListenAddr(s string) Option {
	return func(r *Runner) {
		r.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l.Named("runner").Sugar()
	}
}

// WithLogBuffer sets how many recent log lines are kept for replay to new
// log stream subscribers.
func WithLogBuffer(n int) Option {
	return func(r *Runner) {
		r.logs = newLogBuffer(n)
	}
}

// New constructs a runner for the named service. A built-in "ping" command
// is registered so a freshly started runner is immediately exercisable.
func New(service string, opts ...Option) *Runner {
	r := &Runner{
		logger:     zap.NewNop().Sugar(),
		service:    service,
		listenAddr: "0.0.0.0:8001",
		logs:       newLogBuffer(256),
		handlers:   make(map[string]Handler),
	}
	for _, o := range opts {
		o(r)
	}
	r.Handle("ping", func(_ *http.Request, _ map[string]any) map[string]any {
		return map[string]any{"success": true, "message": "pong", "service": r.service}
	})
	return r
}

// Handle registers a handler for a command name, replacing any previous
// handler for that name.
func (r *Runner) Handle(command string, h Handler) {
	r.handlersMut.Lock()
	defer r.handlersMut.Unlock()
	r.handlers[command] = h
}

func (r *Runner) lookup(command string) Handler {
	r.handlersMut.RLock()
	defer r.handlersMut.RUnlock()
	return r.handlers[command]
}

// Run serves until Stop is called, returning nil on clean shutdown.
func (r *Runner) Run() error {
	listener, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	router := httprouter.New()
	router.GET("/health", r.health)
	router.POST("/execute", r.execute)
	router.GET("/logs", r.logsWS)

	server := &http.Server{Handler: router}
	r.serverMut.Lock()
	r.httpServer = server
	r.serverMut.Unlock()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the HTTP server. Safe to call when Run was never started.
func (r *Runner) Stop() error {
	r.serverMut.Lock()
	server := r.httpServer
	r.serverMut.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

func (r *Runner) health(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	r.writeJSON(w, map[string]any{
		"status":  "ok",
		"service": r.service,
	})
}

func (r *Runner) execute(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var params map[string]any
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		http.Error(w, fmt.Sprintf("decoding request body: %s", err), http.StatusBadRequest)
		return
	}

	command, _ := params["command"].(string)
	execID := uuid.NewString()
	r.log(execID, fmt.Sprintf("received command %q", command))

	h := r.lookup(command)
	if h == nil {
		r.log(execID, fmt.Sprintf("no handler for command %q", command))
		r.writeJSON(w, map[string]any{
			"success":      false,
			"error":        fmt.Sprintf("unknown command %q", command),
			"execution_id": execID,
		})
		return
	}

	result := h(req, params)
	if result == nil {
		result = map[string]any{"success": true}
	}
	if _, ok := result["execution_id"]; !ok {
		result["execution_id"] = execID
	}
	r.log(execID, fmt.Sprintf("command %q finished", command))
	r.writeJSON(w, result)
}

func (r *Runner) writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Debugf("error marshaling response: %s", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

func (r *Runner) log(execID, line string) {
	r.logger.Debugf("exec %s: %s", execID, line)
	r.logs.append(LogEntry{
		Time:   time.Now().UTC().Format(time.RFC3339),
		ExecID: execID,
		Line:   line,
	})
}
