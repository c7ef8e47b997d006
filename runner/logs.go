package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// LogEntry is one line in the runner's execution log stream.
type LogEntry struct {
	Time   string `json:"time"`
	ExecID string `json:"exec_id,omitempty"`
	Line   string `json:"line"`
}

// logBuffer keeps the most recent log entries and fans out new entries to
// subscribers. Slow subscribers drop entries rather than blocking command
// execution.
type logBuffer struct {
	mut     sync.Mutex
	max     int
	entries []LogEntry
	subs    map[chan LogEntry]struct{}
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{
		max:  max,
		subs: make(map[chan LogEntry]struct{}),
	}
}

func (b *logBuffer) append(e LogEntry) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// subscribe returns a snapshot of buffered entries plus a channel of live
// entries. The cancel func must be called to release the subscription.
func (b *logBuffer) subscribe() ([]LogEntry, chan LogEntry, func()) {
	ch := make(chan LogEntry, 64)
	b.mut.Lock()
	snapshot := make([]LogEntry, len(b.entries))
	copy(snapshot, b.entries)
	b.subs[ch] = struct{}{}
	b.mut.Unlock()

	cancel := func() {
		b.mut.Lock()
		delete(b.subs, ch)
		b.mut.Unlock()
	}
	return snapshot, ch, cancel
}

// logsWS streams execution log lines over a WebSocket connection, replaying
// buffered entries first.
func (r *Runner) logsWS(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	wsConn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		r.logger.Debugf("error accepting log stream WebSocket conn: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ctx := req.Context()
	snapshot, ch, cancel := r.logs.subscribe()
	defer cancel()

	for _, e := range snapshot {
		if err := wsjson.Write(ctx, wsConn, e); err != nil {
			r.logger.Debugf("error writing buffered log entry: %s", err)
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			wsConn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-ch:
			if err := wsjson.Write(ctx, wsConn, e); err != nil {
				r.logger.Debugf("error writing log entry: %s", err)
				return
			}
		}
	}
}

// TailLogs dials a runner's log stream and writes one line per entry to out
// until the context is canceled or the stream closes.
func TailLogs(ctx context.Context, endpoint string, out io.Writer) error {
	u := strings.TrimSuffix(endpoint, "/") + "/logs"
	wsConn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dialing log stream: %w", err)
	}
	defer wsConn.Close(websocket.StatusNormalClosure, "")

	for {
		var e LogEntry
		if err := wsjson.Read(ctx, wsConn, &e); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading log stream: %w", err)
		}
		if _, err := fmt.Fprintf(out, "%s %s %s\n", e.Time, e.ExecID, e.Line); err != nil {
			return fmt.Errorf("writing log entry: %w", err)
		}
	}
}
