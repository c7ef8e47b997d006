/*
Package runner provides a local stand-in for a backend execution service
(Python, Octave, Manim runners are deployed separately in production). It
serves the wire protocol the bridge package speaks: GET /health for the
advisory reachability probe and POST /execute for command dispatch.

Commands are dispatched on the "command" field of the request body to
registered handler funcs. Each execution gets a unique execution ID which is
echoed in the response and in the log stream. GET /logs upgrades to a
WebSocket that replays recent execution log lines and then streams live
ones.
*/
package runner
