/*
Package bridge routes named commands from an application to independently
hosted execution backends (Python, Octave, Manim runners) over HTTP.

Each backend is represented by a Connection: a named link with an endpoint
URL and a connected flag. Connections are optimistic--Connect always
succeeds, and the optional health probe is advisory only. Execute posts a
JSON command body to the backend's /execute route and passes the backend's
JSON response through verbatim. All failures are reported as result
envelopes, never as Go errors, so callers decide how to surface or retry.

A Registry holds the fixed set of preconfigured Connections, one per
backend service, built once at startup from environment variables.
*/
package bridge
