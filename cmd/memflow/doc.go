// Package main is the memflow server entry point. It loads YAML/env
// configuration, builds the retrieval pipeline with its document sources,
// and serves the HTTP and WebSocket search API alongside an optional
// Prometheus metrics listener. Subcommands: serve, version, health.
package main
