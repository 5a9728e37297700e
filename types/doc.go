// Package types defines the shared data model and the unified error type
// used across the memflow search pipeline.
package types
