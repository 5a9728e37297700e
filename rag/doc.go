// Package rag implements the adaptive retrieval pipeline: query analysis,
// hierarchical keyword generation, document quality filtering, parameter
// planning, per-search vector indexing, multi-query retrieval, relevance
// refinement, and search quality tracking.
package rag
