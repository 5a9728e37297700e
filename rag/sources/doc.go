// Package sources implements the pluggable data source connectors that
// feed candidate documents into the search pipeline: a document store, the
// local browsing history, and web pages reachable from that history.
package sources
