// Package api defines the wire types exchanged with the coaching analysis
// service: authentication payloads, chat log records, processing status, and
// the per-agent result documents.
package api
