// Package main hosts the chatlens CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into calls
// against the conversation analysis service: uploading chat log exports,
// starting and watching their multi-agent evaluation, fetching result
// documents, and managing the login session. It centralizes configuration
// resolution, session construction, and structured logging setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
