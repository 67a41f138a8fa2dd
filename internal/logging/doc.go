// Package logging builds the slog logger used across chatlens, with a compact
// console format for interactive use and a JSON format for log files.
package logging
