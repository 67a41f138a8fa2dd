// Package transport executes authenticated JSON and multipart requests
// against the coaching analysis service.
package transport
