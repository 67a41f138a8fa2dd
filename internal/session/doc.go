// Package session owns the access/refresh token pair for the coaching
// analysis service. Every authenticated request is routed through Manager,
// which refreshes the access token proactively before a call and at most once
// reactively after a 401. All refresh failures collapse into ErrExpired;
// callers react by directing the user to log in again, nothing else.
package session
