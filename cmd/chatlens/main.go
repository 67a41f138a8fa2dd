package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"chatlens/internal/session"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, friendlyError(err))
		}
		os.Exit(1)
	}
}

func friendlyError(err error) string {
	switch {
	case errors.Is(err, session.ErrExpired):
		return "session expired; run 'chatlens login' to re-authenticate"
	case errors.Is(err, session.ErrNotAuthenticated):
		return "not logged in; run 'chatlens login' first"
	default:
		return err.Error()
	}
}
