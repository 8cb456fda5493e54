package tui

import (
	"fmt"
	"strings"
)

// Canonical short status messages used across the app.
const (
	MsgSearching      = "Searching…"
	MsgLoadingDetails = "Loading package…"
	MsgNoResults      = "No packages found"
	MsgNoSelection    = "Nothing selected"
)

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

func MsgCopied(content string) string {
	return fmt.Sprintf("Copied '%s'", strings.TrimSpace(content))
}

func MsgOpened(target string) string {
	return "Opened " + target
}
