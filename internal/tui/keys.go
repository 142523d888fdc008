package tui

import "strings"

const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
)

var helpBindings = [][2]string{
	{"Tab", "cycle focus"},
	{"1/2", "jump to pane"},
	{"j/k", "select task"},
	{"pgup/pgdn", "scroll"},
	{"q", "quit"},
}

// HelpView renders the key bindings as a single line.
func HelpView() string {
	parts := make([]string, len(helpBindings))
	for i, kb := range helpBindings {
		parts[i] = kb[0] + ": " + kb[1]
	}
	return StyleHelp.Render(strings.Join(parts, " | "))
}
