package tui

// Keybinding constants
const (
	KeyQuit    = "q"
	KeyCtrlC   = "ctrl+c"
	KeyRerun   = "r"
	KeyCancel  = "c"
	KeyDismiss = "enter"
	KeyEsc     = "esc"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("r: run again | c: cancel | j/k: scroll log | enter: dismiss | q: quit")
}
