package input

// keyTable maps browser KeyboardEvent.key names to X keysyms. It is never
// written after init.
var keyTable = map[string]string{
	"Enter":      "Return",
	"Backspace":  "BackSpace",
	"Tab":        "Tab",
	"Escape":     "Escape",
	"Delete":     "Delete",
	"ArrowUp":    "Up",
	"ArrowDown":  "Down",
	"ArrowLeft":  "Left",
	"ArrowRight": "Right",
	"Home":       "Home",
	"End":        "End",
	"PageUp":     "Page_Up",
	"PageDown":   "Page_Down",
	"Insert":     "Insert",
	"F1":         "F1",
	"F2":         "F2",
	"F3":         "F3",
	"F4":         "F4",
	"F5":         "F5",
	"F6":         "F6",
	"F7":         "F7",
	"F8":         "F8",
	"F9":         "F9",
	"F10":        "F10",
	"F11":        "F11",
	"F12":        "F12",
	"Control":    "ctrl",
	"Alt":        "alt",
	"Shift":      "shift",
	"Meta":       "super",
	" ":          "space",
}

// TranslateKey returns the keysym for a browser key name. Unknown names
// pass through so clients can send raw keysyms such as "ctrl+c".
func TranslateKey(name string) string {
	if sym, ok := keyTable[name]; ok {
		return sym
	}
	return name
}
