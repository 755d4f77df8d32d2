package chrome

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Space":      " ",
}

var modifierKeys = map[string]input.Modifier{
	"Alt":     input.ModifierAlt,
	"Control": input.ModifierCtrl,
	"Ctrl":    input.ModifierCtrl,
	"Meta":    input.ModifierMeta,
	"Command": input.ModifierMeta,
	"Shift":   input.ModifierShift,
}

// parseKey splits a key description such as "Enter", "a" or "Control+A"
// into the key sequence chromedp sends and its modifier mask.
func parseKey(key string) (string, input.Modifier, error) {
	if key == "" {
		return "", 0, fmt.Errorf("empty key")
	}
	if key == "+" {
		return key, 0, nil
	}

	parts := strings.Split(key, "+")
	name := parts[len(parts)-1]
	var mods input.Modifier
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierKeys[p]
		if !ok {
			return "", 0, fmt.Errorf("unknown modifier %q in key %q", p, key)
		}
		mods |= m
	}

	if seq, ok := namedKeys[name]; ok {
		return seq, mods, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		if mods&^input.ModifierShift != 0 {
			// shortcuts are matched on the lower-case key
			name = strings.ToLower(name)
		}
		return name, mods, nil
	}
	return "", 0, fmt.Errorf("unknown key %q", key)
}
