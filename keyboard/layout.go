package keyboard

import (
	"sort"
	"unicode/utf8"
)

// ModifierKey is a key modifier like ALT, CTRL, or Shift.
type ModifierKey int64

const (
	// ModifierKeyAlt is the ALT key modifier.
	ModifierKeyAlt ModifierKey = 1 << iota
	// ModifierKeyControl is the CTRL key modifier.
	ModifierKeyControl
	// ModifierKeyMeta is the meta key modifier.
	ModifierKeyMeta
	// ModifierKeyShift is the Shift key modifier.
	ModifierKeyShift
)

// Key is a keyboard key name: a code like "KeyA" or a key value like "a".
type Key string

// Definition describes the key events a physical key produces.
type Definition struct {
	Code         string
	Key          string
	KeyCode      int64
	ShiftKey     string
	ShiftKeyCode int64
	Text         string
	Location     int64
}

// Layout maps key names to the physical keys of a keyboard layout.
type Layout struct {
	Name string
	// Keys are the definitions keyed by code.
	Keys map[Key]Definition

	byValue map[Key]Key
	byShift map[Key]Key
}

// newLayout indexes keys by key value and shifted key value. When two codes
// produce the same value, the first in code order wins.
func newLayout(name string, keys map[Key]Definition) Layout {
	l := Layout{
		Name:    name,
		Keys:    keys,
		byValue: make(map[Key]Key, len(keys)),
		byShift: make(map[Key]Key),
	}
	codes := make([]string, 0, len(keys))
	for code := range keys {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	for _, code := range codes {
		d := keys[Key(code)]
		if _, ok := l.byValue[Key(d.Key)]; !ok {
			l.byValue[Key(d.Key)] = Key(code)
		}
		if d.ShiftKey == "" {
			continue
		}
		if _, ok := l.byShift[Key(d.ShiftKey)]; !ok {
			l.byShift[Key(d.ShiftKey)] = Key(code)
		}
	}
	return l
}

// lookup finds the definition of key and reports whether key is a shifted
// value.
func (l Layout) lookup(key Key) (d Definition, shifted bool, ok bool) {
	if d, ok = l.Keys[key]; ok {
		return d, false, true
	}
	if code, found := l.byValue[key]; found {
		return l.Keys[code], false, true
	}
	if code, found := l.byShift[key]; found {
		return l.Keys[code], true, true
	}
	return Definition{}, false, false
}

// ModifiedKeyDefinition returns the definition of key with the modifiers m
// applied. key can be a code ("KeyA"), a key value ("a") or a shifted key
// value ("A"). Only printable keys carry text, and only without modifiers
// other than shift.
func (l Layout) ModifiedKeyDefinition(key Key, m ModifierKey) Definition {
	src, shifted, _ := l.lookup(key)
	shift := shifted || m&ModifierKeyShift != 0

	d := Definition{
		Key:      src.Key,
		Code:     src.Code,
		KeyCode:  src.KeyCode,
		Location: src.Location,
		Text:     src.Text,
	}
	if shift && src.ShiftKeyCode != 0 {
		d.KeyCode = src.ShiftKeyCode
	}
	if shift && src.ShiftKey != "" {
		d.Key = src.ShiftKey
	}
	if d.Text == "" && utf8.RuneCountInString(d.Key) == 1 {
		d.Text = d.Key
	}
	if m&^ModifierKeyShift != 0 {
		d.Text = ""
	}

	return d
}

// ModifierBitFromKey returns the modifier of a modifier key value, or 0.
func (l Layout) ModifierBitFromKey(key string) ModifierKey {
	switch key {
	case "Alt":
		return ModifierKeyAlt
	case "Control":
		return ModifierKeyControl
	case "Meta":
		return ModifierKeyMeta
	case "Shift":
		return ModifierKeyShift
	}

	return 0
}

// IsValidKey reports whether key is a code, key value or shifted key value
// of the layout.
func (l Layout) IsValidKey(key Key) bool {
	_, _, ok := l.lookup(key)
	return ok
}
