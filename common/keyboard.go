/*
 *
 * xk6-headless - a headless page automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"fmt"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/keyboard"
)

// keyInput turns key names and text into engine key events using a
// keyboard layout.
type keyInput struct {
	layout keyboard.Layout
}

// newKeyInput returns a keyInput for the named layout.
func newKeyInput(layout string) (*keyInput, error) {
	l, err := keyboard.LayoutFor(layout)
	if err != nil {
		return nil, err
	}
	return &keyInput{layout: l}, nil
}

func (k *keyInput) validate(key string) error {
	if !k.layout.IsValidKey(keyboard.Key(key)) {
		return fmt.Errorf("%q is not a valid key for layout %q", key, k.layout.Name)
	}
	return nil
}

// press returns the key down and up events of key.
func (k *keyInput) press(key string) ([]api.InputEvent, error) {
	if err := k.validate(key); err != nil {
		return nil, err
	}
	keyDef := k.layout.ModifiedKeyDefinition(keyboard.Key(key), 0)

	return []api.InputEvent{
		api.KeyEvent{
			Type:    api.KeyDown,
			Key:     keyDef.Key,
			Code:    keyDef.Code,
			Text:    keyDef.Text,
			KeyCode: keyDef.KeyCode,
		},
		api.KeyEvent{
			Type:    api.KeyUp,
			Key:     keyDef.Key,
			Code:    keyDef.Code,
			KeyCode: keyDef.KeyCode,
		},
	}, nil
}

// typ returns a key press for each character of text. Characters that are
// not in the layout are inserted as text.
func (k *keyInput) typ(text string) []api.InputEvent {
	var events []api.InputEvent
	for _, c := range text {
		if evs, err := k.press(string(c)); err == nil {
			events = append(events, evs...)
			continue
		}
		events = append(events, api.TextEvent{Text: string(c)})
	}
	return events
}
