// Package js holds the scripts evaluated in pages to implement element
// level commands. Every script is a function expression; use Call to apply
// it to arguments.
package js

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// ElementInfoScript returns the rect, text, outer HTML and attributes of the
// first element matching a selector, null when there is none, or
// {invalid: reason} when the selector cannot be parsed.
//
//go:embed element_info.js
var ElementInfoScript string

// ScrollIntoViewScript scrolls the first element matching a selector into
// the center of the viewport. It returns false when there is no element.
//
//go:embed scroll_into_view.js
var ScrollIntoViewScript string

// SelectOptionScript sets the value of a <select> and fires its input and
// change events. It returns 'ok', 'not_found', 'not_select' or 'no_option'.
//
//go:embed select_option.js
var SelectOptionScript string

// SetInputFilesScript sets the files of a file input from base64 encoded
// contents. It returns 'ok', 'not_found' or 'not_file_input'.
//
//go:embed set_input_files.js
var SetInputFilesScript string

// ClearCookiesScript expires every cookie visible to the document.
//
//go:embed clear_cookies.js
var ClearCookiesScript string

// PageSizeScript returns the full size of the document.
//
//go:embed page_size.js
var PageSizeScript string

// Call returns an expression applying the function expression fn to args.
// The arguments are encoded as JSON literals.
func Call(fn string, args ...any) (string, error) {
	lits := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding script argument: %w", err)
		}
		lits = append(lits, string(b))
	}
	return "(" + strings.TrimSpace(fn) + ")(" + strings.Join(lits, ", ") + ")", nil
}
