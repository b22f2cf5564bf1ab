package keyboard

//nolint:gochecknoinits
func init() {
	register("us", usKeys)
}

// usKeys are the US layout key definitions, keyed by code.
//
//nolint:gochecknoglobals
var usKeys = map[Key]Definition{
	"Escape":       {Key: "Escape", KeyCode: 27, Code: "Escape"},
	"Tab":          {Key: "Tab", KeyCode: 9, Code: "Tab"},
	"Backspace":    {Key: "Backspace", KeyCode: 8, Code: "Backspace"},
	"Enter":        {Key: "Enter", KeyCode: 13, Code: "Enter", Text: "\r"},
	"Delete":       {Key: "Delete", KeyCode: 46, Code: "Delete"},
	"Insert":       {Key: "Insert", KeyCode: 45, Code: "Insert"},
	"Home":         {Key: "Home", KeyCode: 36, Code: "Home"},
	"End":          {Key: "End", KeyCode: 35, Code: "End"},
	"PageUp":       {Key: "PageUp", KeyCode: 33, Code: "PageUp"},
	"PageDown":     {Key: "PageDown", KeyCode: 34, Code: "PageDown"},
	"ArrowLeft":    {Key: "ArrowLeft", KeyCode: 37, Code: "ArrowLeft"},
	"ArrowUp":      {Key: "ArrowUp", KeyCode: 38, Code: "ArrowUp"},
	"ArrowRight":   {Key: "ArrowRight", KeyCode: 39, Code: "ArrowRight"},
	"ArrowDown":    {Key: "ArrowDown", KeyCode: 40, Code: "ArrowDown"},
	"Space":        {Key: " ", KeyCode: 32, Code: "Space"},
	"ShiftLeft":    {Key: "Shift", KeyCode: 16, Code: "ShiftLeft", Location: 1},
	"ControlLeft":  {Key: "Control", KeyCode: 17, Code: "ControlLeft", Location: 1},
	"AltLeft":      {Key: "Alt", KeyCode: 18, Code: "AltLeft", Location: 1},
	"MetaLeft":     {Key: "Meta", KeyCode: 91, Code: "MetaLeft", Location: 1},
	"F1":           {Key: "F1", KeyCode: 112, Code: "F1"},
	"F2":           {Key: "F2", KeyCode: 113, Code: "F2"},
	"F3":           {Key: "F3", KeyCode: 114, Code: "F3"},
	"F4":           {Key: "F4", KeyCode: 115, Code: "F4"},
	"F5":           {Key: "F5", KeyCode: 116, Code: "F5"},
	"F6":           {Key: "F6", KeyCode: 117, Code: "F6"},
	"F7":           {Key: "F7", KeyCode: 118, Code: "F7"},
	"F8":           {Key: "F8", KeyCode: 119, Code: "F8"},
	"F9":           {Key: "F9", KeyCode: 120, Code: "F9"},
	"F10":          {Key: "F10", KeyCode: 121, Code: "F10"},
	"F11":          {Key: "F11", KeyCode: 122, Code: "F11"},
	"F12":          {Key: "F12", KeyCode: 123, Code: "F12"},
	"Digit0":       {Key: "0", KeyCode: 48, Code: "Digit0", ShiftKey: ")"},
	"Digit1":       {Key: "1", KeyCode: 49, Code: "Digit1", ShiftKey: "!"},
	"Digit2":       {Key: "2", KeyCode: 50, Code: "Digit2", ShiftKey: "@"},
	"Digit3":       {Key: "3", KeyCode: 51, Code: "Digit3", ShiftKey: "#"},
	"Digit4":       {Key: "4", KeyCode: 52, Code: "Digit4", ShiftKey: "$"},
	"Digit5":       {Key: "5", KeyCode: 53, Code: "Digit5", ShiftKey: "%"},
	"Digit6":       {Key: "6", KeyCode: 54, Code: "Digit6", ShiftKey: "^"},
	"Digit7":       {Key: "7", KeyCode: 55, Code: "Digit7", ShiftKey: "&"},
	"Digit8":       {Key: "8", KeyCode: 56, Code: "Digit8", ShiftKey: "*"},
	"Digit9":       {Key: "9", KeyCode: 57, Code: "Digit9", ShiftKey: "("},
	"KeyA":         {Key: "a", KeyCode: 65, Code: "KeyA", ShiftKey: "A"},
	"KeyB":         {Key: "b", KeyCode: 66, Code: "KeyB", ShiftKey: "B"},
	"KeyC":         {Key: "c", KeyCode: 67, Code: "KeyC", ShiftKey: "C"},
	"KeyD":         {Key: "d", KeyCode: 68, Code: "KeyD", ShiftKey: "D"},
	"KeyE":         {Key: "e", KeyCode: 69, Code: "KeyE", ShiftKey: "E"},
	"KeyF":         {Key: "f", KeyCode: 70, Code: "KeyF", ShiftKey: "F"},
	"KeyG":         {Key: "g", KeyCode: 71, Code: "KeyG", ShiftKey: "G"},
	"KeyH":         {Key: "h", KeyCode: 72, Code: "KeyH", ShiftKey: "H"},
	"KeyI":         {Key: "i", KeyCode: 73, Code: "KeyI", ShiftKey: "I"},
	"KeyJ":         {Key: "j", KeyCode: 74, Code: "KeyJ", ShiftKey: "J"},
	"KeyK":         {Key: "k", KeyCode: 75, Code: "KeyK", ShiftKey: "K"},
	"KeyL":         {Key: "l", KeyCode: 76, Code: "KeyL", ShiftKey: "L"},
	"KeyM":         {Key: "m", KeyCode: 77, Code: "KeyM", ShiftKey: "M"},
	"KeyN":         {Key: "n", KeyCode: 78, Code: "KeyN", ShiftKey: "N"},
	"KeyO":         {Key: "o", KeyCode: 79, Code: "KeyO", ShiftKey: "O"},
	"KeyP":         {Key: "p", KeyCode: 80, Code: "KeyP", ShiftKey: "P"},
	"KeyQ":         {Key: "q", KeyCode: 81, Code: "KeyQ", ShiftKey: "Q"},
	"KeyR":         {Key: "r", KeyCode: 82, Code: "KeyR", ShiftKey: "R"},
	"KeyS":         {Key: "s", KeyCode: 83, Code: "KeyS", ShiftKey: "S"},
	"KeyT":         {Key: "t", KeyCode: 84, Code: "KeyT", ShiftKey: "T"},
	"KeyU":         {Key: "u", KeyCode: 85, Code: "KeyU", ShiftKey: "U"},
	"KeyV":         {Key: "v", KeyCode: 86, Code: "KeyV", ShiftKey: "V"},
	"KeyW":         {Key: "w", KeyCode: 87, Code: "KeyW", ShiftKey: "W"},
	"KeyX":         {Key: "x", KeyCode: 88, Code: "KeyX", ShiftKey: "X"},
	"KeyY":         {Key: "y", KeyCode: 89, Code: "KeyY", ShiftKey: "Y"},
	"KeyZ":         {Key: "z", KeyCode: 90, Code: "KeyZ", ShiftKey: "Z"},
	"Semicolon":    {Key: ";", KeyCode: 186, Code: "Semicolon", ShiftKey: ":"},
	"Equal":        {Key: "=", KeyCode: 187, Code: "Equal", ShiftKey: "+"},
	"Comma":        {Key: ",", KeyCode: 188, Code: "Comma", ShiftKey: "<"},
	"Minus":        {Key: "-", KeyCode: 189, Code: "Minus", ShiftKey: "_"},
	"Period":       {Key: ".", KeyCode: 190, Code: "Period", ShiftKey: ">"},
	"Slash":        {Key: "/", KeyCode: 191, Code: "Slash", ShiftKey: "?"},
	"Backquote":    {Key: "`", KeyCode: 192, Code: "Backquote", ShiftKey: "~"},
	"BracketLeft":  {Key: "[", KeyCode: 219, Code: "BracketLeft", ShiftKey: "{"},
	"Backslash":    {Key: "\\", KeyCode: 220, Code: "Backslash", ShiftKey: "|"},
	"BracketRight": {Key: "]", KeyCode: 221, Code: "BracketRight", ShiftKey: "}"},
	"Quote":        {Key: "'", KeyCode: 222, Code: "Quote", ShiftKey: `"`},
}
