package keyboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultLayout is the layout of pages that do not choose one.
const DefaultLayout = "us"

// ErrUnknownLayout is returned for a layout name nothing registered.
var ErrUnknownLayout = errors.New("unknown keyboard layout")

//nolint:gochecknoglobals
var (
	layouts   = make(map[string]Layout)
	layoutsMu sync.RWMutex
)

// LayoutFor returns the keyboard layout registered with name.
func LayoutFor(name string) (Layout, error) {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()

	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w %q: known layouts are %v", ErrUnknownLayout, name, namesLocked())
	}
	return l, nil
}

// Names returns the names of the registered layouts, sorted.
func Names() []string {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register adds a layout. It panics if the name is taken.
func register(lang string, keys map[Key]Definition) {
	layoutsMu.Lock()
	defer layoutsMu.Unlock()

	if _, ok := layouts[lang]; ok {
		panic(fmt.Sprintf("keyboard layout already registered: %s", lang))
	}
	layouts[lang] = newLayout(lang, keys)
}
