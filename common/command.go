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
	"encoding/json"
	"sync"
	"time"

	"github.com/grafana/xk6-headless/api"
)

// commandParams is one of the command structs below. The worker switches on
// the concrete type.
type commandParams interface {
	name() string
}

type (
	openCmd               struct{ url string }
	evaluateCmd           struct{ script string }
	screenshotCmd         struct{ fullPage bool }
	htmlCmd               struct{}
	urlCmd                struct{}
	titleCmd              struct{}
	consoleLogCmd         struct{}
	networkLogCmd         struct{}
	waitForSelectorCmd    struct {
		selector string
		timeout  time.Duration
	}
	waitForConditionCmd struct {
		script  string
		timeout time.Duration
	}
	waitCmd              struct{ d time.Duration }
	waitForNavigationCmd struct{ timeout time.Duration }
	waitForNetworkIdleCmd struct {
		idle    time.Duration
		timeout time.Duration
	}
	clickAtCmd          struct{ x, y float64 }
	clickSelectorCmd    struct{ selector string }
	typeTextCmd         struct{ text string }
	keyPressCmd         struct{ key string }
	mouseMoveCmd        struct{ x, y float64 }
	scrollByCmd         struct{ dx, dy float64 }
	scrollToSelectorCmd struct{ selector string }
	selectOptionCmd     struct{ selector, value string }
	setInputFilesCmd    struct {
		selector string
		files    []api.InputFile
	}
	cookiesCmd         struct{}
	setCookieCmd       struct{ cookie string }
	clearCookiesCmd    struct{}
	blockURLsCmd       struct{ patterns []string }
	reloadCmd          struct{}
	goBackCmd          struct{}
	goForwardCmd       struct{}
	elementRectCmd     struct{ selector string }
	elementTextCmd     struct{ selector string }
	elementAttrCmd     struct{ selector, attr string }
	elementHTMLCmd     struct{ selector string }
	resetCmd           struct{}
	shutdownCmd        struct{}
)

func (openCmd) name() string { return "open" }
func (evaluateCmd) name() string { return "evaluate" }
func (c screenshotCmd) name() string {
	if c.fullPage {
		return "screenshotFullPage"
	}
	return "screenshot"
}
func (htmlCmd) name() string               { return "html" }
func (urlCmd) name() string                { return "url" }
func (titleCmd) name() string              { return "title" }
func (consoleLogCmd) name() string         { return "consoleMessages" }
func (networkLogCmd) name() string         { return "networkRequests" }
func (waitForSelectorCmd) name() string    { return "waitForSelector" }
func (waitForConditionCmd) name() string   { return "waitForCondition" }
func (waitCmd) name() string               { return "wait" }
func (waitForNavigationCmd) name() string  { return "waitForNavigation" }
func (waitForNetworkIdleCmd) name() string { return "waitForNetworkIdle" }
func (clickAtCmd) name() string            { return "click" }
func (clickSelectorCmd) name() string      { return "clickSelector" }
func (typeTextCmd) name() string           { return "typeText" }
func (keyPressCmd) name() string           { return "keyPress" }
func (mouseMoveCmd) name() string          { return "mouseMove" }
func (scrollByCmd) name() string           { return "scroll" }
func (scrollToSelectorCmd) name() string   { return "scrollToSelector" }
func (selectOptionCmd) name() string       { return "selectOption" }
func (setInputFilesCmd) name() string      { return "setInputFiles" }
func (cookiesCmd) name() string            { return "cookies" }
func (setCookieCmd) name() string          { return "setCookie" }
func (clearCookiesCmd) name() string       { return "clearCookies" }
func (blockURLsCmd) name() string          { return "blockURLs" }
func (reloadCmd) name() string             { return "reload" }
func (goBackCmd) name() string             { return "goBack" }
func (goForwardCmd) name() string          { return "goForward" }
func (elementRectCmd) name() string        { return "elementRect" }
func (elementTextCmd) name() string        { return "elementText" }
func (elementAttrCmd) name() string        { return "elementAttribute" }
func (elementHTMLCmd) name() string        { return "elementHTML" }
func (resetCmd) name() string              { return "reset" }
func (shutdownCmd) name() string           { return "shutdown" }

// needsSession reports whether params can only run against an open page.
func needsSession(params commandParams) bool {
	switch params.(type) {
	case openCmd, resetCmd, shutdownCmd, consoleLogCmd, networkLogCmd, blockURLsCmd:
		return false
	}
	return true
}

// payload is the success value of a response. Each command has exactly one
// payload type.
type payload interface {
	isPayload()
}

type (
	noPayload      struct{}
	bytesPayload   []byte
	textPayload    string
	jsonPayload    json.RawMessage
	boolPayload    bool
	rectPayload    api.ElementRect
	consolePayload []api.ConsoleMessage
	networkPayload []api.NetworkRequest
	attrPayload    struct {
		value string
		ok    bool
	}
)

func (noPayload) isPayload()      {}
func (bytesPayload) isPayload()   {}
func (textPayload) isPayload()    {}
func (jsonPayload) isPayload()    {}
func (boolPayload) isPayload()    {}
func (rectPayload) isPayload()    {}
func (consolePayload) isPayload() {}
func (networkPayload) isPayload() {}
func (attrPayload) isPayload()    {}

// response is either a payload or an error.
type response struct {
	payload payload
	err     error
}

// responseSlot is a one-shot response destination. Only the first fulfil
// call delivers.
type responseSlot struct {
	ch   chan response
	once sync.Once
}

func newResponseSlot() *responseSlot {
	return &responseSlot{ch: make(chan response, 1)}
}

func (s *responseSlot) fulfil(r response) (delivered bool) {
	s.once.Do(func() {
		s.ch <- r
		delivered = true
	})
	return delivered
}

// command is a request queued for the worker. It is not modified once
// queued.
type command struct {
	params   commandParams
	slot     *responseSlot
	enqueued time.Time
}

func newCommand(params commandParams) *command {
	return &command{
		params: params,
		slot:   newResponseSlot(),
	}
}
