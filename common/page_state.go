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
	"strings"
	"time"

	"github.com/grafana/xk6-headless/api"
)

// navKind tells how the worker expects the next main frame commit to be
// recorded in the history.
type navKind int

const (
	// navNone is a navigation the page started on its own, e.g. a link.
	navNone navKind = iota
	navNew
	navHistory
	navReload
)

// pageState is owned by the worker goroutine. Nothing else reads or writes
// it, so it needs no locking.
type pageState struct {
	active bool
	url    string
	title  string

	history    []string
	cursor     int
	historyCap int

	blocked []string

	console *ring[api.ConsoleMessage]
	network *ring[api.NetworkRequest]

	nav          navKind
	navCommitted bool
	loadComplete bool
	loadErr      error

	// pageNavs counts the loads the page started on its own. Those up to
	// navsWaited were already reported by a navigation wait or superseded
	// by a navigation command.
	pageNavs   uint64
	navsWaited uint64

	frames      uint64
	requests    uint64
	lastRequest time.Time
}

func newPageState(opts *PageOptions) *pageState {
	return &pageState{
		historyCap: opts.HistoryCapacity,
		console:    newRing[api.ConsoleMessage](opts.ConsoleCapacity),
		network:    newRing[api.NetworkRequest](opts.NetworkCapacity),
		cursor:     -1,
	}
}

// beginLoad arms the load flags before a navigation is requested.
func (s *pageState) beginLoad(kind navKind) {
	s.navsWaited = s.pageNavs
	s.nav = kind
	s.navCommitted = false
	s.loadComplete = false
	s.loadErr = nil
}

func (s *pageState) endLoad() {
	s.nav = navNone
}

// commit records the URL the main frame navigated to.
func (s *pageState) commit(url string) {
	s.url = url
	switch {
	case s.nav == navNew && !s.navCommitted, s.nav == navNone:
		s.push(url)
	default:
		// a redirect of the pending navigation, a reload or a history move
		if s.cursor >= 0 {
			s.history[s.cursor] = url
		} else {
			s.push(url)
		}
	}
	s.navCommitted = true
}

// push drops the forward entries and appends url, evicting the oldest entry
// beyond the history capacity.
func (s *pageState) push(url string) {
	s.history = append(s.history[:s.cursor+1], url)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	s.cursor = len(s.history) - 1
}

func (s *pageState) canGoBack() bool    { return s.cursor > 0 }
func (s *pageState) canGoForward() bool { return s.cursor >= 0 && s.cursor < len(s.history)-1 }

// isBlocked reports whether url contains one of the blocked patterns.
func (s *pageState) isBlocked(url string) bool {
	for _, p := range s.blocked {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

func (s *pageState) setBlocked(patterns []string) {
	s.blocked = nil
	for _, p := range patterns {
		if p != "" {
			s.blocked = append(s.blocked, p)
		}
	}
}

// reset returns to the state of a page without a session.
func (s *pageState) reset() {
	s.active = false
	s.url, s.title = "", ""
	s.history, s.cursor = nil, -1
	s.blocked = nil
	s.console.clear()
	s.network.clear()
	s.nav, s.navCommitted = navNone, false
	s.pageNavs, s.navsWaited = 0, 0
	s.loadComplete, s.loadErr = false, nil
	s.requests, s.lastRequest = 0, time.Time{}
}
