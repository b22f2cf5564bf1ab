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
	"strconv"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/env"
	"github.com/grafana/xk6-headless/keyboard"
	"github.com/grafana/xk6-headless/log"
)

// Page option defaults.
const (
	DefaultWidth       int64 = 1280
	DefaultHeight      int64 = 720
	DefaultLoadTimeout       = 30 * time.Second
	DefaultSettle            = 2 * time.Second

	// DefaultPollInterval is the pause between two condition checks of a
	// bounded wait.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultPumpInterval is the pause between two engine pumps while the
	// worker is idle or settling.
	DefaultPumpInterval = 5 * time.Millisecond
	// DefaultInputSettle bounds the wait for a frame after an input event.
	DefaultInputSettle = 250 * time.Millisecond

	DefaultConsoleCapacity = 1000
	DefaultNetworkCapacity = 1000
	DefaultHistoryCapacity = 100
)

// PageOptions are the settings of a Page. They cannot change once the page
// is created.
type PageOptions struct {
	Width       int64         `yaml:"width"`
	Height      int64         `yaml:"height"`
	LoadTimeout time.Duration `yaml:"timeout"`
	Settle      time.Duration `yaml:"settle"`
	FullPage    bool          `yaml:"fullPage"`
	UserAgent   null.String   `yaml:"userAgent"`

	KeyboardLayout string `yaml:"keyboardLayout"`

	PollInterval time.Duration `yaml:"pollInterval"`
	PumpInterval time.Duration `yaml:"pumpInterval"`
	InputSettle  time.Duration `yaml:"inputSettle"`

	ConsoleCapacity int `yaml:"consoleCapacity"`
	NetworkCapacity int `yaml:"networkCapacity"`
	HistoryCapacity int `yaml:"historyCapacity"`
}

// NewPageOptions returns the default page options.
func NewPageOptions() *PageOptions {
	return &PageOptions{
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		LoadTimeout:     DefaultLoadTimeout,
		Settle:          DefaultSettle,
		PollInterval:    DefaultPollInterval,
		PumpInterval:    DefaultPumpInterval,
		InputSettle:     DefaultInputSettle,
		ConsoleCapacity: DefaultConsoleCapacity,
		NetworkCapacity: DefaultNetworkCapacity,
		HistoryCapacity: DefaultHistoryCapacity,
		KeyboardLayout:  keyboard.DefaultLayout,
	}
}

// Parse overrides the options with the values found in the environment.
func (o *PageOptions) Parse(lookup env.LookupFunc, logger *log.Logger) error {
	for _, k := range []string{
		env.Width, env.Height, env.LoadTimeout, env.Settle,
		env.FullPage, env.UserAgent, env.PollInterval, env.KeyboardLayout,
	} {
		v, ok := lookup(k)
		if !ok {
			continue
		}
		logger.Debugf("PageOptions:Parse", "%s=%q", k, v)
		var err error
		switch k {
		case env.Width:
			o.Width, err = strconv.ParseInt(v, 10, 64)
		case env.Height:
			o.Height, err = strconv.ParseInt(v, 10, 64)
		case env.LoadTimeout:
			o.LoadTimeout, err = time.ParseDuration(v)
		case env.Settle:
			o.Settle, err = time.ParseDuration(v)
		case env.FullPage:
			o.FullPage, err = strconv.ParseBool(v)
		case env.UserAgent:
			o.UserAgent = null.StringFrom(v)
		case env.PollInterval:
			o.PollInterval, err = time.ParseDuration(v)
		case env.KeyboardLayout:
			o.KeyboardLayout = v
		}
		if err != nil {
			return fmt.Errorf("parsing %s: %w", k, err)
		}
	}

	return o.Validate()
}

// Validate checks that the options are usable.
func (o *PageOptions) Validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("invalid viewport %dx%d: width and height must be positive", o.Width, o.Height)
	case o.LoadTimeout <= 0:
		return fmt.Errorf("invalid timeout %s: must be positive", o.LoadTimeout)
	case o.Settle < 0:
		return fmt.Errorf("invalid settle duration %s: must not be negative", o.Settle)
	case o.PollInterval <= 0 || o.PumpInterval <= 0:
		return fmt.Errorf("invalid poll interval %s or pump interval %s: must be positive", o.PollInterval, o.PumpInterval)
	case o.InputSettle < 0:
		return fmt.Errorf("invalid input settle %s: must not be negative", o.InputSettle)
	case o.ConsoleCapacity <= 0 || o.NetworkCapacity <= 0 || o.HistoryCapacity <= 0:
		return fmt.Errorf("invalid buffer capacities console=%d network=%d history=%d: must be positive",
			o.ConsoleCapacity, o.NetworkCapacity, o.HistoryCapacity)
	}
	if o.KeyboardLayout == "" {
		o.KeyboardLayout = keyboard.DefaultLayout
	}
	if _, err := keyboard.LayoutFor(o.KeyboardLayout); err != nil {
		return err
	}
	return nil
}

func (o *PageOptions) engineOptions() api.EngineOptions {
	return api.EngineOptions{
		Width:     o.Width,
		Height:    o.Height,
		UserAgent: o.UserAgent.String,
	}
}
