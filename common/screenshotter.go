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
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/grafana/xk6-headless/common/js"
)

// maxCaptureHeight bounds the height of full page captures.
const maxCaptureHeight = 16384

// Size is the size of a document in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// screenshotter captures the viewport or the whole document of a worker's
// engine.
type screenshotter struct {
	w *worker
}

// fullPageSize returns the size of the document, or nil when the page has
// no document element yet.
func (s *screenshotter) fullPageSize(ctx context.Context, op string) (*Size, error) {
	v, err := s.w.call(ctx, op, js.PageSizeScript)
	if err != nil {
		return nil, err
	}
	var size *Size
	if err := json.Unmarshal(v, &size); err != nil {
		return nil, newError(ErrorKindScreenshot, op, err, "unexpected page size %s", v)
	}
	return size, nil
}

// captureHeight is the viewport height a full page capture of a document of
// the given size needs.
func (s *screenshotter) captureHeight(size *Size) int64 {
	if size == nil {
		return s.w.opts.Height
	}
	h := int64(math.Ceil(size.Height))
	return min(max(h, s.w.opts.Height), maxCaptureHeight)
}

func (s *screenshotter) resize(ctx context.Context, op string, height int64) error {
	cctx, cancel := s.w.callCtx(ctx)
	defer cancel()
	if err := s.w.engine.Resize(cctx, s.w.opts.Width, height); err != nil {
		return s.w.engineError(ErrorKindScreenshot, op, err)
	}
	return nil
}

func (s *screenshotter) capture(ctx context.Context, op string) ([]byte, error) {
	cctx, cancel := s.w.callCtx(ctx)
	defer cancel()
	buf, err := s.w.engine.CaptureScreenshot(cctx)
	if err != nil {
		return nil, s.w.engineError(ErrorKindScreenshot, op, err)
	}
	if len(buf) == 0 {
		return nil, newError(ErrorKindScreenshot, op, nil, "engine returned an empty image")
	}
	return buf, nil
}

// awaitRepaint waits for the frame of a resized viewport. Capturing
// without it would return the image of the old size.
func (s *screenshotter) awaitRepaint(op string) error {
	timeout := max(s.w.opts.InputSettle, s.w.opts.Settle)
	start := s.w.state.frames
	if err := s.w.waitForFrame(timeout); err != nil {
		return err
	}
	if s.w.state.frames == start {
		return newError(ErrorKindScreenshot, op, nil, "page did not repaint within %s of resizing the viewport", timeout)
	}
	return nil
}

// screenshotPage captures the viewport, or the whole document when
// fullPage is set. The viewport is grown to the document height for the
// capture and restored afterwards.
func (s *screenshotter) screenshotPage(ctx context.Context, op string, fullPage bool) (_ []byte, err error) {
	if !fullPage {
		return s.capture(ctx, op)
	}

	size, err := s.fullPageSize(ctx, op)
	if err != nil {
		return nil, err
	}
	height := s.captureHeight(size)
	if height <= s.w.opts.Height {
		return s.capture(ctx, op)
	}

	defer func() {
		if rerr := s.resize(ctx, op, s.w.opts.Height); rerr != nil && err == nil {
			err = fmt.Errorf("restoring viewport: %w", rerr)
		}
	}()
	if err := s.resize(ctx, op, height); err != nil {
		return nil, err
	}
	if err := s.awaitRepaint(op); err != nil {
		return nil, err
	}

	// Lazy content may grow the document once the viewport is taller.
	if size, err = s.fullPageSize(ctx, op); err != nil {
		return nil, err
	}
	if h := s.captureHeight(size); h > height {
		if err := s.resize(ctx, op, h); err != nil {
			return nil, err
		}
		if err := s.awaitRepaint(op); err != nil {
			return nil, err
		}
	}

	return s.capture(ctx, op)
}

func (w *worker) screenshot(ctx context.Context, op string, fullPage bool) ([]byte, error) {
	s := screenshotter{w: w}
	return s.screenshotPage(ctx, op, fullPage)
}
