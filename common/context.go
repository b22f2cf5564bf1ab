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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/xk6-headless/trace"
)

type ctxKey int

const (
	ctxKeyTracer ctxKey = iota
	ctxKeyRegisterer
)

// WithTracer adds the tracer used by the pages created with ctx.
func WithTracer(ctx context.Context, tracer *trace.Tracer) context.Context {
	return context.WithValue(ctx, ctxKeyTracer, tracer)
}

// GetTracer returns the tracer attached to ctx, or a noop tracer.
func GetTracer(ctx context.Context) *trace.Tracer {
	if t, ok := ctx.Value(ctxKeyTracer).(*trace.Tracer); ok && t != nil {
		return t
	}
	return trace.NewNoopTracer()
}

// WithRegisterer adds the Prometheus registerer the page metrics are
// registered on.
func WithRegisterer(ctx context.Context, reg prometheus.Registerer) context.Context {
	return context.WithValue(ctx, ctxKeyRegisterer, reg)
}

// GetRegisterer returns the registerer attached to ctx, or nil.
func GetRegisterer(ctx context.Context) prometheus.Registerer {
	reg, _ := ctx.Value(ctxKeyRegisterer).(prometheus.Registerer)
	return reg
}
