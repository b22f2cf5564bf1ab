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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "xk6_headless"

// pageMetrics are the Prometheus collectors shared by the pages registered
// on the same registry.
type pageMetrics struct {
	commands   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	evicted    *prometheus.CounterVec
}

func newPageMetrics(reg prometheus.Registerer) *pageMetrics {
	m := &pageMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Page commands executed, by command and outcome.",
		}, []string{"command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Time from enqueueing a page command to its response.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"command"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queued_commands",
			Help:      "Page commands waiting for a worker.",
		}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "buffer_evictions_total",
			Help:      "Entries dropped from full console and network buffers.",
		}, []string{"buffer"}),
	}
	if reg == nil {
		return m
	}

	m.commands = register(reg, m.commands)
	m.duration = register(reg, m.duration)
	m.queueDepth = register(reg, m.queueDepth)
	m.evicted = register(reg, m.evicted)

	return m
}

// register registers c, or returns the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

// outcome labels an error by its kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
