// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines the instruments recorded by the provisioning engine.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter hands out the provisioning instruments
type Meter struct {
	meter metric.Meter
}

// New creates a meter bound to the globally registered provider. When
// disabled the instruments record nothing.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(serviceName)}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// Provisioning holds the instruments recorded by the invitation engine
type Provisioning struct {
	transitions metric.Int64Counter
	denied      metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewProvisioning creates the invitation engine instruments
func (m *Meter) NewProvisioning() (*Provisioning, error) {
	transitions, err := m.meter.Int64Counter("invitation_transitions_total",
		metric.WithDescription("Committed invitation status changes by target status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}
	denied, err := m.meter.Int64Counter("invitation_denied_total",
		metric.WithDescription("Invitation operations refused by authorization"))
	if err != nil {
		return nil, fmt.Errorf("failed to create denied counter: %w", err)
	}
	duration, err := m.meter.Float64Histogram("invitation_operation_duration",
		metric.WithDescription("Invitation engine operation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return &Provisioning{transitions: transitions, denied: denied, duration: duration}, nil
}

// NopProvisioning returns instruments that discard every measurement.
func NopProvisioning() *Provisioning {
	return &Provisioning{
		transitions: noop.Int64Counter{},
		denied:      noop.Int64Counter{},
		duration:    noop.Float64Histogram{},
	}
}

// Transition counts one committed move into status to.
func (p *Provisioning) Transition(ctx context.Context, to string) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

// Denied counts one authorization refusal of op.
func (p *Provisioning) Denied(ctx context.Context, op string) {
	p.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Observe records how long op took.
func (p *Provisioning) Observe(ctx context.Context, op string, elapsed time.Duration) {
	p.duration.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(attribute.String("op", op)))
}
