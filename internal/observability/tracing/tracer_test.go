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

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestPurpose: Validates that a disabled tracer produces non-recording spans and shuts down cleanly.
// Scope: Unit Test
// Security: N/A
// Expected: Spans are not recorded and Shutdown returns nil.
// Test Case ID: TRC-01
func TestTracer_Disabled(t *testing.T) {
	ctx := context.Background()
	tr, err := New(ctx, Config{ServiceName: "provisioner"})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())

	_, span := StartOperation(ctx, tr.GetTracer(), "CreateInvitation")
	assert.False(t, span.IsRecording())
	EndOperation(span, nil, "")

	assert.NoError(t, tr.Shutdown(ctx))
}

// TestPurpose: Validates the naming and outcome recording of engine operation spans.
// Scope: Unit Test
// Security: Refusals are distinguishable from faults in traces
// Expected: Spans are named invitation.<op>; failures carry the error kind and an error status.
// Test Case ID: TRC-02
func TestTracer_OperationSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, ok := StartOperation(ctx, tracer, "Approve", AttrInvitationID.String("inv-1"))
	EndOperation(ok, nil, "")

	_, failed := StartOperation(ctx, tracer, "Reject")
	EndOperation(failed, errors.New("permission denied"), "permission_denied")

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "invitation.Approve", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), AttrInvitationID.String("inv-1"))
	assert.Contains(t, spans[0].Attributes(), AttrOperation.String("Approve"))

	assert.Equal(t, "invitation.Reject", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "permission_denied", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), AttrErrorKind.String("permission_denied"))
	require.Len(t, spans[1].Events(), 1, "the error is recorded as a span event")
}

// TestPurpose: Validates sampling rate clamping.
// Scope: Unit Test
// Security: N/A
// Expected: Rates outside (0, 1] fall back to full sampling.
// Test Case ID: TRC-03
func TestTracer_Ratio(t *testing.T) {
	assert.Equal(t, 1.0, ratio(0))
	assert.Equal(t, 1.0, ratio(-0.5))
	assert.Equal(t, 1.0, ratio(2))
	assert.Equal(t, 0.25, ratio(0.25))
}
