package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func sample(s sdktrace.Sampler, parent context.Context) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Name:          "bid",
	}).Decision
}

func TestNewSampler(t *testing.T) {
	root := context.Background()
	assert.Equal(t, sdktrace.RecordAndSample, sample(newSampler(1), root))
	assert.Equal(t, sdktrace.RecordAndSample, sample(newSampler(2), root))
	assert.Equal(t, sdktrace.Drop, sample(newSampler(0), root))
	assert.Equal(t, sdktrace.Drop, sample(newSampler(-1), root))
}

func TestNewSamplerFollowsParent(t *testing.T) {
	sampled := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	assert.Equal(t, sdktrace.RecordAndSample, sample(newSampler(0), sampled))

	unsampled := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{1},
		Remote:  true,
	}))
	assert.Equal(t, sdktrace.Drop, sample(newSampler(1), unsampled))
}
