package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFinishRecordsError(t *testing.T) {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(prev)

	span, ctx := Start(context.Background(), "broker.SubmitOrder")
	require.NotNil(t, opentracing.SpanFromContext(ctx))
	Finish(span, errors.New("boom"))

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "broker.SubmitOrder", spans[0].OperationName)
	assert.Equal(t, true, spans[0].Tag("error"))
}
