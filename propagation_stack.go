package autotrace

import (
	opentracing "github.com/opentracing/opentracing-go"
)

// PropagatorStack injects with every propagator it holds and extracts with
// the first one that finds a context.
type PropagatorStack struct {
	propagators []Propagator
}

func (stack *PropagatorStack) PushPropagator(p Propagator) {
	stack.propagators = append(stack.propagators, p)
}

func (stack PropagatorStack) Len() int {
	return len(stack.propagators)
}

func (stack PropagatorStack) Inject(
	spanContext opentracing.SpanContext,
	opaqueCarrier interface{},
) error {
	if len(stack.propagators) == 0 {
		return ErrNoPropagators
	}
	for _, p := range stack.propagators {
		if err := p.Inject(spanContext, opaqueCarrier); err != nil {
			return err
		}
	}
	return nil
}

func (stack PropagatorStack) Extract(
	opaqueCarrier interface{},
) (opentracing.SpanContext, error) {
	if len(stack.propagators) == 0 {
		return nil, ErrNoPropagators
	}

	var lastErr error = opentracing.ErrSpanContextNotFound
	for _, p := range stack.propagators {
		sc, err := p.Extract(opaqueCarrier)
		if err == nil {
			return sc, nil
		}
		// a corrupted context from one format should not hide a valid one in another
		if err != opentracing.ErrSpanContextNotFound {
			lastErr = err
		}
	}
	return nil, lastErr
}
