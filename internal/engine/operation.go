package engine

import "context"

type operationKey struct{}

// WithOperation labels ctx with the logical operation (classify, compose,
// translate, import) a Chat call belongs to. Instrumented engines read it.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// Operation returns the label set by WithOperation, or "unknown".
func Operation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
