package negotiate

import (
	"context"

	"github.com/mordonez-me/capibara/internal/resolve"
)

type resultKey struct{}

// WithResult attaches r to ctx.
func WithResult(ctx context.Context, r *resolve.Result) context.Context {
	return context.WithValue(ctx, resultKey{}, r)
}

// FromContext returns the result attached to ctx, or nil. A nil result is
// safe to query and behaves as baseline.
func FromContext(ctx context.Context) *resolve.Result {
	r, _ := ctx.Value(resultKey{}).(*resolve.Result)
	return r
}

// HasCapability reports whether the result attached to ctx holds name.
// False when nothing is attached.
func HasCapability(ctx context.Context, name string) bool {
	return FromContext(ctx).HasCapability(name)
}
