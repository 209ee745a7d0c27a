package helper

import "context"

// RequestInfo identifies the transport request an envelope arrived on.
type RequestInfo struct {
	ID       string
	ClientIP string
}

type requestInfoKey struct{}

// WithRequestInfo attaches transport details to ctx so that engine logs and
// audit events can be correlated with access logs.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the details set by WithRequestInfo.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
