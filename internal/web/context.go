package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/markview/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for activity logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// clientIP returns the client address without its port. RemoteAddr has
// already been rewritten by TrustedRealIP for trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
