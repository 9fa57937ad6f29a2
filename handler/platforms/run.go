// Package platforms delivers events from a runtime to a handler.Handler:
// the AWS Lambda runtime, or an HTTP server for local runs.
package platforms

import (
	"context"

	"powertools/handler"
)

// Run serves h on the platform its configuration names. On Lambda it
// hands control to the runtime and does not return; over HTTP it serves
// HTTP_ADDR until ctx is done.
func Run(ctx context.Context, h *handler.Handler) error {
	cfg := h.Config()
	if cfg.Platform == handler.PlatformLambda {
		NewLambdaAdapter(h, nil).Start()
		return nil
	}
	return NewHTTPAdapter(h).Serve(ctx, cfg.Addr)
}
