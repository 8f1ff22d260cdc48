package whatsapp

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/service"
)

// Runner executes one handler for one element of a delivery.
type Runner interface {
	Run(ctx context.Context, name string, h service.HandlerFunc, req *service.Request) service.Result
}

// GatewayClient is the slice of a gateway's HTTP API used to enrich
// identities and to read the session state at startup.
type GatewayClient interface {
	service.ProviderLookup
	// SessionStatus returns the gateway's raw session or instance state.
	SessionStatus(ctx context.Context) (string, error)
}
