package gateway

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
)

// New builds the configured gateway. sq may be nil unless the square
// provider is selected.
func New(cfg config.GatewayConfig, sq squarePayments) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderSandbox:
		return NewSandboxGateway(), nil
	case ProviderHTTP:
		return NewHTTPGateway(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	case ProviderSquare:
		if sq == nil {
			return nil, fmt.Errorf("square client required for gateway provider %q", cfg.Provider)
		}
		return NewSquareGateway(sq)
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
