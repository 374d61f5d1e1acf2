package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
)

const ProviderSandbox = config.GatewayProviderSandbox

// SandboxGateway is an in-memory gateway for local development and tests.
// Payables stay pending until Settle is called.
type SandboxGateway struct {
	mu       sync.Mutex
	payables map[string]*StatusResult
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{payables: map[string]*StatusResult{}}
}

func (g *SandboxGateway) Name() string { return ProviderSandbox }

func (g *SandboxGateway) CreatePayable(_ context.Context, req PayableRequest) (*Payable, error) {
	ref := "sbx_" + uuid.NewString()
	g.mu.Lock()
	g.payables[ref] = &StatusResult{Status: StatusPending, Currency: strings.ToUpper(req.Currency)}
	g.mu.Unlock()
	handle := fmt.Sprintf("upi://pay?pa=%s&am=%d&cu=%s&tr=%s", req.PayeeReference, req.AmountMinor, req.Currency, ref)
	return &Payable{ExternalReference: ref, Handle: handle}, nil
}

func (g *SandboxGateway) LookupStatus(_ context.Context, externalReference string) (*StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.payables[externalReference]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payable not found")
	}
	out := *res
	return &out, nil
}

// Settle moves a sandbox payable to its final state.
func (g *SandboxGateway) Settle(externalReference string, status Status, amountMinor *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.payables[externalReference]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payable not found")
	}
	res.Status = status
	res.AmountMinor = amountMinor
	return nil
}
