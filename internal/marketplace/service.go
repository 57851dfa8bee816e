package marketplace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	"github.com/trigg3rX/labelmarket-backend/pkg/blobstore"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

var ErrMissingDependency = errors.New("missing service dependency")

// Deps are the collaborators of a Service. Wallet and Blobs may be nil for a read-only
// service; mutations then fail with ErrReadOnly.
type Deps struct {
	Resolver *registry.Resolver
	Cache    *cache.Layer
	Builder  *txbuilder.Builder
	Wallet   wallet.Wallet
	Blobs    blobstore.Store
	Logger   logging.Logger
}

var ErrReadOnly = errors.New("service has no wallet configured")

// Service is the marketplace as the dashboard sees it: cached reads over the registry,
// and mutations that build, sign and execute a transaction and then invalidate the
// affected cache keys.
type Service struct {
	resolver  *registry.Resolver
	cache     *cache.Layer
	builder   *txbuilder.Builder
	wallet    wallet.Wallet
	blobs     blobstore.Store
	consensus *consensus.Orchestrator
	logger    logging.Logger
	now       func() time.Time

	mu     sync.Mutex
	rounds map[string]*consensus.Round
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: resolver", ErrMissingDependency)
	case deps.Cache == nil:
		return nil, fmt.Errorf("%w: cache", ErrMissingDependency)
	case deps.Builder == nil:
		return nil, fmt.Errorf("%w: transaction builder", ErrMissingDependency)
	case deps.Logger == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	}

	s := &Service{
		resolver: deps.Resolver,
		cache:    deps.Cache,
		builder:  deps.Builder,
		wallet:   deps.Wallet,
		blobs:    deps.Blobs,
		logger:   deps.Logger,
		now:      time.Now,
		rounds:   make(map[string]*consensus.Round),
	}
	if deps.Wallet != nil {
		s.consensus = consensus.NewOrchestrator(deps.Builder, deps.Wallet, deps.Cache, deps.Resolver, deps.Logger)
	}
	return s, nil
}

// Address is the connected wallet address, empty for a read-only service.
func (s *Service) Address() string {
	if s.wallet == nil {
		return ""
	}
	return s.wallet.Address()
}
