package service

import (
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
)

// Services bundles every engine service for wiring and the router.
type Services struct {
	ProviderConfig *ProviderConfigService
	Secret         *SecretService
	Binding        *BindingService
	Rebuild        *RebuildService
	Transition     *TransitionService
	Runtime        *RuntimeService
}

// NewServices wires the engine services around the shared repositories and
// the provider delegate dispatcher.
func NewServices(
	repos *repo.Repositories,
	local *delegate.LocalDelegate,
	dispatcher delegate.Delegate,
	enqueuer TransitionEnqueuer,
) *Services {
	providerConfigService := NewProviderConfigService(repos.ProviderConfig, repos.EncryptedRecord, repos.Transition, local, dispatcher)
	secretService := NewSecretService(repos.EncryptedRecord, repos.ChangeLog, repos.UsageLog, providerConfigService, dispatcher)
	bindingService := NewBindingService(repos.EncryptedRecord)
	rebuildService := NewRebuildService(repos.EncryptedRecord, bindingService)
	transitionService := NewTransitionService(repos.Transition, repos.EncryptedRecord, providerConfigService, dispatcher, enqueuer)
	runtimeService := NewRuntimeService(repos.EncryptedRecord, repos.UsageLog, providerConfigService, dispatcher)

	return &Services{
		ProviderConfig: providerConfigService,
		Secret:         secretService,
		Binding:        bindingService,
		Rebuild:        rebuildService,
		Transition:     transitionService,
		Runtime:        runtimeService,
	}
}
