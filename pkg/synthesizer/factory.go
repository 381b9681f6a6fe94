package synthesizer

import (
	"fmt"
	"sync"
)

// Config is the per-provider configuration contract.
type Config interface {
	GetProvider() TTSProvider
}

// Creator builds a SynthesisService from its provider config.
type Creator func(Config) (SynthesisService, error)

// Factory maps providers to creators so applications can register their own
// engines next to the built-in ones.
type Factory struct {
	mu       sync.RWMutex
	creators map[TTSProvider]Creator
}

func NewFactory() *Factory {
	f := &Factory{creators: make(map[TTSProvider]Creator)}
	f.registerDefaultCreators()
	return f
}

// Register adds or replaces the creator for a provider.
func (f *Factory) Register(provider TTSProvider, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[provider] = creator
}

// Create builds a SynthesisService from config.
func (f *Factory) Create(config Config) (SynthesisService, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	provider := config.GetProvider()
	f.mu.RLock()
	creator, exists := f.creators[provider]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("synthesizer provider %s not supported", provider)
	}
	return creator(config)
}

// SupportedProviders lists every registered provider.
func (f *Factory) SupportedProviders() []TTSProvider {
	f.mu.RLock()
	defer f.mu.RUnlock()

	providers := make([]TTSProvider, 0, len(f.creators))
	for provider := range f.creators {
		providers = append(providers, provider)
	}
	return providers
}

// IsSupported reports whether a provider is registered.
func (f *Factory) IsSupported(provider TTSProvider) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[provider]
	return exists
}

func (f *Factory) registerDefaultCreators() {
	f.Register(ProviderLocal, func(config Config) (SynthesisService, error) {
		localConfig, ok := config.(*LocalConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for local")
		}
		return NewLocalService(localConfig)
	})
	f.Register(ProviderRemote, func(config Config) (SynthesisService, error) {
		remoteConfig, ok := config.(*RemoteConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for remote")
		}
		return NewRemoteService(remoteConfig)
	})
}

var (
	globalFactory *Factory
	factoryOnce   sync.Once
)

// GetGlobalFactory returns the shared factory instance.
func GetGlobalFactory() *Factory {
	factoryOnce.Do(func() {
		globalFactory = NewFactory()
	})
	return globalFactory
}
