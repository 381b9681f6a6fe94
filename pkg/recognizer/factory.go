package recognizer

import (
	"fmt"
	"sync"
)

// Vendor identifies a recognition engine implementation.
type Vendor string

const (
	// VendorLocal is the built-in offline engine, used in dev mode and when
	// no cloud vendor is configured.
	VendorLocal Vendor = "local"
)

// Config is the per-vendor configuration contract.
type Config interface {
	GetVendor() Vendor
}

// Creator builds a StreamingService from its vendor config.
type Creator func(Config) (StreamingService, error)

// Factory maps vendors to creators so applications can register their own
// engines next to the built-in ones.
type Factory struct {
	mu       sync.RWMutex
	creators map[Vendor]Creator
}

func NewFactory() *Factory {
	f := &Factory{creators: make(map[Vendor]Creator)}
	f.registerDefaultCreators()
	return f
}

// Register adds or replaces the creator for a vendor.
func (f *Factory) Register(vendor Vendor, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[vendor] = creator
}

// Create builds a StreamingService from config.
func (f *Factory) Create(config Config) (StreamingService, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	vendor := config.GetVendor()
	f.mu.RLock()
	creator, exists := f.creators[vendor]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("recognizer vendor %s not supported", vendor)
	}
	return creator(config)
}

// SupportedVendors lists every registered vendor.
func (f *Factory) SupportedVendors() []Vendor {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vendors := make([]Vendor, 0, len(f.creators))
	for vendor := range f.creators {
		vendors = append(vendors, vendor)
	}
	return vendors
}

// IsSupported reports whether a vendor is registered.
func (f *Factory) IsSupported(vendor Vendor) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[vendor]
	return exists
}

func (f *Factory) registerDefaultCreators() {
	f.Register(VendorLocal, func(config Config) (StreamingService, error) {
		localConfig, ok := config.(*LocalConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for local")
		}
		return NewLocalService(localConfig)
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
