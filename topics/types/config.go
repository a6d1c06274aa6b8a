package topicsTypes

import (
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
)

// ProviderConfig interface implemented by every backend
type ProviderConfig interface{}

// MemConfig of topics manager
type MemConfig struct {
	Name string

	// NoResponders enables status 503 replies to requests nobody is subscribed to
	NoResponders bool

	Metrics metrics.Informer
	Log     *zap.SugaredLogger
}

// NewMemConfig with defaults
func NewMemConfig() *MemConfig {
	return &MemConfig{
		Name:         "mem",
		NoResponders: true,
	}
}
