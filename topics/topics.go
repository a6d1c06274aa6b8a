// Package topics deals with NATS subjects and subscriptions.
//   - Subject is a . separated string of tokens
//   - * is a single token wildcard. It must be the only character in the
//     token and matches any name at that level
//   - > is a full wildcard. It must be the last token and matches
//     one or more trailing tokens
package topics

import (
	"github.com/VolantMQ/vlnats/topics/mem"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
)

// New topic provider
func New(config topicsTypes.ProviderConfig) (topicsTypes.Provider, error) {
	if config == nil {
		return nil, topicsTypes.ErrInvalidArgs
	}

	switch cfg := config.(type) {
	case *topicsTypes.MemConfig:
		return mem.NewMemProvider(cfg)
	default:
		return nil, topicsTypes.ErrUnknownProvider
	}
}
