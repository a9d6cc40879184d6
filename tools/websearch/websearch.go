package websearch

import (
	"fmt"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
	"github.com/leafwise/leafwise/tools/websearch/serper"
	"github.com/leafwise/leafwise/tools/websearch/tavily"
)

// Provider names a supported web search backend.
type Provider string

const (
	TavilyProvider Provider = "tavily"
	SerperProvider Provider = "serper"
)

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = fmt.Errorf("unsupported web search provider")

// New builds the configured capability.WebSearcher backend.
func New(cfg config.WebSearchConfig) (capability.WebSearcher, error) {
	switch Provider(cfg.Provider) {
	case TavilyProvider:
		return tavily.New(cfg.TavilyAPIKey, cfg.Timeout), nil
	case SerperProvider:
		return serper.New(cfg.SerperAPIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
