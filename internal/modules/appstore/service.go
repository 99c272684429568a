package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/triecache"
	"go.uber.org/zap"
)

// Provider is the upstream surface the service needs. *Client satisfies
// it; tests substitute fakes.
type Provider interface {
	Name() string
	Search(ctx context.Context, term string) ([]Listing, error)
	Details(ctx context.Context, appID string) (*Details, error)
	Reviews(ctx context.Context, appID string, limit int) ([]Review, error)
}

// Service multiplexes the configured providers and shields the search
// call with one prefix query cache per provider.
type Service struct {
	providers map[string]Provider
	queries   map[string]*triecache.Cache
	queryTTL  time.Duration
	logger    *zap.Logger
}

func NewService(providers []Provider, queryTTL time.Duration, logger *zap.Logger) *Service {
	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		queries:   make(map[string]*triecache.Cache, len(providers)),
		queryTTL:  queryTTL,
		logger:    logger,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
		s.queries[p.Name()] = triecache.New(queryTTL)
	}
	return s
}

// Search returns listings for term from the named provider, serving
// repeats within the TTL window from the prefix cache.
func (s *Service) Search(ctx context.Context, provider, term string) ([]Listing, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", fault.ErrInvalidInput, provider)
	}

	cache := s.queries[provider]
	if payload, hit := cache.Search(term); hit {
		var listings []Listing
		if err := json.Unmarshal(payload, &listings); err == nil {
			return listings, nil
		}
		// unreadable cached payload, fall through to the upstream call
		s.logger.Warn("discarding unreadable cached search payload",
			zap.String("provider", provider), zap.String("term", term))
	}

	listings, err := p.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(listings); err == nil {
		cache.Insert(term, payload)
	}
	return listings, nil
}

// Details always goes upstream; listing pages change too often to cache.
func (s *Service) Details(ctx context.Context, provider, appID string) (*Details, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", fault.ErrInvalidInput, provider)
	}
	return p.Details(ctx, appID)
}

// Reviews always goes upstream.
func (s *Service) Reviews(ctx context.Context, provider, appID string, limit int) ([]Review, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", fault.ErrInvalidInput, provider)
	}
	return p.Reviews(ctx, appID, limit)
}

// Providers lists the configured provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// QueryCacheSizes reports the live entry count of each provider cache.
func (s *Service) QueryCacheSizes() map[string]int {
	sizes := make(map[string]int, len(s.queries))
	for name, cache := range s.queries {
		sizes[name] = cache.Len()
	}
	return sizes
}

// CleanupQueries runs the trie cleanup pass on every provider cache.
// Registered on the cron scheduler.
func (s *Service) CleanupQueries() {
	for name, cache := range s.queries {
		before := cache.Len()
		cache.Cleanup()
		if after := cache.Len(); after < before {
			s.logger.Debug("query cache cleanup",
				zap.String("provider", name), zap.Int("dropped", before-after))
		}
	}
}
