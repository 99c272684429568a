package appstore

import (
	"context"
	"testing"
	"time"

	"github.com/appsight/core/internal/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name        string
	searchCalls int
	listings    []Listing
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(context.Context, string) ([]Listing, error) {
	f.searchCalls++
	return f.listings, nil
}

func (f *fakeProvider) Details(context.Context, string) (*Details, error) {
	return &Details{Listing: Listing{AppID: "app-1"}}, nil
}

func (f *fakeProvider) Reviews(context.Context, string, int) ([]Review, error) {
	return []Review{{ID: "r1"}}, nil
}

func TestSearchCachesRepeatQueries(t *testing.T) {
	provider := &fakeProvider{
		name:     "google-play",
		listings: []Listing{{AppID: "com.example", Title: "Example"}},
	}
	svc := NewService([]Provider{provider}, 30*time.Minute, zap.NewNop())

	first, err := svc.Search(context.Background(), "google-play", "weather")
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "google-play", "weather")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.searchCalls, "repeat within TTL must not go upstream")
}

func TestSearchDistinctQueriesGoUpstream(t *testing.T) {
	provider := &fakeProvider{name: "google-play"}
	svc := NewService([]Provider{provider}, 30*time.Minute, zap.NewNop())

	_, err := svc.Search(context.Background(), "google-play", "weather")
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "google-play", "weather radar")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.searchCalls)
}

func TestSearchCachesPerProvider(t *testing.T) {
	play := &fakeProvider{name: "google-play"}
	apple := &fakeProvider{name: "app-store"}
	svc := NewService([]Provider{play, apple}, 30*time.Minute, zap.NewNop())

	_, err := svc.Search(context.Background(), "google-play", "weather")
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "app-store", "weather")
	require.NoError(t, err)

	assert.Equal(t, 1, play.searchCalls)
	assert.Equal(t, 1, apple.searchCalls)
}

func TestSearchUnknownProvider(t *testing.T) {
	svc := NewService(nil, 30*time.Minute, zap.NewNop())
	_, err := svc.Search(context.Background(), "nope", "weather")
	assert.ErrorIs(t, err, fault.ErrInvalidInput)
}

func TestDetailsNotCached(t *testing.T) {
	provider := &fakeProvider{name: "google-play"}
	svc := NewService([]Provider{provider}, 30*time.Minute, zap.NewNop())

	details, err := svc.Details(context.Background(), "google-play", "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", details.AppID)
}
