package report

import (
	"fmt"
	neturl "net/url"
	"strings"

	"github.com/appsight/core/internal/pkg/fault"
)

// listingRef locates one app listing at an upstream provider.
type listingRef struct {
	Provider string
	AppID    string
	URL      string
}

// parseListing maps a store URL onto the provider that serves it.
// Unrecognized hosts are rejected before any generation work starts.
func parseListing(raw string) (listingRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return listingRef{}, fmt.Errorf("%w: empty listing url", fault.ErrInvalidInput)
	}

	parsed, err := neturl.Parse(raw)
	if err != nil || parsed.Host == "" {
		return listingRef{}, fmt.Errorf("%w: unparseable listing url %q", fault.ErrInvalidInput, raw)
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.HasSuffix(host, "play.google.com"):
		appID := parsed.Query().Get("id")
		if appID == "" {
			return listingRef{}, fmt.Errorf("%w: google play url without id parameter", fault.ErrInvalidInput)
		}
		return listingRef{Provider: "google-play", AppID: appID, URL: raw}, nil

	case strings.HasSuffix(host, "apps.apple.com") || strings.HasSuffix(host, "itunes.apple.com"):
		appID := lastPathSegment(parsed.Path)
		if appID == "" {
			return listingRef{}, fmt.Errorf("%w: app store url without app id", fault.ErrInvalidInput)
		}
		return listingRef{Provider: "app-store", AppID: strings.TrimPrefix(appID, "id"), URL: raw}, nil

	default:
		return listingRef{}, fmt.Errorf("%w: unsupported store host %q", fault.ErrInvalidInput, host)
	}
}

func lastPathSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
