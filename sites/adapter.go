// Package sites implements one adapter per configured portal. All four
// variants expose the same login/query contract so callers never branch
// on a site id; every quirk lives behind the adapter.
package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/types"
)

var (
	// ErrInvalidCredentials is surfaced when a site rejects the configured
	// login. It is permanent per attempt; retrying cannot help.
	ErrInvalidCredentials = errors.New("sites: invalid credentials")
	// ErrUIChanged means an expected element was absent: the site's markup
	// changed and the adapter needs maintenance. It is never treated as
	// success.
	ErrUIChanged = errors.New("sites: page structure changed")
	// ErrUnknownSite is returned for a site id outside the closed variant
	// set.
	ErrUnknownSite = errors.New("sites: unknown site id")
)

// Adapter drives one portal through login and query. Both methods take
// the session handle explicitly; adapters hold no browser state.
type Adapter interface {
	ID() string
	Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error)
	Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error)
}

// Site ids of the closed variant set.
const (
	SiteSTP   = "stp"   // prevention-list portal, single keyword box
	SiteDSNC  = "dsnc"  // ASP.NET portal with split plate fields
	SiteCENM  = "cenm"  // menu-driven portal with pattern search form
	SiteTCWeb = "tcweb" // portal queried via URL parameters
)

// ForProfile returns the adapter variant for a site profile.
func ForProfile(p config.SiteProfile) (Adapter, error) {
	switch p.ID {
	case SiteSTP:
		return &stpAdapter{profile: p}, nil
	case SiteDSNC:
		return &dsncAdapter{profile: p}, nil
	case SiteCENM:
		return &cenmAdapter{profile: p}, nil
	case SiteTCWeb:
		return &tcwebAdapter{profile: p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSite, p.ID)
}
