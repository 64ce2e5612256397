package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/types"
)

// Menu bar items that reveal the lookup pages: the lookup group first,
// then the per-category submenu (assets or involved parties). Clicking
// them is best effort only; the adapter navigates to the form URL
// directly afterwards because the menu sometimes opens the form in a
// second window.
const (
	cenmMenuLookup  = "#barC_pcctim"
	cenmMenuAssets  = "#barP_pcctim_ts"
	cenmMenuPersons = "#barP_pcctim_ds"
)

// menuPath returns the menu clicks that unlock the form for a kind.
func menuPath(kind types.Kind) []string {
	if kind == types.KindPerson {
		return []string{cenmMenuLookup, cenmMenuPersons}
	}
	return []string{cenmMenuLookup, cenmMenuAssets}
}

// Generic fallbacks for the login form. The portal has shipped several
// revisions of the page where ids changed but the form stayed a plain
// text/password pair.
var cenmFallbackLogin = config.LoginSelectors{
	Username: `input[type="text"]`,
	Password: `input[type="password"]`,
	Submit:   `input[type="submit"], button[type="submit"]`,
}

// cenmAdapter drives the menu-driven portal. Its search form takes
// %-joined patterns and a category dropdown that must be preset for
// plate lookups.
type cenmAdapter struct {
	profile config.SiteProfile
}

func (a *cenmAdapter) ID() string { return a.profile.ID }

func (a *cenmAdapter) Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error) {
	res, err := formLogin(ctx, s, a.profile, a.profile.Login, creds)
	if err == nil || !errors.Is(err, ErrUIChanged) {
		return res, err
	}
	// Configured selectors missed. Retry once against the generic form
	// shape before declaring the page changed.
	fallback := cenmFallbackLogin
	fallback.Marker = a.profile.Login.Marker
	fallback.Failure = a.profile.Login.Failure
	return formLogin(ctx, s, a.profile, fallback, creds)
}

func (a *cenmAdapter) Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error) {
	q, ok := a.profile.Queries[req.Kind]
	if !ok {
		return types.Outcome{}, fmt.Errorf("site %s does not serve %s lookups", a.profile.ID, req.Kind)
	}

	values := map[string]string{}
	switch req.Kind {
	case types.KindPlate:
		values[types.FieldPlateNumber] = platePattern(req.Field(types.FieldPlateNumber))
	case types.KindTitle:
		values[types.FieldCertificateSerial] = percentGroups(req.Field(types.FieldCertificateSerial))
	case types.KindPerson:
		// The citizen id box matches exact values, not patterns.
		values[types.FieldCitizenID] = req.Field(types.FieldCitizenID)
	default:
		return types.Outcome{}, fmt.Errorf("site %s: unsupported lookup kind %q", a.profile.ID, req.Kind)
	}

	// Walk the menu so the server-side session unlocks the form, then go
	// to the form URL directly. Menu misses are not fatal.
	for _, sel := range menuPath(req.Kind) {
		err := s.Run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		if err != nil && errors.Is(err, browser.ErrSessionLost) {
			return types.Outcome{}, err
		}
	}
	return fillAndSubmit(ctx, s, q, values)
}
