package sites

import (
	"context"
	"fmt"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/types"
)

// stpAdapter drives the prevention-list portal. Both lookup kinds share
// a single keyword box; the plate or serial goes in as a %-joined group
// pattern so the search matches stored values regardless of separators.
type stpAdapter struct {
	profile config.SiteProfile
}

func (a *stpAdapter) ID() string { return a.profile.ID }

func (a *stpAdapter) Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error) {
	return formLogin(ctx, s, a.profile, a.profile.Login, creds)
}

func (a *stpAdapter) Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error) {
	q, ok := a.profile.Queries[req.Kind]
	if !ok {
		return types.Outcome{}, fmt.Errorf("site %s does not serve %s lookups", a.profile.ID, req.Kind)
	}

	var keyword string
	switch req.Kind {
	case types.KindPlate:
		keyword = platePattern(req.Field(types.FieldPlateNumber))
	case types.KindTitle:
		keyword = percentGroups(req.Field(types.FieldCertificateSerial))
	case types.KindPerson:
		// Citizen ids go into the keyword box verbatim, no pattern.
		keyword = normalizeSerial(req.Field(types.FieldCitizenID))
	default:
		return types.Outcome{}, fmt.Errorf("site %s: unsupported lookup kind %q", a.profile.ID, req.Kind)
	}

	return fillAndSubmit(ctx, s, q, map[string]string{"keyword": keyword})
}
