package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/types"
)

// tcwebAdapter drives the portal that is queried through URL parameters:
// after login the keyword is escaped into the configured query URL and
// the result page is classified like any form-based site.
type tcwebAdapter struct {
	profile config.SiteProfile
}

func (a *tcwebAdapter) ID() string { return a.profile.ID }

func (a *tcwebAdapter) Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error) {
	return formLogin(ctx, s, a.profile, a.profile.Login, creds)
}

func (a *tcwebAdapter) Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error) {
	q, ok := a.profile.Queries[req.Kind]
	if !ok {
		return types.Outcome{}, fmt.Errorf("site %s does not serve %s lookups", a.profile.ID, req.Kind)
	}
	if !strings.Contains(q.URL, "{keyword}") {
		return types.Outcome{}, fmt.Errorf("%w: query url for %s has no {keyword} placeholder", ErrUIChanged, req.Kind)
	}

	var keyword string
	switch req.Kind {
	case types.KindPlate:
		prefix, suffix := splitPlate(req.Field(types.FieldPlateNumber))
		keyword = strings.TrimSpace(prefix + " " + suffix)
	case types.KindTitle:
		keyword = normalizeSerial(req.Field(types.FieldCertificateSerial))
	case types.KindPerson:
		keyword = normalizeSerial(req.Field(types.FieldCitizenID))
	default:
		return types.Outcome{}, fmt.Errorf("site %s: unsupported lookup kind %q", a.profile.ID, req.Kind)
	}

	target := strings.ReplaceAll(q.URL, "{keyword}", url.QueryEscape(keyword))
	if err := s.Navigate(ctx, target); err != nil {
		return types.Outcome{}, err
	}
	return classifyResultPage(ctx, s, q)
}
