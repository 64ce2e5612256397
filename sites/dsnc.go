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

// The ASP.NET radio buttons switching the search table. They trigger a
// postback, so the right one is clicked before any field is filled.
const (
	dsncRadioVehicles = "#rblTableType_1"
	dsncRadioPersons  = "#rblTableType_2"
)

// tableRadio returns the radio selector for a lookup kind, empty when
// the kind uses the default table.
func tableRadio(kind types.Kind) string {
	switch kind {
	case types.KindPlate:
		return dsncRadioVehicles
	case types.KindPerson:
		return dsncRadioPersons
	}
	return ""
}

// dsncAdapter drives the ASP.NET portal. Plates are searched through two
// separate boxes, one per plate half; titles through parcel and map-sheet
// pattern fields.
type dsncAdapter struct {
	profile config.SiteProfile
}

func (a *dsncAdapter) ID() string { return a.profile.ID }

func (a *dsncAdapter) Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error) {
	return formLogin(ctx, s, a.profile, a.profile.Login, creds)
}

func (a *dsncAdapter) Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error) {
	q, ok := a.profile.Queries[req.Kind]
	if !ok {
		return types.Outcome{}, fmt.Errorf("site %s does not serve %s lookups", a.profile.ID, req.Kind)
	}

	values := map[string]string{}
	switch req.Kind {
	case types.KindPlate:
		prefix, suffix := splitPlate(req.Field(types.FieldPlateNumber))
		values["plate_p1"] = platePatternP1(prefix)
		values["plate_p2"] = platePatternP2(suffix)
	case types.KindTitle:
		values[types.FieldParcelNumber] = wrapPercent(req.Field(types.FieldParcelNumber))
		values[types.FieldMapSheetNumber] = percentGroups(req.Field(types.FieldMapSheetNumber))
	case types.KindPerson:
		// The citizen id goes into the second search box as typed.
		values[types.FieldCitizenID] = req.Field(types.FieldCitizenID)
	default:
		return types.Outcome{}, fmt.Errorf("site %s: unsupported lookup kind %q", a.profile.ID, req.Kind)
	}

	if q.URL != "" {
		if err := s.Navigate(ctx, q.URL); err != nil {
			return types.Outcome{}, err
		}
	}
	if radio := tableRadio(req.Kind); radio != "" {
		// Best effort: on a fresh session the radio may already be set and
		// the click target may not exist yet.
		err := s.Run(ctx, chromedp.Click(radio, chromedp.ByQuery, chromedp.NodeVisible))
		if err != nil && errors.Is(err, browser.ErrSessionLost) {
			return types.Outcome{}, err
		}
	}
	// fillAndSubmit skips its own navigation: the form URL was handled
	// above so the radio postback is not thrown away.
	qq := q
	qq.URL = ""
	return fillAndSubmit(ctx, s, qq, values)
}
