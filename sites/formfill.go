package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/log"
	"github.com/tracuuvn/tracuu/types"
)

// by picks the chromedp query option for a selector. Selectors starting
// with // or ( are XPath, everything else is CSS.
func by(sel string) chromedp.QueryOption {
	if strings.HasPrefix(sel, "//") || strings.HasPrefix(sel, "(") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// setValue assigns the value through the DOM instead of keystrokes, so
// masked inputs and inputs with keyup handlers receive the exact string.
func setValue(sel, value string) chromedp.Action {
	return chromedp.SetValue(sel, value, by(sel))
}

// submit clicks the submit control, falling back to Enter on fallbackSel
// when the click fails (some portals render the button as an image map
// that chromedp cannot always hit).
func submit(ctx context.Context, s *browser.Session, submitSel, fallbackSel string) error {
	var clickErr error
	if submitSel != "" {
		clickErr = s.Run(ctx, chromedp.Click(submitSel, by(submitSel), chromedp.NodeVisible))
		if clickErr == nil {
			return nil
		}
		if errors.Is(clickErr, browser.ErrSessionLost) {
			return clickErr
		}
	}
	if fallbackSel == "" {
		return clickErr
	}
	if err := s.Run(ctx, chromedp.SendKeys(fallbackSel, kb.Enter, by(fallbackSel))); err != nil {
		if clickErr != nil {
			return clickErr
		}
		return err
	}
	return nil
}

// formLogin runs the shared login flow: open the login page, type the
// credentials, submit and classify the landing page. Sites whose login
// needs more than selector substitution wrap this with their quirks.
func formLogin(ctx context.Context, s *browser.Session, p config.SiteProfile, sel config.LoginSelectors, creds config.Credentials) (types.LoginResult, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("site", p.ID))

	if err := s.Navigate(ctx, p.LoginPage()); err != nil {
		return types.LoginUIChanged, err
	}

	if err := s.WaitVisible(ctx, sel.Username); err != nil {
		if !errors.Is(err, browser.ErrWaitTimeout) {
			return types.LoginUIChanged, err
		}
		// No login form. A still-valid session from the profile directory
		// shows the post-login marker instead.
		if sel.Marker != "" {
			if merr := s.WaitVisible(ctx, sel.Marker); merr == nil {
				logger.Debug("session already authenticated")
				return types.LoginOK, nil
			}
		}
		return types.LoginUIChanged, fmt.Errorf("%w: login form %q not found", ErrUIChanged, sel.Username)
	}

	if err := s.Run(ctx,
		setValue(sel.Username, creds.Username),
		setValue(sel.Password, creds.Password),
	); err != nil {
		return types.LoginUIChanged, err
	}
	if err := submit(ctx, s, sel.Submit, sel.Password); err != nil {
		return types.LoginUIChanged, err
	}
	return classifyLogin(ctx, s, sel)
}

// classifyLogin decides how the landing page after a login submit should
// be read: marker present means success, a failure message or the login
// form still being there means rejected credentials, anything else means
// the page no longer looks like it used to.
func classifyLogin(ctx context.Context, s *browser.Session, sel config.LoginSelectors) (types.LoginResult, error) {
	if sel.Marker != "" {
		err := s.WaitVisible(ctx, sel.Marker)
		if err == nil {
			return types.LoginOK, nil
		}
		if !errors.Is(err, browser.ErrWaitTimeout) {
			return types.LoginUIChanged, err
		}
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return types.LoginUIChanged, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return types.LoginUIChanged, fmt.Errorf("%w: parsing login landing page: %v", ErrUIChanged, err)
	}
	if sel.Failure != "" && doc.Find(sel.Failure).Length() > 0 {
		return types.LoginInvalidCredentials, nil
	}
	if doc.Find(sel.Username).Length() > 0 {
		// Bounced back to the form without an error marker. The portals do
		// this on wrong passwords.
		return types.LoginInvalidCredentials, nil
	}
	if sel.Marker != "" {
		return types.LoginUIChanged, fmt.Errorf("%w: post-login marker %q absent", ErrUIChanged, sel.Marker)
	}
	return types.LoginOK, nil
}

// fillAndSubmit drives one query form: navigate to it if it has its own
// page, fill presets and field values in deterministic order, submit and
// classify the result page.
func fillAndSubmit(ctx context.Context, s *browser.Session, q config.QueryForm, values map[string]string) (types.Outcome, error) {
	if q.URL != "" && !strings.Contains(q.URL, "{keyword}") {
		if err := s.Navigate(ctx, q.URL); err != nil {
			return types.Outcome{}, err
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		if _, ok := q.Fields[name]; !ok {
			return types.Outcome{}, fmt.Errorf("%w: no selector configured for field %q", ErrUIChanged, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return types.Outcome{}, fmt.Errorf("%w: query form has no values to fill", ErrUIChanged)
	}

	firstSel := q.Fields[names[0]]
	if err := s.WaitVisible(ctx, firstSel); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return types.Outcome{}, fmt.Errorf("%w: query field %q not found", ErrUIChanged, firstSel)
		}
		return types.Outcome{}, err
	}

	var actions []chromedp.Action
	presetSels := make([]string, 0, len(q.Presets))
	for sel := range q.Presets {
		presetSels = append(presetSels, sel)
	}
	sort.Strings(presetSels)
	for _, sel := range presetSels {
		actions = append(actions, setValue(sel, q.Presets[sel]))
	}
	for _, name := range names {
		actions = append(actions, setValue(q.Fields[name], values[name]))
	}
	if err := s.Run(ctx, actions...); err != nil {
		return types.Outcome{}, err
	}

	if err := submit(ctx, s, q.Submit, firstSel); err != nil {
		return types.Outcome{}, err
	}
	return classifyResultPage(ctx, s, q)
}

// classifyResultPage waits for the result marker and reads the page HTML
// to decide between rendered results, a known empty answer and a site
// error. No recognizable marker at all means the markup changed.
func classifyResultPage(ctx context.Context, s *browser.Session, q config.QueryForm) (types.Outcome, error) {
	if err := s.WaitVisible(ctx, q.Result); err != nil && !errors.Is(err, browser.ErrWaitTimeout) {
		return types.Outcome{}, err
	}
	html, err := s.HTML(ctx)
	if err != nil {
		return types.Outcome{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return types.Outcome{}, fmt.Errorf("%w: parsing result page: %v", ErrUIChanged, err)
	}
	return classify(doc, q)
}

// classify maps a parsed result page onto an outcome. Success never
// extracts data: the rows stay on screen for the user to read, and when
// several rows match the message says so instead of picking one.
func classify(doc *goquery.Document, q config.QueryForm) (types.Outcome, error) {
	if n := doc.Find(q.Result).Length(); n > 0 {
		msg := "results displayed in the browser"
		if n > 1 {
			msg = fmt.Sprintf("%d matching rows displayed in the browser", n)
		}
		return types.Outcome{Status: types.StatusSuccess, Message: msg, ResultVisible: true}, nil
	}
	if q.Empty != "" && doc.Find(q.Empty).Length() > 0 {
		return types.Outcome{
			Status:        types.StatusPermanentFailure,
			Message:       "no matching records",
			ResultVisible: true,
		}, nil
	}
	if q.Failure != "" && doc.Find(q.Failure).Length() > 0 {
		return types.Outcome{
			Status:        types.StatusPermanentFailure,
			Message:       "site reported a query error",
			ResultVisible: true,
		}, nil
	}
	return types.Outcome{}, fmt.Errorf("%w: result page shows none of the known markers", ErrUIChanged)
}
