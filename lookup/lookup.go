// Package lookup runs one lookup request across the configured sites in
// priority order: login, query, classify, retry on transient trouble and
// stop at the first site that renders a result.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/history"
	"github.com/tracuuvn/tracuu/log"
	"github.com/tracuuvn/tracuu/proclock"
	"github.com/tracuuvn/tracuu/sites"
	"github.com/tracuuvn/tracuu/types"
)

// ErrInvalidInput marks requests rejected before any browser work.
var ErrInvalidInput = errors.New("lookup: invalid input")

// SessionOpener abstracts the browser manager for the orchestrator.
type SessionOpener interface {
	Open(ctx context.Context) (*browser.Session, error)
	NewTab(s *browser.Session) error
	Close(s *browser.Session, keepOpen bool)
}

// SiteResult is the per-site record of one run.
type SiteResult struct {
	SiteID   string
	Outcome  types.Outcome
	Attempts int
}

// Orchestrator coordinates a lookup across sites. One browser session is
// shared by all sites of a run; each site gets a fresh tab.
type Orchestrator struct {
	cfg    *config.Config
	creds  *config.CredentialStore
	opener SessionOpener
	hist   *history.Store // optional

	adapterFor func(config.SiteProfile) (sites.Adapter, error)
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(cfg *config.Config, creds *config.CredentialStore, opener SessionOpener, hist *history.Store) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		creds:      creds,
		opener:     opener,
		hist:       hist,
		adapterFor: sites.ForProfile,
		sleep:      sleepCtx,
	}
}

// Validate checks a request before any browser work.
func Validate(req types.Request) error {
	switch req.Kind {
	case types.KindPlate:
		if req.Field(types.FieldPlateNumber) == "" {
			return fmt.Errorf("%w: plate number is required", ErrInvalidInput)
		}
	case types.KindTitle:
		if req.Field(types.FieldCertificateSerial) == "" {
			return fmt.Errorf("%w: certificate serial is required", ErrInvalidInput)
		}
	case types.KindPerson:
		if req.Field(types.FieldCitizenID) == "" {
			return fmt.Errorf("%w: citizen id is required", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown lookup kind %q", ErrInvalidInput, req.Kind)
	}
	return nil
}

// Run executes the request. It returns the per-site results, the final
// outcome and a fatal error, if any. A success at one site stops the
// iteration and leaves that site's browser window open.
func (o *Orchestrator) Run(ctx context.Context, req types.Request) ([]SiteResult, types.Outcome, error) {
	logger := log.LoggerFromContext(ctx)

	if err := Validate(req); err != nil {
		return nil, types.Outcome{}, err
	}
	candidates := o.cfg.SitesFor(req.Kind)
	if len(candidates) == 0 {
		return nil, types.Outcome{}, fmt.Errorf("lookup: no site serves %s lookups", req.Kind)
	}
	// Resolve every credential up front so a missing entry fails before a
	// browser ever launches.
	credsBySite := map[string]config.Credentials{}
	for _, p := range candidates {
		c, err := o.creds.For(p.ID)
		if err != nil {
			return nil, types.Outcome{}, err
		}
		credsBySite[p.ID] = c
	}

	lock, err := proclock.Acquire(o.cfg.LockFile)
	if err != nil {
		return nil, types.Outcome{}, err
	}
	defer lock.Release()

	session, err := o.opener.Open(ctx)
	if err != nil {
		return nil, types.Outcome{}, err
	}
	keepOpen := false
	defer func() { o.opener.Close(session, keepOpen) }()

	var results []SiteResult
	final := types.Outcome{Status: types.StatusPermanentFailure, Message: "no site returned a result"}
	var fatal error

	for i, p := range candidates {
		if i > 0 {
			if err := o.opener.NewTab(session); err != nil {
				fatal = err
				break
			}
		}
		adapter, err := o.adapterFor(p)
		if err != nil {
			fatal = err
			break
		}
		res, err := o.runSite(ctx, session, adapter, p, credsBySite[p.ID], req)
		results = append(results, res)
		if err != nil {
			fatal = err
			break
		}
		logger.Info("site finished",
			slog.String("site", p.ID),
			slog.String("status", res.Outcome.Status.String()),
			slog.Int("attempts", res.Attempts))

		final = res.Outcome
		if res.Outcome.Status == types.StatusSuccess {
			break
		}
	}

	// Leave the browser open whenever the last examined page rendered
	// something worth looking at, successful or not.
	keepOpen = final.ResultVisible && fatal == nil

	o.record(ctx, req, results, final)
	return results, final, fatal
}

// runSite runs the login+query cycle for one site with bounded retries.
// Every retry restarts the full cycle. Rejected credentials and permanent
// outcomes stop the loop immediately.
func (o *Orchestrator) runSite(ctx context.Context, s *browser.Session, adapter sites.Adapter, p config.SiteProfile, creds config.Credentials, req types.Request) (SiteResult, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("site", p.ID))
	res := SiteResult{SiteID: p.ID}
	var lastMsg string

	for attempt := 1; attempt <= o.cfg.Retry.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			if err := o.sleep(ctx, o.cfg.Retry.Backoff()); err != nil {
				return res, err
			}
			logger.Debug("retrying site", slog.Int("attempt", attempt))
		}

		outcome, retryable, err := o.attempt(ctx, s, adapter, creds, req)
		if err != nil {
			if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
				res.Outcome = types.Outcome{Status: types.StatusTransientFailure, Message: err.Error()}
				return res, err
			}
			lastMsg = err.Error()
			logger.Warn("attempt failed", slog.Int("attempt", attempt), slog.String("err", lastMsg))
			if retryable {
				s.Screenshot(ctx, p.ID)
				continue
			}
			res.Outcome = types.Outcome{Status: types.StatusPermanentFailure, Message: lastMsg}
			return res, nil
		}
		res.Outcome = outcome
		return res, nil
	}

	// Out of attempts: permanent for this run, carrying the last diagnostic.
	res.Outcome = types.Outcome{
		Status:  types.StatusPermanentFailure,
		Message: fmt.Sprintf("retries exhausted: %s", lastMsg),
	}
	return res, nil
}

// attempt is one full login+query cycle. The second return value reports
// whether a failure is worth retrying.
func (o *Orchestrator) attempt(ctx context.Context, s *browser.Session, adapter sites.Adapter, creds config.Credentials, req types.Request) (types.Outcome, bool, error) {
	login, err := adapter.Login(ctx, s, creds)
	if err != nil {
		return types.Outcome{}, transient(err), err
	}
	switch login {
	case types.LoginInvalidCredentials:
		return types.Outcome{}, false, fmt.Errorf("%w for site %s", sites.ErrInvalidCredentials, adapter.ID())
	case types.LoginUIChanged:
		return types.Outcome{}, true, fmt.Errorf("%w: login flow on site %s", sites.ErrUIChanged, adapter.ID())
	}

	outcome, err := adapter.Query(ctx, s, req)
	if err != nil {
		return types.Outcome{}, transient(err), err
	}
	return outcome, false, nil
}

// transient reports whether an attempt error may resolve on retry:
// timeouts and changed markup can be flaky page loads, everything else is
// permanent.
func transient(err error) bool {
	return errors.Is(err, browser.ErrNavigationTimeout) ||
		errors.Is(err, browser.ErrWaitTimeout) ||
		errors.Is(err, sites.ErrUIChanged)
}

// record writes the run into the history store. Failures only log; a
// broken history file never fails a lookup.
func (o *Orchestrator) record(ctx context.Context, req types.Request, results []SiteResult, final types.Outcome) {
	if o.hist == nil {
		return
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s=%s", r.SiteID, r.Outcome.Status))
	}
	err := o.hist.Record(ctx, history.Entry{
		Kind:        string(req.Kind),
		Input:       requestSummary(req),
		SiteResults: strings.Join(parts, "; "),
		Note:        final.Message,
	})
	if err != nil {
		log.LoggerFromContext(ctx).Warn("recording history failed", slog.String("err", err.Error()))
	}
}

func requestSummary(req types.Request) string {
	switch req.Kind {
	case types.KindPlate:
		return req.Field(types.FieldPlateNumber)
	case types.KindTitle:
		s := req.Field(types.FieldCertificateSerial)
		if parcel := req.Field(types.FieldParcelNumber); parcel != "" {
			s += " parcel=" + parcel
		}
		if sheet := req.Field(types.FieldMapSheetNumber); sheet != "" {
			s += " map-sheet=" + sheet
		}
		return s
	case types.KindPerson:
		return req.Field(types.FieldCitizenID)
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
