package lookup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/sites"
	"github.com/tracuuvn/tracuu/types"
)

type fakeOpener struct {
	opened   int
	newTabs  int
	closed   bool
	keepOpen bool
}

func (f *fakeOpener) Open(ctx context.Context) (*browser.Session, error) {
	f.opened++
	return &browser.Session{}, nil
}

func (f *fakeOpener) NewTab(s *browser.Session) error {
	f.newTabs++
	return nil
}

func (f *fakeOpener) Close(s *browser.Session, keepOpen bool) {
	f.closed = true
	f.keepOpen = keepOpen
}

// step scripts one login+query attempt of a fake adapter.
type step struct {
	login    types.LoginResult
	loginErr error
	outcome  types.Outcome
	queryErr error
}

type fakeAdapter struct {
	id      string
	steps   []step
	logins  int
	queries int
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) current() step {
	i := a.logins - 1
	if i >= len(a.steps) {
		i = len(a.steps) - 1
	}
	return a.steps[i]
}

func (a *fakeAdapter) Login(ctx context.Context, s *browser.Session, creds config.Credentials) (types.LoginResult, error) {
	a.logins++
	st := a.current()
	return st.login, st.loginErr
}

func (a *fakeAdapter) Query(ctx context.Context, s *browser.Session, req types.Request) (types.Outcome, error) {
	a.queries++
	st := a.current()
	return st.outcome, st.queryErr
}

func testConfig(t *testing.T, siteIDs ...string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Retry:    config.RetryConfig{MaxAttempts: 3, BackoffMS: 1},
		LockFile: filepath.Join(t.TempDir(), "test.lock"),
	}
	for i, id := range siteIDs {
		cfg.Sites = append(cfg.Sites, config.SiteProfile{
			ID:       id,
			BaseURL:  "http://" + id + ".example",
			Priority: i,
			Queries: map[types.Kind]config.QueryForm{
				types.KindPlate: {Result: "table"},
			},
		})
	}
	return cfg
}

func testCredentials(t *testing.T, siteIDs ...string) *config.CredentialStore {
	t.Helper()
	content := "credentials:\n"
	for _, id := range siteIDs {
		content += "  - site_id: " + id + "\n    username: user\n    password: pass\n"
	}
	path := filepath.Join(t.TempDir(), "credentials.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	store, err := config.LoadCredentials(path)
	require.NoError(t, err)
	return store
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, opener *fakeOpener, adapters map[string]*fakeAdapter) *Orchestrator {
	t.Helper()
	ids := make([]string, 0, len(cfg.Sites))
	for _, p := range cfg.Sites {
		ids = append(ids, p.ID)
	}
	o := NewOrchestrator(cfg, testCredentials(t, ids...), opener, nil)
	o.adapterFor = func(p config.SiteProfile) (sites.Adapter, error) {
		a, ok := adapters[p.ID]
		if !ok {
			return nil, errors.New("no fake adapter for " + p.ID)
		}
		return a, nil
	}
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func plateRequest(plate string) types.Request {
	return types.Request{Kind: types.KindPlate, Fields: map[string]string{types.FieldPlateNumber: plate}}
}

func TestRunStopsAtFirstSuccess(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	opener := &fakeOpener{}
	adapters := map[string]*fakeAdapter{
		"stp": {id: "stp", steps: []step{{
			login:   types.LoginOK,
			outcome: types.Outcome{Status: types.StatusSuccess, Message: "results displayed", ResultVisible: true},
		}}},
		"dsnc": {id: "dsnc", steps: []step{{login: types.LoginOK}}},
	}
	o := newTestOrchestrator(t, cfg, opener, adapters)

	results, final, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, final.Status)
	require.Len(t, results, 1)
	require.Equal(t, "stp", results[0].SiteID)
	require.Equal(t, 1, results[0].Attempts)

	// Second site never touched, window left open on the result.
	require.Zero(t, adapters["dsnc"].logins)
	require.True(t, opener.closed)
	require.True(t, opener.keepOpen)
}

func TestRunRetriesFullCycleOnChangedMarkup(t *testing.T) {
	cfg := testConfig(t, "stp")
	uiChanged := step{queryErr: sites.ErrUIChanged, login: types.LoginOK}
	ok := step{
		login:   types.LoginOK,
		outcome: types.Outcome{Status: types.StatusSuccess, ResultVisible: true},
	}
	adapter := &fakeAdapter{id: "stp", steps: []step{uiChanged, uiChanged, ok}}
	o := newTestOrchestrator(t, cfg, &fakeOpener{}, map[string]*fakeAdapter{"stp": adapter})

	results, final, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, final.Status)
	require.Equal(t, 3, results[0].Attempts)

	// Each retry redoes the whole cycle, login included.
	require.Equal(t, 3, adapter.logins)
	require.Equal(t, 3, adapter.queries)
}

func TestRunRetriesExhausted(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	adapters := map[string]*fakeAdapter{
		"stp": {id: "stp", steps: []step{{login: types.LoginUIChanged}}},
		"dsnc": {id: "dsnc", steps: []step{{
			login:   types.LoginOK,
			outcome: types.Outcome{Status: types.StatusSuccess, ResultVisible: true},
		}}},
	}
	o := newTestOrchestrator(t, cfg, &fakeOpener{}, adapters)

	results, final, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	// First site burns all attempts, then the next site takes over.
	require.Equal(t, types.StatusPermanentFailure, results[0].Outcome.Status)
	require.Contains(t, results[0].Outcome.Message, "retries exhausted")
	require.Equal(t, cfg.Retry.MaxAttempts, results[0].Attempts)
	require.Equal(t, types.StatusSuccess, final.Status)
}

func TestRunInvalidCredentialsNeverRetried(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	adapters := map[string]*fakeAdapter{
		"stp": {id: "stp", steps: []step{{login: types.LoginInvalidCredentials}}},
		"dsnc": {id: "dsnc", steps: []step{{
			login:   types.LoginOK,
			outcome: types.Outcome{Status: types.StatusSuccess, ResultVisible: true},
		}}},
	}
	o := newTestOrchestrator(t, cfg, &fakeOpener{}, adapters)

	results, final, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.NoError(t, err)
	require.Equal(t, 1, adapters["stp"].logins)
	require.Equal(t, types.StatusPermanentFailure, results[0].Outcome.Status)
	require.Equal(t, types.StatusSuccess, final.Status)
}

func TestRunSessionLostStopsTheRun(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	adapters := map[string]*fakeAdapter{
		"stp":  {id: "stp", steps: []step{{loginErr: browser.ErrSessionLost}}},
		"dsnc": {id: "dsnc", steps: []step{{login: types.LoginOK}}},
	}
	opener := &fakeOpener{}
	o := newTestOrchestrator(t, cfg, opener, adapters)

	_, _, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.ErrorIs(t, err, browser.ErrSessionLost)
	require.Zero(t, adapters["dsnc"].logins)
	require.False(t, opener.keepOpen)
}

func TestRunMissingCredentialsFailBeforeBrowser(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	opener := &fakeOpener{}
	o := newTestOrchestrator(t, cfg, opener, nil)
	// Credentials only for the first site.
	o.creds = testCredentials(t, "stp")

	_, _, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.Error(t, err)
	require.Zero(t, opener.opened)
}

func TestRunNewTabPerSite(t *testing.T) {
	cfg := testConfig(t, "stp", "dsnc")
	adapters := map[string]*fakeAdapter{
		"stp": {id: "stp", steps: []step{{
			login:   types.LoginOK,
			outcome: types.Outcome{Status: types.StatusPermanentFailure, Message: "no matching records", ResultVisible: true},
		}}},
		"dsnc": {id: "dsnc", steps: []step{{
			login:   types.LoginOK,
			outcome: types.Outcome{Status: types.StatusSuccess, ResultVisible: true},
		}}},
	}
	opener := &fakeOpener{}
	o := newTestOrchestrator(t, cfg, opener, adapters)

	results, _, err := o.Run(context.Background(), plateRequest("30A-12345"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, opener.newTabs)
}

func TestRunInvalidInputNeverOpensBrowser(t *testing.T) {
	cfg := testConfig(t, "stp")
	opener := &fakeOpener{}
	o := newTestOrchestrator(t, cfg, opener, nil)

	_, _, err := o.Run(context.Background(), plateRequest("   "))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, opener.opened)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  types.Request
		ok   bool
	}{
		{"plate ok", plateRequest("30A-12345"), true},
		{"plate empty", plateRequest("   "), false},
		{"title ok", types.Request{Kind: types.KindTitle, Fields: map[string]string{types.FieldCertificateSerial: "CT 01234"}}, true},
		{"title empty", types.Request{Kind: types.KindTitle}, false},
		{"person ok", types.Request{Kind: types.KindPerson, Fields: map[string]string{types.FieldCitizenID: "079123456789"}}, true},
		{"person empty", types.Request{Kind: types.KindPerson}, false},
		{"unknown kind", types.Request{Kind: "passport"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}
