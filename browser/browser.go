// Package browser owns the single Chrome session used to drive the target
// portals: launch, navigation, scoped element waits, failure screenshots
// and teardown. The session handle is passed explicitly to every adapter
// call; there is no ambient session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/log"
)

var (
	// ErrLaunch means the Chrome binary is missing or the process died
	// before reaching a ready state.
	ErrLaunch = errors.New("browser: launch failed")
	// ErrNavigationTimeout means a page did not load within the bounded
	// navigation timeout.
	ErrNavigationTimeout = errors.New("browser: navigation timed out")
	// ErrWaitTimeout means an expected element did not appear within the
	// bounded element timeout.
	ErrWaitTimeout = errors.New("browser: element wait timed out")
	// ErrSessionLost means the browser went away underneath us, typically
	// because the user closed the window.
	ErrSessionLost = errors.New("browser: session lost")
)

// State of a session.
type State int

const (
	Closed State = iota
	Launching
	Ready
	Busy
	Failed
)

// Session wraps one live Chrome instance.
type Session struct {
	cfg         config.BrowserConfig
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	// cancel funcs of earlier tabs; only called on a full (non-detached)
	// teardown so inspected pages stay visible until then.
	oldTabs []context.CancelFunc
	state   State
}

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.state }

// Manager launches and tears down browser sessions. At most one session
// is live per orchestrator run.
type Manager struct {
	cfg     config.BrowserConfig
	session *Session
}

func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Open launches Chrome with a stable profile directory so repeated runs
// reuse cookies and storage where the portals require it. The allocator
// parent is context.Background on purpose: a detached session must not
// die with the caller's context.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	if m.session != nil && m.session.state != Closed {
		return nil, fmt.Errorf("browser: a session is already live")
	}

	profileDir, err := filepath.Abs(m.cfg.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving profile dir: %v", ErrLaunch, err)
	}
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating profile dir: %v", ErrLaunch, err)
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1600, 1000), // desktop view; some portals hide buttons on mobile layouts
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("no-first-run", true),
		chromedp.UserDataDir(profileDir),
	)
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         m.cfg,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		state:       Launching,
	}

	// Start the process now so a missing binary fails here, not on the
	// first navigation.
	startCtx, cancel := context.WithTimeout(tabCtx, m.cfg.NavTimeout())
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	s.state = Ready
	m.session = s
	log.LoggerFromContext(ctx).Debug("browser launched",
		slog.String("profile", profileDir), slog.Bool("headless", m.cfg.Headless))
	return s, nil
}

// Close performs scoped teardown. With keepOpen the Chrome process is
// detached and left running so its window stays visible to the user;
// only the internal bookkeeping is released. Otherwise the browser is
// terminated along with every tab it opened.
func (m *Manager) Close(s *Session, keepOpen bool) {
	if s == nil || s.state == Closed {
		return
	}
	if !keepOpen {
		for _, cancel := range s.oldTabs {
			cancel()
		}
		s.cancelTab()
		s.cancelAlloc()
	}
	s.state = Closed
	if m.session == s {
		m.session = nil
	}
}

// NewTab switches the session to a fresh tab, leaving the previous one
// open for inspection.
func (m *Manager) NewTab(s *Session) error {
	return s.NewTab()
}

func (s *Session) NewTab() error {
	if s.state != Ready {
		return ErrSessionLost
	}
	tabCtx, cancel := chromedp.NewContext(s.allocCtx)
	s.oldTabs = append(s.oldTabs, s.cancelTab)
	s.tabCtx, s.cancelTab = tabCtx, cancel
	return nil
}

// Navigate loads url and waits for the document body, bounded by the
// navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.cfg.NavTimeout(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %v", ErrNavigationTimeout, url, s.cfg.NavTimeout())
	}
	return err
}

// WaitVisible blocks until the selector is visible or the element timeout
// elapses.
func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	err := s.run(ctx, s.cfg.ElementTimeout(), chromedp.WaitVisible(sel, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %v", ErrWaitTimeout, sel, s.cfg.ElementTimeout())
	}
	return err
}

// Run executes chromedp actions against the current tab, bounded by the
// navigation timeout.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	err := s.run(ctx, s.cfg.NavTimeout(), actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrNavigationTimeout, s.cfg.NavTimeout())
	}
	return err
}

// HTML returns the current page's outer HTML for marker classification.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var body string
	err := s.run(ctx, s.cfg.ElementTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: reading page html", ErrWaitTimeout)
	}
	return body, err
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.ElementTimeout(), chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Screenshot captures the current page into the screenshot directory and
// returns the file path. It is a diagnostic: failures are logged, never
// fatal.
func (s *Session) Screenshot(ctx context.Context, label string) string {
	logger := log.LoggerFromContext(ctx)
	if s.cfg.ScreenshotDir == "" || s.state != Ready && s.state != Busy {
		return ""
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		logger.Warn("screenshot dir", slog.String("err", err.Error()))
		return ""
	}
	var buf []byte
	if err := s.run(ctx, s.cfg.ElementTimeout(), chromedp.CaptureScreenshot(&buf)); err != nil {
		logger.Debug("screenshot capture failed", slog.String("err", err.Error()))
		return ""
	}
	name := filepath.Join(s.cfg.ScreenshotDir,
		fmt.Sprintf("%s-%s.png", label, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(name, buf, 0o644); err != nil {
		logger.Warn("screenshot write failed", slog.String("err", err.Error()))
		return ""
	}
	logger.Debug("screenshot saved", slog.String("file", name))
	return name
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.state != Ready && s.state != Busy {
		return ErrSessionLost
	}
	if s.tabCtx.Err() != nil {
		s.state = Failed
		return ErrSessionLost
	}
	s.state = Busy
	defer func() {
		if s.state == Busy {
			s.state = Ready
		}
	}()

	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	// The tab context dying underneath a run means the user closed the
	// window (or Chrome crashed): not a retryable condition.
	if s.tabCtx.Err() != nil {
		s.state = Failed
		return ErrSessionLost
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return err
}
