package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PlaywrightProvider opens Chromium pages. The browser is started on the first
// NewPage so runs without interactive sources never launch it.
type PlaywrightProvider struct {
	headless bool
	log      *logger.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightProvider creates a provider
func NewPlaywrightProvider(headless bool) *PlaywrightProvider {
	return &PlaywrightProvider{
		headless: headless,
		log:      logger.ForSource("browser"),
	}
}

func (p *PlaywrightProvider) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return err
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.headless),
		Args:     []string{"--no-sandbox", "--disable-blink-features=AutomationControlled"},
	})
	if err != nil {
		pw.Stop()
		return err
	}

	p.pw = pw
	p.browser = browser
	p.log.Info().Bool("headless", p.headless).Msg("Browser started")
	return nil
}

// NewPage opens a page in its own browser context
func (p *PlaywrightProvider) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.start(); err != nil {
		return nil, err
	}

	bctx, err := p.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(browserUserAgent),
		Locale:    playwright.String("fr-FR"),
		Viewport:  &playwright.Size{Width: 1600, Height: 1000},
	})
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, err
	}
	return &playwrightPage{bctx: bctx, page: page}, nil
}

// Close stops the browser
func (p *PlaywrightProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	if stopErr := p.pw.Stop(); err == nil {
		err = stopErr
	}
	p.browser = nil
	p.pw = nil
	return err
}

type playwrightPage struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

func (pp *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := pp.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	})
	return translate(err, "navigation")
}

func (pp *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := pp.page.Content()
	return html, translate(err, "content")
}

func (pp *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pp.page.Locator(selector).Count()
	return n, translate(err, "count")
}

func (pp *playwrightPage) Actionable(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	control := pp.page.Locator(selector).First()
	visible, err := control.IsVisible()
	if err != nil || !visible {
		return false, translate(err, "visibility")
	}
	enabled, err := control.IsEnabled()
	return enabled, translate(err, "enabled")
}

func (pp *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	control := pp.page.Locator(selector).First()
	// a control below the fold is not clickable until scrolled to
	_ = control.ScrollIntoViewIfNeeded()
	return translate(control.Click(), "click")
}

func (pp *playwrightPage) WaitForCount(ctx context.Context, selector string, above int, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := pp.page.WaitForFunction(
		`([sel, n]) => document.querySelectorAll(sel).length > n`,
		[]interface{}{selector, above},
		playwright.PageWaitForFunctionOptions{Timeout: playwright.Float(float64(timeout.Milliseconds()))},
	)
	return translate(err, "waiting for "+selector)
}

func (pp *playwrightPage) Close() error {
	return pp.bctx.Close()
}

// translate maps playwright timeouts to retryable timeout errors
func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return scrapeerrors.NewTimeout("browser", action+" timed out", err)
	}
	return scrapeerrors.NewNetwork("browser", action+" failed", err)
}
