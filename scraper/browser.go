package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-listings/config"
)

// scrollToBottom triggers the lazy-loaded part of the results grid.
const scrollToBottom = `window.scrollTo(0, document.body.scrollHeight);`

// BrowserSource renders the results page in a Chrome instance driven over
// the DevTools protocol. Each Fetch owns one browser for its whole duration.
type BrowserSource struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewBrowserSource builds a browser-backed page source.
func NewBrowserSource(cfg *config.Config, logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "browser")),
	}
}

// Name identifies the source in logs and metrics.
func (b *BrowserSource) Name() string {
	return config.FetcherBrowser
}

// Fetch navigates to target, waits for the results container, scrolls to the
// bottom once and returns the rendered document. The browser is shut down on
// every return path.
func (b *BrowserSource) Fetch(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PageTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.chromeLog),
		chromedp.WithErrorf(b.chromeLog),
	)
	defer func() {
		if err := chromedp.Cancel(browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Debug("browser shutdown", slog.Any("error", err))
		}
		cancelBrowser()
		b.logger.Info("browser closed")
	}()

	b.logger.Info("launching browser", slog.Bool("headless", b.cfg.Headless))
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers(requestHeaders())),
	); err != nil {
		return "", classifyError(fmt.Errorf("launch browser: %w", err), 0)
	}

	if err := chromedp.Run(browserCtx, chromedp.Navigate(target)); err != nil {
		return "", classifyError(fmt.Errorf("navigate %s: %w", target, err), 0)
	}

	if err := b.waitReady(browserCtx); err != nil {
		return "", err
	}

	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(scrollToBottom, nil),
		chromedp.Sleep(b.cfg.ScrollPause),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", classifyError(fmt.Errorf("capture page: %w", err), 0)
	}

	return html, nil
}

func (b *BrowserSource) waitReady(browserCtx context.Context) error {
	waitCtx, cancel := context.WithTimeout(browserCtx, b.cfg.ReadyTimeout)
	defer cancel()

	started := time.Now()
	err := chromedp.Run(waitCtx, chromedp.WaitReady(b.cfg.ReadySelector, chromedp.ByQuery))
	if err == nil {
		b.logger.Debug("results container ready",
			slog.String("selector", b.cfg.ReadySelector),
			slog.Duration("waited", time.Since(started)),
		)
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: fmt.Errorf("%w: %q within %s", ErrMarkerNotFound, b.cfg.ReadySelector, b.cfg.ReadyTimeout)}
	}
	return classifyError(fmt.Errorf("wait for %q: %w", b.cfg.ReadySelector, err), 0)
}

func (b *BrowserSource) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+4)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	return append(opts,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
}

func (b *BrowserSource) chromeLog(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func requestHeaders() map[string]any {
	return map[string]any{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "es-AR,es;q=0.9,en;q=0.5",
	}
}
