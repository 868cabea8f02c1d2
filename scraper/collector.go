package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-listings/config"
)

// HTTPSource fetches the results page over plain HTTP without running any
// scripts. The ready marker is checked once against the static document.
type HTTPSource struct {
	cfg       *config.Config
	collector *colly.Collector
	logger    *slog.Logger
}

// NewHTTPSource builds a colly-backed page source restricted to the
// configured base URL's host.
func NewHTTPSource(cfg *config.Config, logger *slog.Logger) (*HTTPSource, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.PageTimeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.PageTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPSource{
		cfg:       cfg,
		collector: collector,
		logger:    logger.With(slog.String("component", "http_source")),
	}, nil
}

// Name identifies the source in logs and metrics.
func (h *HTTPSource) Name() string {
	return config.FetcherHTTP
}

// Fetch downloads target and returns its body once the results container is
// present in it. The request is bound to ctx and aborted when it is canceled.
func (h *HTTPSource) Fetch(ctx context.Context, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := h.collector.Clone()
	c.Context = ctx

	var (
		body       []byte
		statusCode int
		fetchErr   error
		ready      bool
	)

	c.OnRequest(func(r *colly.Request) {
		h.logger.Debug("requesting results page", slog.String("url", r.URL.String()))
	})
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})
	c.OnHTML(h.cfg.ReadySelector, func(*colly.HTMLElement) {
		ready = true
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return "", classifyError(fmt.Errorf("fetch %s: %w", target, err), 0)
	}
	if fetchErr != nil {
		return "", classifyError(fmt.Errorf("fetch %s: %w", target, fetchErr), statusCode)
	}
	if !ready {
		return "", ErrTimeout{Err: fmt.Errorf("%w: %q on %s", ErrMarkerNotFound, h.cfg.ReadySelector, target)}
	}

	h.logger.Debug("static page has no lazy content to scroll", slog.Int("bytes", len(body)))
	return string(body), nil
}
