package provider

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// HTTPProbe is the default WebsiteProbe: a HEAD request with a bounded
// timeout and client-side pacing so a large batch cannot hammer one
// origin's DNS resolver.
type HTTPProbe struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProbe creates a probe with the given per-request timeout and
// requests-per-second pacing.
func NewHTTPProbe(timeout time.Duration, perSecond float64) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &HTTPProbe{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Check performs the HEAD probe. A site is accessible iff the status
// code is in [200,400).
func (p *HTTPProbe) Check(ctx context.Context, rawURL string) (*model.ProbeResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "probe: rate wait")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "probe: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lead-qualifier/1.0)")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, eris.Wrap(err, "probe: head request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return &model.ProbeResult{
		Accessible:     resp.StatusCode >= 200 && resp.StatusCode < 400,
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
	}, nil
}
