package publisher

import (
	"net/http"
	"time"

	"github.com/maheshrc27/postqueue/internal/metrics"
	"github.com/maheshrc27/postqueue/internal/models"
	"golang.org/x/time/rate"
)

// throttledTransport paces outbound calls to one platform's API and counts
// them by status class.
type throttledTransport struct {
	platform models.Platform
	limiter  *rate.Limiter
	base     http.RoundTripper
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		metrics.RecordPublishRequest(t.platform, "error")
		return nil, err
	}
	metrics.RecordPublishRequest(t.platform, statusClass(resp.StatusCode))
	return resp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// NewThrottledClient returns an HTTP client for one platform that issues at
// most rps requests per second. rps <= 0 disables pacing.
func NewThrottledClient(platform models.Platform, rps float64, timeout time.Duration) *http.Client {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		if rps > 1 {
			burst = int(rps)
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &throttledTransport{
			platform: platform,
			limiter:  rate.NewLimiter(limit, burst),
			base:     http.DefaultTransport,
		},
	}
}
