package probe

import (
	"context"
	"net/http"
	"time"

	"regcheck/pkg/logging"
)

const (
	// DefaultInterval is the spacing between two attempts.
	DefaultInterval = time.Second
	// DefaultTimeoutSeconds bounds the wait when no timeout is configured.
	DefaultTimeoutSeconds = 60
)

// Report describes how a wait ended.
type Report struct {
	URL        string        `json:"url,omitempty"`
	Available  bool          `json:"available"`
	Skipped    bool          `json:"skipped,omitempty"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
	LastStatus int           `json:"last_status,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

// Prober polls a URL until it answers 200 OK.
type Prober struct {
	Client   *http.Client
	Interval time.Duration
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a prober with a one second interval.
func New() *Prober {
	return &Prober{
		Client:   &http.Client{Timeout: 5 * time.Second},
		Interval: DefaultInterval,
		Sleep:    sleepCtx,
	}
}

// WaitUntilAvailable reports whether url answered 200 within timeoutSeconds
// intervals. An empty url is available immediately.
func (p *Prober) WaitUntilAvailable(ctx context.Context, url string, timeoutSeconds int) bool {
	return p.Probe(ctx, url, timeoutSeconds).Available
}

// Probe is WaitUntilAvailable with a diagnostic report.
func (p *Prober) Probe(ctx context.Context, url string, timeoutSeconds int) (report Report) {
	report = Report{URL: url}
	if url == "" {
		report.Available = true
		report.Skipped = true
		return report
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
	}()

	// Each attempt follows one interval, so the n-th attempt happens about
	// n intervals after the start.
	for {
		if err := sleep(ctx, interval); err != nil {
			report.LastError = err.Error()
			break
		}

		report.Attempts++
		status, err := attempt(ctx, client, url)
		report.LastStatus = status
		report.LastError = ""
		if err != nil {
			report.LastError = err.Error()
		}

		if err == nil && status == http.StatusOK {
			logging.Debug("Probe", "%s available after %d attempt(s)", url, report.Attempts)
			report.Available = true
			return report
		}
		if err != nil {
			logging.Debug("Probe", "waiting for %s (attempt %d): %v", url, report.Attempts, err)
		} else {
			logging.Debug("Probe", "waiting for %s (attempt %d): status %d", url, report.Attempts, status)
		}

		if report.Attempts >= timeoutSeconds {
			break
		}
	}

	logging.Warn("Probe", "%s not available after %d attempt(s)", url, report.Attempts)
	return report
}

func attempt(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	return res.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
