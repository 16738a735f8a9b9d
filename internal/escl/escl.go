// Package escl drives scan jobs on the device's eSCL endpoint. The
// protocol exposes no per-job state, only a single device-wide scanner
// state, so only one scan can run at a time; PerformScan enforces that
// and fails fast when a scan is already in flight.
package escl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"mfphub/internal/xmldoc"
)

// ScannerState is the device-wide scanner condition.
type ScannerState string

const (
	ScannerIdle       ScannerState = "Idle"
	ScannerProcessing ScannerState = "Processing"
	ScannerStopped    ScannerState = "Stopped"
)

// ADFState is the document feeder condition.
type ADFState string

const (
	ADFEmpty  ADFState = "Empty"
	ADFLoaded ADFState = "Loaded"
	ADFJam    ADFState = "Jam"
)

// Status is one observation of the device-wide scanner state.
type Status struct {
	State ScannerState `json:"state"`
	ADF   ADFState     `json:"adfState"`
}

// ErrScanBusy reports that a scan is already in progress on this client.
var ErrScanBusy = errors.New("scan already in progress")

// ErrMalformed wraps device responses missing expected structure.
var ErrMalformed = errors.New("malformed device response")

const (
	pollInterval    = 500 * time.Millisecond
	defaultMaxWait  = 60 * time.Second
	cleanupDeadline = 5 * time.Second
)

// Client drives the eSCL job lifecycle against one device.
type Client struct {
	base     string
	http     *http.Client
	scanning atomic.Bool
	maxWait  time.Duration
}

// NewClient creates a Client for the device at host.
func NewClient(host string) *Client {
	return &Client{
		base:    "http://" + host,
		http:    &http.Client{Timeout: 30 * time.Second},
		maxWait: defaultMaxWait,
	}
}

// CreateScanJob submits the settings and returns the new job's URL from
// the Location header. A success response without that header is a
// malformed device response.
func (c *Client) CreateScanJob(ctx context.Context, s Settings) (string, error) {
	body, err := marshalSettings(s)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/eSCL/ScanJobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create scan job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create scan job: unexpected status %s", resp.Status)
	}
	jobURL := resp.Header.Get("Location")
	if jobURL == "" {
		return "", fmt.Errorf("%w: no Location header on scan job creation", ErrMalformed)
	}
	return jobURL, nil
}

// Status fetches the device-wide scanner and ADF state. Unrecognized
// values report as Idle/Empty.
func (c *Client) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/eSCL/ScannerStatus", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("scanner status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("scanner status: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Status{}, fmt.Errorf("scanner status: %w", err)
	}
	doc, err := xmldoc.Parse(body)
	if err != nil {
		return Status{}, fmt.Errorf("%w: scanner status: %v", ErrMalformed, err)
	}
	return Status{
		State: parseScannerState(doc.TextOf("State")),
		ADF:   parseADFState(doc.TextOf("AdfState")),
	}, nil
}

func parseScannerState(s string) ScannerState {
	switch s {
	case "Processing", "BusyWithScanJob":
		return ScannerProcessing
	case "Stopped":
		return ScannerStopped
	default:
		return ScannerIdle
	}
}

func parseADFState(s string) ADFState {
	switch s {
	case "ScannerAdfLoaded", "Loaded":
		return ADFLoaded
	case "ScannerAdfJam", "Jammed", "Jam":
		return ADFJam
	default:
		return ADFEmpty
	}
}

// WaitForScanComplete polls the device-wide scanner state every 500ms
// until it returns to idle, reporting each observation through onProgress.
// It fails when the scanner stops unexpectedly or maxWait elapses.
func (c *Client) WaitForScanComplete(ctx context.Context, onProgress func(ScannerState), maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = c.maxWait
	}
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(status.State)
		}
		switch status.State {
		case ScannerIdle:
			return nil
		case ScannerStopped:
			return errors.New("scanner stopped unexpectedly")
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("scan did not complete within %s", maxWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchDocument retrieves the scanned document bytes from the job's
// NextDocument sub-resource.
func (c *Client) FetchDocument(ctx context.Context, jobURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL+"/NextDocument", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// CancelScanJob deletes the job from the device. A 404 means the job is
// already gone and counts as success. Callers treat this as best-effort.
func (c *Client) CancelScanJob(ctx context.Context, jobURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, jobURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel scan job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cancel scan job: unexpected status %s", resp.Status)
	}
	return nil
}

// PerformScan runs the full lifecycle: create the job, wait for the
// scanner to finish, fetch the document. The job is always best-effort
// deleted afterwards, whether the scan succeeded or not, so a failure
// never leaves an orphaned job on the device.
func (c *Client) PerformScan(ctx context.Context, s Settings, onProgress func(ScannerState)) ([]byte, error) {
	if !c.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanBusy
	}
	defer c.scanning.Store(false)

	jobURL, err := c.CreateScanJob(ctx, s)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Cleanup runs on its own context so a cancelled scan still
		// deletes the job. Failures here never mask the scan outcome.
		cctx, cancel := context.WithTimeout(context.Background(), cleanupDeadline)
		defer cancel()
		if err := c.CancelScanJob(cctx, jobURL); err != nil {
			slog.Warn("scan job cleanup failed", "jobUrl", jobURL, "err", err)
		}
	}()

	if err := c.WaitForScanComplete(ctx, onProgress, c.maxWait); err != nil {
		return nil, err
	}
	return c.FetchDocument(ctx, jobURL)
}
