// Package ews reads the device's embedded web server XML telemetry:
// ink, paper, product, network and usage documents plus the job queue.
// Element lookup is by local name only; the same tag shows up under
// different namespace prefixes across endpoints.
package ews

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"mfphub/internal/xmldoc"
)

// ErrUnreachable wraps connection failures and timeouts reaching the device.
var ErrUnreachable = errors.New("device unreachable")

// ErrMalformed wraps responses that arrived but could not be parsed.
var ErrMalformed = errors.New("malformed device response")

const requestTimeout = 5 * time.Second

// Client reads XML telemetry from one device's embedded web server.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the device at host.
func NewClient(host string) *Client {
	return &Client{
		base: "http://" + host,
		http: &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) get(ctx context.Context, path string) (*xmldoc.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	doc, err := xmldoc.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return doc, nil
}

// PrinterStatus fetches the device state and alert table.
func (c *Client) PrinterStatus(ctx context.Context) (PrinterStatus, error) {
	doc, err := c.get(ctx, "/DevMgmt/ProductStatusDyn.xml")
	if err != nil {
		return PrinterStatus{}, err
	}
	return parsePrinterStatus(doc), nil
}

func parsePrinterStatus(doc *xmldoc.Node) PrinterStatus {
	status := PrinterStatus{State: parsePrinterState(doc.TextOf("StatusCategory"))}
	for _, n := range doc.All("Alert") {
		id := n.TextOf("AlertID")
		if id == "" {
			id = n.TextOf("ProductStatusAlertID")
		}
		if id == "" {
			continue
		}
		status.Alerts = append(status.Alerts, Alert{
			ID:       id,
			Severity: parseSeverity(n.TextOf("Severity")),
			Color:    n.TextOf("AlertColor"),
		})
	}
	return status
}

func parsePrinterState(s string) PrinterState {
	switch s {
	case "processing", "inProcessing":
		return PrinterProcessing
	case "inPowerSave", "sleep":
		return PrinterInPowerSave
	case "error", "hardError":
		return PrinterError
	default:
		return PrinterReady
	}
}

func parseSeverity(s string) Severity {
	switch s {
	case "Error", "error":
		return SeverityError
	case "Warning", "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// InkLevels fetches the consumable levels, always ordered K, C, M, Y
// regardless of the order the device reports them in.
func (c *Client) InkLevels(ctx context.Context) ([]InkLevel, error) {
	doc, err := c.get(ctx, "/DevMgmt/ConsumableConfigDyn.xml")
	if err != nil {
		return nil, err
	}
	return parseInkLevels(doc), nil
}

func parseInkLevels(doc *xmldoc.Node) []InkLevel {
	var levels []InkLevel
	for _, n := range doc.All("ConsumableInfo") {
		color, ok := parseInkColor(n.TextOf("ConsumableLabelCode"), n.TextOf("MarkerColor"))
		if !ok {
			continue
		}
		levels = append(levels, InkLevel{
			Color:   color,
			Percent: n.IntOf("ConsumablePercentageLevelRemaining"),
			State:   parseInkState(n.TextOf("ConsumableLifeState")),
		})
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return inkOrder[levels[i].Color] < inkOrder[levels[j].Color]
	})
	return levels
}

func parseInkColor(label, marker string) (InkColor, bool) {
	switch label {
	case "K":
		return InkBlack, true
	case "C":
		return InkCyan, true
	case "M":
		return InkMagenta, true
	case "Y":
		return InkYellow, true
	}
	switch strings.ToLower(marker) {
	case "black":
		return InkBlack, true
	case "cyan":
		return InkCyan, true
	case "magenta":
		return InkMagenta, true
	case "yellow":
		return InkYellow, true
	}
	return "", false
}

func parseInkState(s string) InkState {
	switch s {
	case "low", "jeopardy":
		return InkLow
	case "used":
		return InkUsed
	case "empty", "depleted":
		return InkEmpty
	case "missing", "notInstalled":
		return InkMissing
	default:
		return InkOK
	}
}

// Paper fetches the input tray state. Unrecognized media states report
// as ready rather than failing the fetch.
func (c *Client) Paper(ctx context.Context) (PaperTray, error) {
	doc, err := c.get(ctx, "/DevMgmt/MediaHandlingDyn.xml")
	if err != nil {
		return PaperTray{}, err
	}
	return PaperTray{State: parsePaperState(doc.TextOf("MediaState"))}, nil
}

func parsePaperState(s string) PaperState {
	switch s {
	case "missing", "empty", "mediaEmpty":
		return PaperMissing
	case "jam", "mediaJam":
		return PaperJam
	default:
		return PaperReady
	}
}

// DeviceInfo fetches the product description. This rarely changes; callers
// fetch it once per session.
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	doc, err := c.get(ctx, "/DevMgmt/ProductConfigDyn.xml")
	if err != nil {
		return DeviceInfo{}, err
	}
	info := DeviceInfo{
		Model:    doc.TextOf("MakeAndModel"),
		Serial:   doc.TextOf("SerialNumber"),
		Firmware: doc.TextOf("FirmwareRevision"),
		MemoryKB: doc.IntOf("TotalMemory"),
	}
	for _, n := range doc.All("Capability") {
		if n.Text != "" {
			info.Capabilities = append(info.Capabilities, n.Text)
		}
	}
	return info, nil
}

// Network fetches the device's adapter list.
func (c *Client) Network(ctx context.Context) (NetworkInfo, error) {
	doc, err := c.get(ctx, "/IoMgmt/Adapters")
	if err != nil {
		return NetworkInfo{}, err
	}
	var info NetworkInfo
	for _, n := range doc.All("Adapter") {
		info.Adapters = append(info.Adapters, NetworkAdapter{
			Name:       n.TextOf("Name"),
			MACAddress: n.TextOf("HardwareAddress"),
			IPAddress:  n.TextOf("IPAddress"),
			WifiSignal: n.IntOf("SignalStrength"),
		})
	}
	return info, nil
}

// Usage fetches the cumulative page and scan counters.
func (c *Client) Usage(ctx context.Context) (UsageStats, error) {
	doc, err := c.get(ctx, "/DevMgmt/ProductUsageDyn.xml")
	if err != nil {
		return UsageStats{}, err
	}
	return UsageStats{
		TotalImpressions: doc.IntOf("TotalImpressions"),
		ColorImpressions: doc.IntOf("ColorImpressions"),
		MonoImpressions:  doc.IntOf("MonochromeImpressions"),
		ScanImages:       doc.IntOf("ScanImages"),
		JamEvents:        doc.IntOf("JamEvents"),
	}, nil
}

// Jobs fetches the device job queue.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	doc, err := c.get(ctx, "/Jobs/JobList")
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, n := range doc.All("Job") {
		id := n.TextOf("JobId")
		if id == "" {
			id = n.TextOf("JobUrl")
		}
		if id == "" {
			continue
		}
		jobs = append(jobs, Job{
			ID:       id,
			Category: parseJobCategory(n.TextOf("JobCategory")),
			State:    parseJobState(n.TextOf("JobState")),
		})
	}
	return jobs, nil
}

func parseJobCategory(s string) JobCategory {
	switch s {
	case "Scan", "scan":
		return JobScan
	case "Copy", "copy":
		return JobCopy
	default:
		return JobPrint
	}
}

func parseJobState(s string) JobState {
	switch s {
	case "Processing", "processing":
		return JobProcessing
	case "Completed", "completed":
		return JobCompleted
	case "Canceled", "canceled":
		return JobCanceled
	default:
		return JobPending
	}
}

const cancelJobBody = `<?xml version="1.0" encoding="utf-8"?>` +
	`<j:Job xmlns:j="http://www.hp.com/schemas/imaging/con/ledm/jobs/2009/04/30">` +
	`<j:JobState>Canceled</j:JobState></j:Job>`

// CancelJob asks the device to cancel a queue entry by setting its state
// to Canceled.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	url := c.base + "/Jobs/JobList/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(cancelJobBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cancel job %s: unexpected status %s", id, resp.Status)
	}
	return nil
}
