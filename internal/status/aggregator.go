// Package status merges device telemetry and scanner state into one
// display status with priority-ordered alerting. It is the single
// source of truth for the UI's badges and alert drawer, exposed as a
// pull-based snapshot/subscribe pair.
package status

import (
	"context"
	"sync"
	"time"

	"mfphub/internal/escl"
	"mfphub/internal/ews"
)

// DisplayStatus is the single badge shown for the device.
type DisplayStatus string

const (
	StatusReady    DisplayStatus = "ready"
	StatusPrinting DisplayStatus = "printing"
	StatusScanning DisplayStatus = "scanning"
	StatusCopying  DisplayStatus = "copying"
	StatusWarning  DisplayStatus = "warning"
	StatusError    DisplayStatus = "error"
	StatusOffline  DisplayStatus = "offline"
)

// DisplayAlert is a device alert translated for display.
type DisplayAlert struct {
	ID          string       `json:"id"`
	Severity    ews.Severity `json:"severity"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
}

// Snapshot is one coherent view of everything the UI shows.
type Snapshot struct {
	Status         DisplayStatus    `json:"status"`
	Alerts         []DisplayAlert   `json:"alerts"`
	Ink            []ews.InkLevel   `json:"ink"`
	Paper          ews.PaperTray    `json:"paper"`
	Printer        ews.PrinterStatus `json:"printer"`
	Scanner        escl.Status      `json:"scanner"`
	Jobs           []ews.Job        `json:"jobs"`
	Offline        bool             `json:"offline"`
	DrawerExpanded bool             `json:"drawerExpanded"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Telemetry is the slice of the EWS client the aggregator queries.
type Telemetry interface {
	PrinterStatus(ctx context.Context) (ews.PrinterStatus, error)
	InkLevels(ctx context.Context) ([]ews.InkLevel, error)
	Paper(ctx context.Context) (ews.PaperTray, error)
	Jobs(ctx context.Context) ([]ews.Job, error)
}

// ScannerQuerier is the slice of the scan driver the aggregator queries.
type ScannerQuerier interface {
	Status(ctx context.Context) (escl.Status, error)
}

// Aggregator fans out to the telemetry client and scan driver on tiered
// cadences and derives the display model. Construct once per session.
type Aggregator struct {
	ews  Telemetry
	scan ScannerQuerier

	mu            sync.Mutex
	snap          Snapshot
	expanded      bool
	hadErrorAlert bool
	statusFailed  bool
	inkFailed     bool
	paperFailed   bool
	scannerFailed bool
	subs          map[int]chan struct{}
	nextSub       int
}

// New creates an Aggregator over the given query collaborators.
func New(t Telemetry, s ScannerQuerier) *Aggregator {
	return &Aggregator{
		ews:  t,
		scan: s,
		snap: Snapshot{Status: StatusReady},
		subs: make(map[int]chan struct{}),
	}
}

// Snapshot returns a copy of the current merged view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// Subscribe registers for change notifications. The returned channel
// receives one signal per recompute; call the cancel function to stop.
func (a *Aggregator) Subscribe() (<-chan struct{}, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSub
	a.nextSub++
	ch := make(chan struct{}, 1)
	a.subs[id] = ch
	return ch, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// SetExpanded records whether the status panel is open; polling tiers
// tighten while it is.
func (a *Aggregator) SetExpanded(v bool) {
	a.mu.Lock()
	a.expanded = v
	a.mu.Unlock()
}

// CollapseDrawer acknowledges the auto-expanded alert drawer.
func (a *Aggregator) CollapseDrawer() {
	a.mu.Lock()
	a.snap.DrawerExpanded = false
	a.mu.Unlock()
}

// Run polls until ctx is cancelled. Intervals are re-evaluated on every
// cycle as a function of (active job, panel expanded), never fixed.
func (a *Aggregator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loop := func(step func(context.Context), interval func() time.Duration) {
		defer wg.Done()
		for {
			step(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval()):
			}
		}
	}
	wg.Add(3)
	go loop(a.pollStatus, a.statusInterval)
	go loop(a.pollSupplies, a.suppliesInterval)
	go loop(a.pollScanner, a.scannerInterval)
	wg.Wait()
}

func (a *Aggregator) statusInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hasActiveJob(a.snap.Jobs) {
		return 2 * time.Second
	}
	if a.expanded {
		return 5 * time.Second
	}
	return 10 * time.Second
}

func (a *Aggregator) suppliesInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.expanded {
		return 15 * time.Second
	}
	return 45 * time.Second
}

func (a *Aggregator) scannerInterval() time.Duration {
	return 3 * time.Second
}

// pollStatus fetches printer status and the job queue, then recomputes.
func (a *Aggregator) pollStatus(ctx context.Context) {
	ps, psErr := a.ews.PrinterStatus(ctx)
	jobs, jobsErr := a.ews.Jobs(ctx)

	a.mu.Lock()
	a.statusFailed = psErr != nil && jobsErr != nil
	if psErr == nil {
		a.snap.Printer = ps
	}
	if jobsErr == nil {
		a.snap.Jobs = jobs
	}
	a.recomputeLocked()
	a.mu.Unlock()
}

// pollSupplies fetches ink and paper, then recomputes.
func (a *Aggregator) pollSupplies(ctx context.Context) {
	ink, inkErr := a.ews.InkLevels(ctx)
	paper, paperErr := a.ews.Paper(ctx)

	a.mu.Lock()
	a.inkFailed = inkErr != nil
	a.paperFailed = paperErr != nil
	if inkErr == nil {
		a.snap.Ink = ink
	}
	if paperErr == nil {
		a.snap.Paper = paper
	}
	a.recomputeLocked()
	a.mu.Unlock()
}

// pollScanner fetches the device-wide scanner state, then recomputes.
func (a *Aggregator) pollScanner(ctx context.Context) {
	st, err := a.scan.Status(ctx)

	a.mu.Lock()
	a.scannerFailed = err != nil
	if err == nil {
		a.snap.Scanner = st
	}
	a.recomputeLocked()
	a.mu.Unlock()
}

// recomputeLocked derives the display fields from the latest raw data.
// The drawer auto-expands on the transition into having an error alert,
// once per transition, not on every poll while the error persists.
func (a *Aggregator) recomputeLocked() {
	offline := a.statusFailed && a.inkFailed && a.paperFailed && a.scannerFailed
	a.snap.Offline = offline
	a.snap.Alerts = TranslateAlerts(a.snap.Printer.Alerts)
	a.snap.Status = DeriveStatus(a.snap.Printer.Alerts, a.snap.Jobs, a.snap.Scanner, offline)
	a.snap.UpdatedAt = time.Now()

	hasError := hasSeverity(a.snap.Printer.Alerts, ews.SeverityError)
	if hasError && !a.hadErrorAlert {
		a.snap.DrawerExpanded = true
	}
	a.hadErrorAlert = hasError

	for _, ch := range a.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// DeriveStatus computes the display status by strict priority: error
// alert, then offline, then the category of a processing job, then the
// scanner device state alone, then warning alert, then ready.
func DeriveStatus(alerts []ews.Alert, jobs []ews.Job, scanner escl.Status, offline bool) DisplayStatus {
	if hasSeverity(alerts, ews.SeverityError) {
		return StatusError
	}
	if offline {
		return StatusOffline
	}
	for _, j := range jobs {
		if j.State != ews.JobProcessing {
			continue
		}
		switch j.Category {
		case ews.JobCopy:
			return StatusCopying
		case ews.JobScan:
			return StatusScanning
		default:
			return StatusPrinting
		}
	}
	// Scans started at the device may never show up in the job list.
	if scanner.State == escl.ScannerProcessing {
		return StatusScanning
	}
	if hasSeverity(alerts, ews.SeverityWarning) {
		return StatusWarning
	}
	return StatusReady
}

func hasSeverity(alerts []ews.Alert, sev ews.Severity) bool {
	for _, a := range alerts {
		if a.Severity == sev {
			return true
		}
	}
	return false
}

func hasActiveJob(jobs []ews.Job) bool {
	for _, j := range jobs {
		if j.State == ews.JobProcessing || j.State == ews.JobPending {
			return true
		}
	}
	return false
}

// alertTable translates raw device alert IDs into display text.
var alertTable = map[string]DisplayAlert{
	"mediaJam":           {Title: "Paper jam", Description: "Clear the jam and press OK on the printer"},
	"trayEmpty":          {Title: "Out of paper", Description: "Load paper into the input tray"},
	"mediaEmpty":         {Title: "Out of paper", Description: "Load paper into the input tray"},
	"cartridgeLow":       {Title: "Ink low", Description: "Replace the cartridge soon"},
	"cartridgeVeryLow":   {Title: "Ink very low", Description: "Replace the cartridge soon"},
	"cartridgeEmpty":     {Title: "Out of ink", Description: "Replace the cartridge to continue printing"},
	"cartridgeMissing":   {Title: "Cartridge missing", Description: "Install the missing cartridge"},
	"doorOpen":           {Title: "Door open", Description: "Close the printer door"},
	"carriageJam":        {Title: "Carriage jam", Description: "Clear the carriage path and press OK"},
	"scannerError":       {Title: "Scanner error", Description: "Restart the printer if the problem persists"},
	"calibrationRequired": {Title: "Calibration needed", Description: "Run printhead alignment from the printer menu"},
}

// TranslateAlerts maps raw alerts through the lookup table. Unrecognized
// IDs show the raw ID as title with a generic description.
func TranslateAlerts(alerts []ews.Alert) []DisplayAlert {
	var out []DisplayAlert
	for _, a := range alerts {
		da, ok := alertTable[a.ID]
		if !ok {
			da = DisplayAlert{Title: a.ID, Description: "Check the printer for details"}
		}
		da.ID = a.ID
		da.Severity = a.Severity
		out = append(out, da)
	}
	return out
}
