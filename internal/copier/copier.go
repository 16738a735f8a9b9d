// Package copier composes the scan and print drivers into a two-phase
// copy operation. Errors carry the phase they occurred in, tagged at the
// failure site, so attribution never depends on inspecting sub-operation
// state after the fact.
package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mfphub/internal/document"
	"mfphub/internal/escl"
	"mfphub/internal/ipp"
)

// Phase is the copy flow's active variant.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseScanning Phase = "scanning"
	PhasePrinting Phase = "printing"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// State is the copy flow state exposed to the UI.
type State struct {
	Phase       Phase  `json:"phase"`
	Progress    string `json:"progress,omitempty"`
	CurrentCopy int    `json:"currentCopy,omitempty"`
	TotalCopies int    `json:"totalCopies,omitempty"`
	Copies      int    `json:"copies,omitempty"`
	Message     string `json:"message,omitempty"`
	ErrorPhase  string `json:"errorPhase,omitempty"`
}

// Scanner is the slice of the scan driver the copier needs.
type Scanner interface {
	PerformScan(ctx context.Context, s escl.Settings, onProgress func(escl.ScannerState)) ([]byte, error)
}

// Printer is the slice of the print driver the copier needs.
type Printer interface {
	SubmitJob(ctx context.Context, doc []byte, docName string, s ipp.Settings) (ipp.Job, error)
	JobProgress(ctx context.Context, id int) (ipp.Progress, error)
	CancelJob(ctx context.Context, id int) error
}

// ErrBusy reports that a copy is already running.
var ErrBusy = errors.New("copy already in progress")

// Copier runs scan-then-print copy operations, one at a time. Printing
// never begins before the scan has fully resolved.
type Copier struct {
	scanner      Scanner
	printer      Printer
	pollInterval time.Duration

	mu        sync.Mutex
	state     State
	running   bool
	cancelled atomic.Bool
	cancelRun context.CancelFunc
}

// New creates a Copier over the given drivers.
func New(s Scanner, p Printer) *Copier {
	return &Copier{
		scanner:      s,
		printer:      p,
		pollInterval: time.Second,
		state:        State{Phase: PhaseIdle},
	}
}

// State returns a copy of the current flow state.
func (c *Copier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState replaces the state unless the run has been cancelled; after
// cancellation no further progress is reported.
func (c *Copier) setState(s State) {
	if c.cancelled.Load() {
		return
	}
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start begins a copy run in the background. Each run starts from a
// fresh state, so a stale error from a previous attempt cannot bleed
// into this one's phase attribution.
func (c *Copier) Start(ctx context.Context, scanSettings escl.Settings, printSettings ipp.Settings, copies int) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBusy
	}
	if copies < 1 {
		copies = 1
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.running = true
	c.cancelRun = cancel
	c.cancelled.Store(false)
	c.state = State{Phase: PhaseScanning, Progress: "Preparing scanner"}
	c.mu.Unlock()

	go c.run(runCtx, scanSettings, printSettings, copies)
	return nil
}

// Cancel requests cooperative cancellation: the flag short-circuits
// further state updates and the context aborts in-flight device calls.
func (c *Copier) Cancel() {
	c.cancelled.Store(true)
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Copier) run(ctx context.Context, scanSettings escl.Settings, printSettings ipp.Settings, copies int) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	doc, err := c.scanner.PerformScan(ctx, scanSettings, func(s escl.ScannerState) {
		c.setState(State{Phase: PhaseScanning, Progress: scanProgressText(s)})
	})
	if c.bailIfCancelled() {
		return
	}
	if err != nil {
		c.fail("scan", err)
		return
	}

	// The device prints PDF; a JPEG scan gets wrapped before submission.
	if scanSettings.Format == escl.FormatJPEG {
		doc, err = document.JPEGToPDF([][]byte{doc}, scanSettings.Resolution)
		if err != nil {
			c.fail("scan", fmt.Errorf("package scanned page: %w", err))
			return
		}
	}
	if c.bailIfCancelled() {
		return
	}

	c.setState(State{Phase: PhasePrinting, CurrentCopy: 1, TotalCopies: copies})
	printSettings.Copies = copies
	job, err := c.printer.SubmitJob(ctx, doc, "Copy", printSettings)
	if err != nil {
		c.fail("print", err)
		return
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.abandonJob(job.ID)
			c.bailIfCancelled()
			return
		case <-ticker.C:
		}

		progress, err := c.printer.JobProgress(ctx, job.ID)
		if c.bailIfCancelled() {
			c.abandonJob(job.ID)
			return
		}
		if err != nil {
			c.fail("print", err)
			return
		}
		switch progress.State {
		case ipp.StateCompleted:
			c.setState(State{Phase: PhaseComplete, Copies: copies})
			return
		case ipp.StateCanceled, ipp.StateAborted:
			msg := progress.ErrorMessage
			if msg == "" {
				msg = "job failed"
			}
			c.fail("print", errors.New(msg))
			return
		case ipp.StateProcessing:
			c.setState(State{
				Phase:       PhasePrinting,
				CurrentCopy: currentCopy(progress, copies),
				TotalCopies: copies,
			})
		}
	}
}

// bailIfCancelled returns the flow to idle silently when the run was
// cancelled. Cancellation is not an error.
func (c *Copier) bailIfCancelled() bool {
	if !c.cancelled.Load() {
		return false
	}
	c.mu.Lock()
	c.state = State{Phase: PhaseIdle}
	c.mu.Unlock()
	return true
}

// fail records a terminal error attributed to the phase whose operation
// raised it.
func (c *Copier) fail(phase string, err error) {
	if c.bailIfCancelled() {
		return
	}
	c.setState(State{Phase: PhaseError, Message: err.Error(), ErrorPhase: phase})
}

func (c *Copier) abandonJob(jobID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.printer.CancelJob(ctx, jobID); err != nil {
		slog.Warn("copy print cancel failed", "jobId", jobID, "err", err)
	}
}

func scanProgressText(s escl.ScannerState) string {
	switch s {
	case escl.ScannerProcessing:
		return "Scanning document"
	case escl.ScannerIdle:
		return "Finishing scan"
	default:
		return "Waiting for scanner"
	}
}

// currentCopy estimates which copy is being printed from the page
// counters when the device reports totals.
func currentCopy(p ipp.Progress, copies int) int {
	if p.TotalPages <= 0 || p.CurrentPage <= 0 {
		return 1
	}
	cc := (p.CurrentPage*copies + p.TotalPages - 1) / p.TotalPages
	if cc < 1 {
		cc = 1
	}
	if cc > copies {
		cc = copies
	}
	return cc
}
