package printflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mfphub/internal/ipp"
)

// Printer is the slice of the print driver the controller needs.
type Printer interface {
	SubmitJob(ctx context.Context, doc []byte, docName string, s ipp.Settings) (ipp.Job, error)
	JobProgress(ctx context.Context, id int) (ipp.Progress, error)
	CancelJob(ctx context.Context, id int) error
}

// Controller owns one print flow: it submits the selected file, polls
// job progress while a job is outstanding, and dispatches reducer
// actions. Polling stops as soon as a terminal phase is reached.
type Controller struct {
	printer      Printer
	pollInterval time.Duration

	// OnComplete fires when a job finishes successfully.
	OnComplete func(file File, totalPages int, colorMode string)
	// OnError fires when a job ends in a device or transport failure.
	OnError func(file File, message string)

	mu       sync.Mutex
	state    State
	doc      []byte
	settings ipp.Settings
	stopPoll context.CancelFunc
}

// NewController creates a Controller over the given print driver.
func NewController(p Printer) *Controller {
	return &Controller{printer: p, pollInterval: time.Second}
}

// State returns a copy of the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) dispatch(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	return c.state
}

// SelectFile stages a document for printing. Valid from empty and ready;
// re-selecting replaces the staged file.
func (c *Controller) SelectFile(file File, doc []byte, settings ipp.Settings) {
	c.mu.Lock()
	c.doc = doc
	c.settings = settings
	c.mu.Unlock()
	c.dispatch(Action{Kind: ActionSelectFile, File: file})
}

// RemoveFile discards the staged document.
func (c *Controller) RemoveFile() {
	c.dispatch(Action{Kind: ActionRemoveFile})
	c.mu.Lock()
	c.doc = nil
	c.mu.Unlock()
}

// Submit sends the staged document to the device and starts progress
// polling. A submission failure leaves the flow in ready; the user
// retries explicitly.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != PhaseReady {
		c.mu.Unlock()
		return nil
	}
	doc, settings, file := c.doc, c.settings, c.state.File
	c.mu.Unlock()

	job, err := c.printer.SubmitJob(ctx, doc, file.Name, settings)
	if err != nil {
		return err
	}
	c.dispatch(Action{Kind: ActionStartSend, JobID: job.ID})

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.stopPoll = cancel
	c.mu.Unlock()
	go c.poll(pollCtx, job.ID, file)
	return nil
}

func (c *Controller) poll(ctx context.Context, jobID int, file File) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress, err := c.printer.JobProgress(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fail(file, err.Error())
			return
		}

		switch progress.State {
		case ipp.StateProcessing:
			c.advance(progress)
		case ipp.StateCompleted:
			// A short job can finish between two polls without ever being
			// observed processing. Pass through printing so the completion
			// transition applies from sending too.
			if c.State().Phase == PhaseSending {
				c.dispatch(Action{Kind: ActionStartPrinting, TotalPages: progress.TotalPages})
			}
			state := c.dispatch(Action{Kind: ActionComplete})
			if state.Phase == PhaseComplete && c.OnComplete != nil {
				c.OnComplete(file, state.TotalPages, file.ColorMode)
			}
			return
		case ipp.StateCanceled, ipp.StateAborted:
			msg := progress.ErrorMessage
			if msg == "" {
				msg = "job failed"
			}
			c.fail(file, msg)
			return
		}
	}
}

// advance moves sending to printing once page-count data shows up, and
// updates page progress after that. The reducer's guards keep stray
// progress events from corrupting the state.
func (c *Controller) advance(p ipp.Progress) {
	phase := c.State().Phase
	if phase == PhaseSending && p.TotalPages > 0 {
		c.dispatch(Action{Kind: ActionStartPrinting, TotalPages: p.TotalPages})
		return
	}
	if phase != PhasePrinting {
		return
	}
	page := p.CurrentPage
	if page < 1 {
		page = 1
	}
	pct := 0
	if p.TotalPages > 0 {
		pct = page * 100 / p.TotalPages
		if pct > 100 {
			pct = 100
		}
	}
	c.dispatch(Action{Kind: ActionPrintProgress, Page: page, Progress: pct})
}

func (c *Controller) fail(file File, msg string) {
	state := c.dispatch(Action{Kind: ActionError, Message: msg})
	if state.Phase == PhaseError && c.OnError != nil {
		c.OnError(file, msg)
	}
}

// Cancel returns the flow to ready and issues a best-effort device
// cancel without waiting for it to be acknowledged. The job may have
// already finished; a failed cancel is only logged.
func (c *Controller) Cancel() {
	c.mu.Lock()
	phase := c.state.Phase
	jobID := c.state.JobID
	stop := c.stopPoll
	c.mu.Unlock()

	c.dispatch(Action{Kind: ActionCancel})
	if stop != nil {
		stop()
	}
	if (phase == PhaseSending || phase == PhasePrinting) && jobID != 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.printer.CancelJob(ctx, jobID); err != nil {
				slog.Warn("print job cancel failed", "jobId", jobID, "err", err)
			}
		}()
	}
}

// Reset clears a terminal state back to empty.
func (c *Controller) Reset() {
	c.dispatch(Action{Kind: ActionReset})
	c.mu.Lock()
	c.doc = nil
	c.mu.Unlock()
}
