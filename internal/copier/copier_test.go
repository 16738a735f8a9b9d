package copier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mfphub/internal/escl"
	"mfphub/internal/ipp"
)

type fakeScanner struct {
	doc []byte
	err error
}

func (f *fakeScanner) PerformScan(ctx context.Context, s escl.Settings, onProgress func(escl.ScannerState)) ([]byte, error) {
	if onProgress != nil {
		onProgress(escl.ScannerProcessing)
	}
	return f.doc, f.err
}

type fakePrinter struct {
	mu        sync.Mutex
	submitErr error
	script    []ipp.Progress
	pos       int
	cancels   int
}

func (f *fakePrinter) SubmitJob(ctx context.Context, doc []byte, docName string, s ipp.Settings) (ipp.Job, error) {
	if f.submitErr != nil {
		return ipp.Job{}, f.submitErr
	}
	return ipp.Job{ID: 7}, nil
}

func (f *fakePrinter) JobProgress(ctx context.Context, id int) (ipp.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.script[f.pos]
	if f.pos < len(f.script)-1 {
		f.pos++
	}
	return p, nil
}

func (f *fakePrinter) CancelJob(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

// pdfSettings skip the JPEG wrapping step so tests exercise the flow,
// not the converter.
func pdfSettings() escl.Settings {
	s := escl.DefaultSettings()
	s.Format = escl.FormatPDF
	return s
}

func newTestCopier(s Scanner, p Printer) *Copier {
	c := New(s, p)
	c.pollInterval = time.Millisecond
	return c
}

func waitForPhase(t *testing.T, c *Copier, want Phase) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.State(); s.Phase == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, stuck at %s", want, c.State().Phase)
	return State{}
}

func TestCopyCompletes(t *testing.T) {
	scanner := &fakeScanner{doc: []byte("%PDF scanned")}
	printer := &fakePrinter{script: []ipp.Progress{
		{State: ipp.StateProcessing, CurrentPage: 1, TotalPages: 2},
		{State: ipp.StateCompleted},
	}}
	c := newTestCopier(scanner, printer)

	if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := waitForPhase(t, c, PhaseComplete)
	if s.Copies != 2 {
		t.Errorf("copies = %d, want 2", s.Copies)
	}
}

// Failures carry the phase whose operation raised them; a scan failure
// is never attributed to printing and vice versa.
func TestCopyErrorPhaseAttribution(t *testing.T) {
	t.Run("scan_failure", func(t *testing.T) {
		scanner := &fakeScanner{err: errors.New("scanner jammed")}
		printer := &fakePrinter{}
		c := newTestCopier(scanner, printer)

		if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
			t.Fatalf("Start: %v", err)
		}
		s := waitForPhase(t, c, PhaseError)
		if s.ErrorPhase != "scan" {
			t.Errorf("error phase = %q, want scan", s.ErrorPhase)
		}
		if s.Message != "scanner jammed" {
			t.Errorf("message = %q", s.Message)
		}
	})

	t.Run("print_failure", func(t *testing.T) {
		scanner := &fakeScanner{doc: []byte("%PDF scanned")}
		printer := &fakePrinter{submitErr: errors.New("printer offline")}
		c := newTestCopier(scanner, printer)

		if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
			t.Fatalf("Start: %v", err)
		}
		s := waitForPhase(t, c, PhaseError)
		if s.ErrorPhase != "print" {
			t.Errorf("error phase = %q, want print", s.ErrorPhase)
		}
	})

	t.Run("print_aborted", func(t *testing.T) {
		scanner := &fakeScanner{doc: []byte("%PDF scanned")}
		printer := &fakePrinter{script: []ipp.Progress{
			{State: ipp.StateAborted, ErrorMessage: "out of paper"},
		}}
		c := newTestCopier(scanner, printer)

		if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
			t.Fatalf("Start: %v", err)
		}
		s := waitForPhase(t, c, PhaseError)
		if s.ErrorPhase != "print" || s.Message != "out of paper" {
			t.Errorf("state = %+v, want print / out of paper", s)
		}
	})
}

// A fresh run starts from a clean state; the previous run's error does
// not survive into the new attempt.
func TestCopyFreshStatePerRun(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("scanner jammed")}
	printer := &fakePrinter{script: []ipp.Progress{{State: ipp.StateCompleted}}}
	c := newTestCopier(scanner, printer)

	if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForPhase(t, c, PhaseError)

	scanner.err = nil
	scanner.doc = []byte("%PDF scanned")
	// The run goroutine may still be winding down; retry past ErrBusy.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrBusy) || !time.Now().Before(deadline) {
			t.Fatalf("second Start: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := waitForPhase(t, c, PhaseComplete)
	if s.Message != "" || s.ErrorPhase != "" {
		t.Errorf("stale error leaked into new run: %+v", s)
	}
}

func TestCopyBusyGuard(t *testing.T) {
	scanner := &fakeScanner{doc: []byte("%PDF scanned")}
	printer := &fakePrinter{script: []ipp.Progress{
		{State: ipp.StateProcessing},
	}}
	c := newTestCopier(scanner, printer)

	if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
	c.Cancel()
}

// Cancellation returns to idle silently; it is not an error and leaves
// no message behind.
func TestCopyCancelReturnsToIdle(t *testing.T) {
	scanner := &fakeScanner{doc: []byte("%PDF scanned")}
	printer := &fakePrinter{script: []ipp.Progress{
		{State: ipp.StateProcessing, CurrentPage: 1, TotalPages: 10},
	}}
	c := newTestCopier(scanner, printer)

	if err := c.Start(context.Background(), pdfSettings(), ipp.Settings{}, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForPhase(t, c, PhasePrinting)
	c.Cancel()

	s := waitForPhase(t, c, PhaseIdle)
	if s.Message != "" || s.ErrorPhase != "" {
		t.Errorf("cancel left residue: %+v", s)
	}
}

func TestCurrentCopyEstimate(t *testing.T) {
	tests := []struct {
		name   string
		p      ipp.Progress
		copies int
		want   int
	}{
		{"no_totals", ipp.Progress{}, 3, 1},
		{"first_copy", ipp.Progress{CurrentPage: 1, TotalPages: 4}, 2, 1},
		{"second_copy", ipp.Progress{CurrentPage: 3, TotalPages: 4}, 2, 2},
		{"clamped", ipp.Progress{CurrentPage: 99, TotalPages: 4}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := currentCopy(tt.p, tt.copies); got != tt.want {
				t.Errorf("currentCopy(%+v, %d) = %d, want %d", tt.p, tt.copies, got, tt.want)
			}
		})
	}
}
