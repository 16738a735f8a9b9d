package ipp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OpenPrinting/goipp"
)

func TestStateFromCode(t *testing.T) {
	tests := []struct {
		code int
		want JobState
	}{
		{3, StatePending},
		{4, StatePending},
		{5, StateProcessing},
		{6, StateProcessing},
		{7, StateCanceled},
		{8, StateAborted},
		{9, StateCompleted},
		{0, StatePending},
		{42, StatePending},
	}
	for _, tt := range tests {
		if got := StateFromCode(tt.code); got != tt.want {
			t.Errorf("StateFromCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for state, want := range map[JobState]bool{
		StatePending:    false,
		StateProcessing: false,
		StateCompleted:  true,
		StateCanceled:   true,
		StateAborted:    true,
	} {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

// ippHandler decodes the request message, hands it to respond along with
// any trailing document bytes, and writes the encoded reply.
func ippHandler(t *testing.T, respond func(req *goipp.Message, doc []byte) *goipp.Message) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req goipp.Message
		if err := req.Decode(r.Body); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		doc, _ := io.ReadAll(r.Body)
		rmsg := respond(&req, doc)
		payload, err := rmsg.EncodeBytes()
		if err != nil {
			t.Errorf("encode response: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/ipp")
		w.Write(payload)
	})
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("device.local", "tester")
	c.url = srv.URL
	return c
}

func TestSubmitJob(t *testing.T) {
	var gotDoc []byte
	var gotReq *goipp.Message
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		gotReq, gotDoc = req, doc
		rmsg := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
		rmsg.Job.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(77)))
		rmsg.Job.Add(goipp.MakeAttribute("job-uri", goipp.TagURI, goipp.String("ipp://device.local/jobs/77")))
		return rmsg
	}))

	job, err := c.SubmitJob(context.Background(), []byte("document bytes"), "report.pdf", Settings{
		Copies: 2, ColorMode: "color", Duplex: true, Quality: "best", MediaSize: "a4",
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if job.ID != 77 {
		t.Errorf("job.ID = %d, want 77", job.ID)
	}
	if string(gotDoc) != "document bytes" {
		t.Errorf("document payload = %q", gotDoc)
	}
	if goipp.Op(gotReq.Code) != goipp.OpPrintJob {
		t.Errorf("operation = %v, want Print-Job", goipp.Op(gotReq.Code))
	}

	attrs := map[string]string{}
	for _, a := range gotReq.Job {
		attrs[a.Name] = a.Values[0].V.String()
	}
	for name, want := range map[string]string{
		"copies":           "2",
		"print-color-mode": "color",
		"sides":            "two-sided-long-edge",
		"media":            "iso_a4_210x297mm",
	} {
		if attrs[name] != want {
			t.Errorf("job attribute %s = %q, want %q", name, attrs[name], want)
		}
	}
}

func TestSubmitJobDefaults(t *testing.T) {
	var gotReq *goipp.Message
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		gotReq = req
		rmsg := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
		rmsg.Job.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(1)))
		return rmsg
	}))

	// Zero-value settings: unknown media and quality fall back, copies
	// clamp to one, color mode defaults to monochrome.
	if _, err := c.SubmitJob(context.Background(), []byte("x"), "doc", Settings{MediaSize: "nonsense"}); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	attrs := map[string]string{}
	for _, a := range gotReq.Job {
		attrs[a.Name] = a.Values[0].V.String()
	}
	if attrs["copies"] != "1" {
		t.Errorf("copies = %q, want 1", attrs["copies"])
	}
	if attrs["print-color-mode"] != "monochrome" {
		t.Errorf("print-color-mode = %q, want monochrome", attrs["print-color-mode"])
	}
	if attrs["sides"] != "one-sided" {
		t.Errorf("sides = %q, want one-sided", attrs["sides"])
	}
	if attrs["media"] != defaultMedia {
		t.Errorf("media = %q, want %q", attrs["media"], defaultMedia)
	}
}

func TestSubmitJobBusy(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		return goipp.NewResponse(goipp.DefaultVersion, goipp.Status(0x0507), req.RequestID)
	}))
	_, err := c.SubmitJob(context.Background(), []byte("x"), "doc", Settings{})
	if err == nil || !strings.Contains(err.Error(), "busy") {
		t.Errorf("err = %v, want busy message", err)
	}
}

func TestSubmitJobMissingJobAttributes(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		return goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
	}))
	_, err := c.SubmitJob(context.Background(), []byte("x"), "doc", Settings{})
	if err == nil || !strings.Contains(err.Error(), "missing job attributes") {
		t.Errorf("err = %v, want missing job attributes error", err)
	}
}

func TestJobProgress(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		rmsg := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
		rmsg.Job.Add(goipp.MakeAttribute("job-state", goipp.TagEnum, goipp.Integer(5)))
		rmsg.Job.Add(goipp.MakeAttribute("job-impressions-completed", goipp.TagInteger, goipp.Integer(3)))
		rmsg.Job.Add(goipp.MakeAttribute("job-impressions", goipp.TagInteger, goipp.Integer(10)))
		return rmsg
	}))
	p, err := c.JobProgress(context.Background(), 5)
	if err != nil {
		t.Fatalf("JobProgress: %v", err)
	}
	want := Progress{State: StateProcessing, CurrentPage: 3, TotalPages: 10}
	if p != want {
		t.Errorf("progress = %+v, want %+v", p, want)
	}
}

// When impressions counters are absent the media-sheets counters serve
// as page progress.
func TestJobProgressMediaSheetsFallback(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		rmsg := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
		rmsg.Job.Add(goipp.MakeAttribute("job-state", goipp.TagEnum, goipp.Integer(6)))
		rmsg.Job.Add(goipp.MakeAttribute("job-media-sheets-completed", goipp.TagInteger, goipp.Integer(2)))
		rmsg.Job.Add(goipp.MakeAttribute("job-media-sheets", goipp.TagInteger, goipp.Integer(4)))
		return rmsg
	}))
	p, err := c.JobProgress(context.Background(), 5)
	if err != nil {
		t.Fatalf("JobProgress: %v", err)
	}
	if p.CurrentPage != 2 || p.TotalPages != 4 {
		t.Errorf("pages = %d/%d, want 2/4", p.CurrentPage, p.TotalPages)
	}
}

func TestJobProgressAbortedMessage(t *testing.T) {
	tests := []struct {
		name    string
		attrs   func(rmsg *goipp.Message)
		wantMsg string
	}{
		{
			"state_message",
			func(rmsg *goipp.Message) {
				rmsg.Job.Add(goipp.MakeAttribute("job-state-message", goipp.TagText, goipp.String("out of paper")))
			},
			"out of paper",
		},
		{
			"reasons_fallback",
			func(rmsg *goipp.Message) {
				a := goipp.MakeAttribute("job-state-reasons", goipp.TagKeyword, goipp.String("aborted-by-system"))
				a.Values.Add(goipp.TagKeyword, goipp.String("resources-are-not-ready"))
				rmsg.Job.Add(a)
			},
			"aborted-by-system, resources-are-not-ready",
		},
		{
			"generic_fallback",
			func(rmsg *goipp.Message) {},
			"job failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
				rmsg := goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
				rmsg.Job.Add(goipp.MakeAttribute("job-state", goipp.TagEnum, goipp.Integer(8)))
				tt.attrs(rmsg)
				return rmsg
			}))
			p, err := c.JobProgress(context.Background(), 9)
			if err != nil {
				t.Fatalf("JobProgress: %v", err)
			}
			if p.State != StateAborted {
				t.Errorf("state = %s, want aborted", p.State)
			}
			if p.ErrorMessage != tt.wantMsg {
				t.Errorf("error message = %q, want %q", p.ErrorMessage, tt.wantMsg)
			}
		})
	}
}

func TestJobProgressUnknownJob(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		return goipp.NewResponse(goipp.DefaultVersion, goipp.StatusOk, req.RequestID)
	}))
	_, err := c.JobProgress(context.Background(), 404)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found error", err)
	}
}

// Cancelling a job the device already forgot is success, not an error.
func TestCancelJobGoneIsSuccess(t *testing.T) {
	for _, status := range []goipp.Status{goipp.StatusOk, statusNotFound, statusGone} {
		c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
			return goipp.NewResponse(goipp.DefaultVersion, status, req.RequestID)
		}))
		if err := c.CancelJob(context.Background(), 7); err != nil {
			t.Errorf("CancelJob with status %s = %v, want nil", status, err)
		}
	}
}

func TestCancelJobHardError(t *testing.T) {
	c := testClient(t, ippHandler(t, func(req *goipp.Message, doc []byte) *goipp.Message {
		return goipp.NewResponse(goipp.DefaultVersion, goipp.Status(0x0506), req.RequestID)
	}))
	if err := c.CancelJob(context.Background(), 7); err == nil {
		t.Error("expected error for not-accepting-jobs status")
	}
}
