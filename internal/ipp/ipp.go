// Package ipp submits and monitors print jobs on the device's IPP
// endpoint using the OpenPrinting wire codec.
package ipp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OpenPrinting/goipp"
)

// JobState is the canonical print-job state derived from the IPP
// job-state enum.
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateCanceled   JobState = "canceled"
	StateAborted    JobState = "aborted"
)

// StateFromCode maps an IPP job-state code (RFC 8011 section 5.3.7) to
// the canonical taxonomy. Unknown codes map to pending.
func StateFromCode(code int) JobState {
	switch code {
	case 3, 4:
		return StatePending
	case 5, 6:
		return StateProcessing
	case 7:
		return StateCanceled
	case 8:
		return StateAborted
	case 9:
		return StateCompleted
	default:
		return StatePending
	}
}

// Terminal reports whether the state ends a job's lifecycle.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateCanceled || s == StateAborted
}

// Settings are the user-facing print options mapped onto IPP job
// attributes at submission.
type Settings struct {
	Copies    int
	ColorMode string // "color" or "bw"
	Duplex    bool
	Quality   string // "draft", "normal", "best"
	MediaSize string // key into the media size table
}

// Job identifies a submitted print job.
type Job struct {
	ID  int
	URI string
}

// Progress is one observation of a job's attributes.
type Progress struct {
	State        JobState
	CurrentPage  int
	TotalPages   int
	ErrorMessage string
}

// mediaSizes maps user-facing size keys to IPP media size names.
// Unknown keys fall back to US letter.
var mediaSizes = map[string]string{
	"letter": "na_letter_8.5x11in",
	"legal":  "na_legal_8.5x14in",
	"a4":     "iso_a4_210x297mm",
	"a5":     "iso_a5_148x210mm",
	"4x6":    "na_index-4x6_4x6in",
	"5x7":    "na_5x7_5x7in",
}

const defaultMedia = "na_letter_8.5x11in"

// printQuality maps quality keys to the protocol's ordinal values.
var printQuality = map[string]int{
	"draft":  3,
	"normal": 4,
	"best":   5,
}

// statusMessages translates known device refusal codes into user-facing
// text. Codes are the RFC 8011 status values.
var statusMessages = map[goipp.Status]string{
	0x0507: "Printer is busy, try again in a moment",         // server-error-busy
	0x0506: "Printer is not accepting jobs right now",        // server-error-not-accepting-jobs
	0x040a: "The printer does not support this file format",  // client-error-document-format-not-supported
	0x040b: "The printer rejected one of the print settings", // client-error-attributes-or-values-not-supported
}

const (
	statusNotFound goipp.Status = 0x0406 // client-error-not-found
	statusGone     goipp.Status = 0x0407 // client-error-gone
)

// Client submits and monitors print jobs on one device.
type Client struct {
	url   string // HTTP endpoint
	uri   string // printer-uri attribute value
	user  string
	http  *http.Client
	reqID atomic.Uint32
}

// NewClient creates a Client for the device at host. The requesting user
// name is sent with every operation.
func NewClient(host, user string) *Client {
	if user == "" {
		user = "mfphub"
	}
	return &Client{
		url:  "http://" + host + ":631/ipp/print",
		uri:  "ipp://" + host + "/ipp/print",
		user: user,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(op goipp.Op) *goipp.Message {
	msg := goipp.NewRequest(goipp.DefaultVersion, op, c.reqID.Add(1))
	msg.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	msg.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	msg.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(c.uri)))
	msg.Operation.Add(goipp.MakeAttribute("requesting-user-name", goipp.TagName, goipp.String(c.user)))
	return msg
}

// roundTrip encodes the request, appends the optional document payload,
// posts it and decodes the response message.
func (c *Client) roundTrip(ctx context.Context, msg *goipp.Message, doc []byte) (*goipp.Message, error) {
	payload, err := msg.EncodeBytes()
	if err != nil {
		return nil, err
	}
	if doc != nil {
		payload = append(payload, doc...)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ipp")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipp request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipp request: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipp request: %w", err)
	}
	var rmsg goipp.Message
	if err := rmsg.DecodeBytes(body); err != nil {
		return nil, fmt.Errorf("decode ipp response: %w", err)
	}
	return &rmsg, nil
}

// statusError converts a non-successful IPP status into a user-facing
// error through the known-reason table, falling back to a generic
// templated message.
func statusError(status goipp.Status) error {
	if msg, ok := statusMessages[status]; ok {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("Printer error: %s", status)
}

// successful reports whether the IPP status is in the successful-* range.
func successful(status goipp.Status) bool {
	return status < 0x0100
}

// SubmitJob sends a Print-Job operation with the document payload. A
// successful response without job attributes is a hard error.
func (c *Client) SubmitJob(ctx context.Context, doc []byte, docName string, s Settings) (Job, error) {
	msg := c.newRequest(goipp.OpPrintJob)
	msg.Operation.Add(goipp.MakeAttribute("job-name", goipp.TagName, goipp.String(docName)))
	msg.Operation.Add(goipp.MakeAttribute("document-name", goipp.TagName, goipp.String(docName)))
	msg.Operation.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String("application/octet-stream")))

	copies := s.Copies
	if copies < 1 {
		copies = 1
	}
	colorMode := "monochrome"
	if s.ColorMode == "color" {
		colorMode = "color"
	}
	sides := "one-sided"
	if s.Duplex {
		sides = "two-sided-long-edge"
	}
	quality, ok := printQuality[s.Quality]
	if !ok {
		quality = printQuality["normal"]
	}
	media, ok := mediaSizes[s.MediaSize]
	if !ok {
		media = defaultMedia
	}

	msg.Job.Add(goipp.MakeAttribute("copies", goipp.TagInteger, goipp.Integer(copies)))
	msg.Job.Add(goipp.MakeAttribute("print-color-mode", goipp.TagKeyword, goipp.String(colorMode)))
	msg.Job.Add(goipp.MakeAttribute("sides", goipp.TagKeyword, goipp.String(sides)))
	msg.Job.Add(goipp.MakeAttribute("print-quality", goipp.TagEnum, goipp.Integer(quality)))
	msg.Job.Add(goipp.MakeAttribute("media", goipp.TagKeyword, goipp.String(media)))

	rmsg, err := c.roundTrip(ctx, msg, doc)
	if err != nil {
		return Job{}, err
	}
	if status := goipp.Status(rmsg.Code); !successful(status) {
		return Job{}, statusError(status)
	}
	id, ok := attrInt(rmsg.Job, "job-id")
	if !ok {
		return Job{}, fmt.Errorf("device response missing job attributes")
	}
	uri, _ := attrString(rmsg.Job, "job-uri")
	return Job{ID: id, URI: uri}, nil
}

var progressAttributes = []string{
	"job-state",
	"job-state-reasons",
	"job-state-message",
	"job-impressions-completed",
	"job-media-sheets-completed",
	"job-impressions",
	"job-media-sheets",
}

// JobProgress queries the job's attributes and maps them onto the
// canonical progress model. A response without job attributes means the
// job is unknown to the device, a hard error.
func (c *Client) JobProgress(ctx context.Context, id int) (Progress, error) {
	msg := c.newRequest(goipp.OpGetJobAttributes)
	msg.Operation.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(id)))
	ra := goipp.MakeAttribute("requested-attributes", goipp.TagKeyword, goipp.String(progressAttributes[0]))
	for _, name := range progressAttributes[1:] {
		ra.Values.Add(goipp.TagKeyword, goipp.String(name))
	}
	msg.Operation.Add(ra)

	rmsg, err := c.roundTrip(ctx, msg, nil)
	if err != nil {
		return Progress{}, err
	}
	if status := goipp.Status(rmsg.Code); !successful(status) {
		return Progress{}, statusError(status)
	}
	if len(rmsg.Job) == 0 {
		return Progress{}, fmt.Errorf("job %d not found", id)
	}

	code, _ := attrInt(rmsg.Job, "job-state")
	p := Progress{State: StateFromCode(code)}

	// Page progress comes from impressions when available, with
	// media-sheets as the fallback counter.
	if v, ok := attrInt(rmsg.Job, "job-impressions-completed"); ok {
		p.CurrentPage = v
	} else if v, ok := attrInt(rmsg.Job, "job-media-sheets-completed"); ok {
		p.CurrentPage = v
	}
	if v, ok := attrInt(rmsg.Job, "job-impressions"); ok {
		p.TotalPages = v
	} else if v, ok := attrInt(rmsg.Job, "job-media-sheets"); ok {
		p.TotalPages = v
	}

	if p.State == StateCanceled || p.State == StateAborted {
		if m, ok := attrString(rmsg.Job, "job-state-message"); ok && m != "" {
			p.ErrorMessage = m
		} else if reasons := attrStrings(rmsg.Job, "job-state-reasons"); len(reasons) > 0 {
			p.ErrorMessage = strings.Join(reasons, ", ")
		} else {
			p.ErrorMessage = "job failed"
		}
	}
	return p, nil
}

// CancelJob issues a Cancel-Job. A job the device no longer knows about
// counts as already cancelled.
func (c *Client) CancelJob(ctx context.Context, id int) error {
	msg := c.newRequest(goipp.OpCancelJob)
	msg.Operation.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(id)))

	rmsg, err := c.roundTrip(ctx, msg, nil)
	if err != nil {
		return err
	}
	status := goipp.Status(rmsg.Code)
	if successful(status) || status == statusNotFound || status == statusGone {
		return nil
	}
	return statusError(status)
}

func attrValue(attrs goipp.Attributes, name string) (goipp.Value, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			return a.Values[0].V, true
		}
	}
	return nil, false
}

func attrInt(attrs goipp.Attributes, name string) (int, bool) {
	v, ok := attrValue(attrs, name)
	if !ok {
		return 0, false
	}
	i, ok := v.(goipp.Integer)
	return int(i), ok
}

func attrString(attrs goipp.Attributes, name string) (string, bool) {
	v, ok := attrValue(attrs, name)
	if !ok {
		return "", false
	}
	return v.String(), true
}

func attrStrings(attrs goipp.Attributes, name string) []string {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		var out []string
		for _, v := range a.Values {
			out = append(out, v.V.String())
		}
		return out
	}
	return nil
}
