// Package webui exposes the JSON API the browser front-end consumes,
// plus a pass-through proxy to the device's embedded web pages. Handlers
// stay thin; all workflow logic lives in the driver packages.
package webui

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"mfphub/internal/config"
	"mfphub/internal/copier"
	"mfphub/internal/escl"
	"mfphub/internal/ews"
	"mfphub/internal/ipp"
	"mfphub/internal/printflow"
	"mfphub/internal/status"
)

type handler struct {
	agg      *status.Aggregator
	flow     *printflow.Controller
	cop      *copier.Copier
	scan     *escl.Client
	tel      *ews.Client
	settings *config.Store
}

// NewHandler creates the HTTP handler for the front-end API. deviceHost
// is the device address used for the EWS pass-through proxy.
func NewHandler(agg *status.Aggregator, flow *printflow.Controller, cop *copier.Copier, scan *escl.Client, tel *ews.Client, settings *config.Store, deviceHost string) http.Handler {
	h := &handler{agg: agg, flow: flow, cop: cop, scan: scan, tel: tel, settings: settings}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/status/expanded", h.handleExpanded)
	mux.HandleFunc("POST /api/status/drawer/collapse", h.handleCollapseDrawer)

	mux.HandleFunc("GET /api/device", h.handleDevice)
	mux.HandleFunc("GET /api/usage", h.handleUsage)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.handleJobCancel)

	mux.HandleFunc("POST /api/scan", h.handleScan)

	mux.HandleFunc("GET /api/print", h.handlePrintState)
	mux.HandleFunc("POST /api/print", h.handlePrintSubmit)
	mux.HandleFunc("POST /api/print/cancel", h.handlePrintCancel)
	mux.HandleFunc("POST /api/print/reset", h.handlePrintReset)
	mux.HandleFunc("POST /api/print/remove", h.handlePrintRemove)

	mux.HandleFunc("GET /api/copy", h.handleCopyState)
	mux.HandleFunc("POST /api/copy", h.handleCopyStart)
	mux.HandleFunc("POST /api/copy/cancel", h.handleCopyCancel)

	mux.HandleFunc("GET /api/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", h.handlePutSettings)

	// Pass-through to the device's embedded web pages, no logic.
	target := &url.URL{Scheme: "http", Host: deviceHost}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Warn("device proxy error", "path", r.URL.Path, "err", err)
		http.Error(w, "device unreachable", http.StatusBadGateway)
	}
	mux.Handle("/ews/", http.StripPrefix("/ews", proxy))

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.agg.Snapshot())
}

func (h *handler) handleExpanded(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Expanded bool `json:"expanded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.agg.SetExpanded(body.Expanded)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleCollapseDrawer(w http.ResponseWriter, r *http.Request) {
	h.agg.CollapseDrawer()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleDevice(w http.ResponseWriter, r *http.Request) {
	info, err := h.tel.DeviceInfo(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	network, err := h.tel.Network(r.Context())
	if err != nil {
		slog.Warn("network info fetch failed", "err", err)
	}
	writeJSON(w, struct {
		ews.DeviceInfo
		Network ews.NetworkInfo `json:"network"`
	}{info, network})
}

func (h *handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.tel.Usage(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, usage)
}

func (h *handler) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.tel.CancelJob(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scanRequest struct {
	Intent     string `json:"intent"`
	Source     string `json:"source"`
	ColorMode  string `json:"colorMode"`
	Resolution int    `json:"resolution"`
	Format     string `json:"format"`
}

func (r scanRequest) settings() escl.Settings {
	s := escl.DefaultSettings()
	if r.Intent != "" {
		s.Intent = escl.Intent(r.Intent)
	}
	if r.Source != "" {
		s.Source = escl.Source(r.Source)
	}
	if r.ColorMode != "" {
		s.ColorMode = escl.ColorMode(r.ColorMode)
	}
	if r.Resolution > 0 {
		s.Resolution = r.Resolution
	}
	if r.Format != "" {
		s.Format = escl.Format(r.Format)
	}
	return s
}

func (h *handler) handleScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	settings := body.settings()
	doc, err := h.scan.PerformScan(r.Context(), settings, nil)
	if err != nil {
		if errors.Is(err, escl.ErrScanBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", string(settings.Format))
	w.Write(doc)
}

func (h *handler) handlePrintState(w http.ResponseWriter, r *http.Request) {
	state := h.flow.State()
	writeJSON(w, struct {
		Phase string `json:"phase"`
		printflow.State
	}{state.Phase.String(), state})
}

func (h *handler) handlePrintSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	doc, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	defaults := h.settings.Get()
	duplex := defaults.PrintDuplex
	if v := r.FormValue("duplex"); v != "" {
		duplex = v == "true"
	}
	copies := 1
	if v := r.FormValue("copies"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			copies = n
		}
	}
	settings := ipp.Settings{
		Copies:    copies,
		ColorMode: formValue(r, "colorMode", defaults.PrintColorMode),
		Duplex:    duplex,
		Quality:   formValue(r, "quality", defaults.PrintQuality),
		MediaSize: formValue(r, "mediaSize", defaults.MediaSize),
	}
	h.flow.SelectFile(printflow.File{
		Name:      header.Filename,
		Size:      len(doc),
		ColorMode: settings.ColorMode,
	}, doc, settings)

	if err := h.flow.Submit(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.handlePrintState(w, r)
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

func (h *handler) handlePrintCancel(w http.ResponseWriter, r *http.Request) {
	h.flow.Cancel()
	h.handlePrintState(w, r)
}

func (h *handler) handlePrintReset(w http.ResponseWriter, r *http.Request) {
	h.flow.Reset()
	h.handlePrintState(w, r)
}

func (h *handler) handlePrintRemove(w http.ResponseWriter, r *http.Request) {
	h.flow.RemoveFile()
	h.handlePrintState(w, r)
}

func (h *handler) handleCopyState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cop.State())
}

func (h *handler) handleCopyStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		scanRequest
		Copies int `json:"copies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defaults := h.settings.Get()
	if body.Copies < 1 {
		body.Copies = defaults.CopyCount
	}
	printSettings := ipp.Settings{
		ColorMode: defaults.PrintColorMode,
		Quality:   defaults.PrintQuality,
		MediaSize: defaults.MediaSize,
	}
	if err := h.cop.Start(r.Context(), body.settings(), printSettings, body.Copies); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, h.cop.State())
}

func (h *handler) handleCopyCancel(w http.ResponseWriter, r *http.Request) {
	h.cop.Cancel()
	writeJSON(w, h.cop.State())
}

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.settings.Get())
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.settings.Update(s); err != nil {
		slog.Warn("settings save failed", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}
