package httpadapter

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dialerops/report-pipeline/internal/config"
	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
	"github.com/dialerops/report-pipeline/internal/observability/metrics"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	maxUploadBytes      = 64 << 20
)

type Router struct {
	cfg      config.Config
	ingestor ports.ReportIngestor
	gate     ports.CompletenessReader
	kpis     ports.KPIQueryService
	alerts   ports.AlertService
	metrics  *metrics.APIMetrics
}

func NewRouter(
	cfg config.Config,
	ingestor ports.ReportIngestor,
	gate ports.CompletenessReader,
	kpis ports.KPIQueryService,
	alerts ports.AlertService,
	apiMetrics *metrics.APIMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		ingestor: ingestor,
		gate:     gate,
		kpis:     kpis,
		alerts:   alerts,
		metrics:  apiMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/reports/webhook", rt.webhookIngest)
	mux.HandleFunc("/v1/reports/upload", rt.uploadIngest)
	mux.HandleFunc("/v1/reports/checklist", rt.checklist)
	mux.HandleFunc("/v1/reports/", rt.downloadRaw)
	mux.HandleFunc("/v1/kpis", rt.kpisQuery)
	mux.HandleFunc("/v1/skills", rt.skillsQuery)
	mux.HandleFunc("/v1/alerts", rt.listAlerts)
	mux.HandleFunc("/v1/alerts/", rt.acknowledgeAlert)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, 100*time.Millisecond)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookIngest receives the email-forwarder payload: base64 attachments
// authenticated by a shared secret header.
func (rt *Router) webhookIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !rt.webhookAuthorized(r) {
		writeError(w, domain.WrapError(domain.ErrUnauthorized, "webhook auth", errSecretMismatch))
		return
	}

	var req struct {
		Files []struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		} `json:"files"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "files is required"})
		return
	}

	// A bad attachment encoding fails that file alone, like any parse error.
	var undecodable []ports.FileResult
	files := make([]ports.IngestFile, 0, len(req.Files))
	for _, f := range req.Files {
		raw, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			undecodable = append(undecodable, ports.FileResult{
				Filename: f.Filename,
				Error:    "invalid base64 content",
			})
			continue
		}
		files = append(files, ports.IngestFile{Filename: f.Filename, Content: raw})
	}

	rt.runBatch(w, r, files, undecodable, domain.ChannelEmail)
}

// uploadIngest receives operator uploads as multipart files.
func (rt *Router) uploadIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	files := make([]ports.IngestFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read multipart file: " + err.Error()})
			return
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read multipart file: " + err.Error()})
			return
		}
		files = append(files, ports.IngestFile{Filename: h.Filename, Content: raw})
	}

	rt.runBatch(w, r, files, nil, domain.ChannelManual)
}

func (rt *Router) runBatch(w http.ResponseWriter, r *http.Request, files []ports.IngestFile, preFailed []ports.FileResult, channel domain.SourceChannel) {
	result := &ports.BatchResult{Files: preFailed}
	if len(files) > 0 {
		start := time.Now()
		batch, err := rt.ingestor.IngestBatch(r.Context(), files, channel)
		if err != nil {
			writeError(w, err)
			return
		}
		result.Files = append(result.Files, batch.Files...)
		result.Computed = batch.Computed
		rt.recordBatchMetrics(channel, batch, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordBatchMetrics(channel domain.SourceChannel, batch *ports.BatchResult, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordBatch("api", string(channel), len(batch.Files))
	for _, f := range batch.Files {
		status := "completed"
		if f.Error != "" {
			status = "failed"
		}
		rt.metrics.RecordIngestedFile("api", string(channel), f.Category, status)
	}
	for _, c := range batch.Computed {
		outcome := "computed"
		if c.Incomplete {
			outcome = "incomplete"
		}
		rt.metrics.RecordAggregation("api", outcome, elapsed)
		for _, a := range c.Alerts {
			rt.metrics.RecordAlertFired("api", a.Rule, string(a.Severity))
		}
	}
}

var errSecretMismatch = &secretMismatchError{}

type secretMismatchError struct{}

func (*secretMismatchError) Error() string { return "webhook secret mismatch" }

func (rt *Router) webhookAuthorized(r *http.Request) bool {
	if rt.cfg.WebhookSecret == "" {
		return true
	}
	got := r.Header.Get(webhookSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(rt.cfg.WebhookSecret)) == 1
}

// downloadRaw streams the stored raw copy of one ingested file:
// GET /v1/reports/{id}/raw.
func (rt *Router) downloadRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	reportID, action, found := strings.Cut(rest, "/")
	if !found || action != "raw" || reportID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	file, body, err := rt.ingestor.OpenRaw(r.Context(), reportID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	_, _ = io.Copy(w, body)
}

func (rt *Router) checklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	date, ok := requireDateParam(w, r, "date")
	if !ok {
		return
	}

	status, err := rt.gate.Status(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) kpisQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()

	switch {
	case q.Get("date") != "":
		date, ok := requireDateParam(w, r, "date")
		if !ok {
			return
		}
		kpis, err := rt.kpis.KPIsByDate(r.Context(), date)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kpis)

	case q.Get("start") != "" || q.Get("end") != "":
		start, ok := requireDateParam(w, r, "start")
		if !ok {
			return
		}
		end, ok := requireDateParam(w, r, "end")
		if !ok {
			return
		}
		rows, err := rt.kpis.KPIsRange(r.Context(), start, end)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)

	default:
		days := 7
		if raw := q.Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
				return
			}
			days = n
		}
		rows, err := rt.kpis.KPIsLastDays(r.Context(), days)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (rt *Router) skillsQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var (
		skills []domain.SkillSummary
		err    error
	)
	if r.URL.Query().Get("date") != "" {
		date, ok := requireDateParam(w, r, "date")
		if !ok {
			return
		}
		skills, err = rt.kpis.SkillsByDate(r.Context(), date)
	} else {
		skills, err = rt.kpis.SkillsLatest(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

func (rt *Router) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()

	var filter domain.AlertFilter
	if q.Get("date") != "" {
		date, ok := requireDateParam(w, r, "date")
		if !ok {
			return
		}
		filter.ReportDate = date
	}
	filter.UnacknowledgedOnly = q.Get("unacked") == "true"
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	alerts, err := rt.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (rt *Router) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	alertID, action, found := strings.Cut(rest, "/")
	if !found || action != "ack" || alertID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
		Notes          string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	alert, err := rt.alerts.Acknowledge(r.Context(), alertID, req.AcknowledgedBy, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func requireDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " is required (YYYY-MM-DD)"})
		return time.Time{}, false
	}
	date, err := domain.ParseDay(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
