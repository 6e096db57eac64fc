package cli

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mchmarny/riskctl/pkg/data"
	"github.com/mchmarny/riskctl/pkg/feature"
	"github.com/mchmarny/riskctl/pkg/risk"
)

const (
	apiHealthPath  = "/api/health"
	apiAssessPath  = "/api/assess-entity"
	apiBulkPath    = "/api/bulk-assess"
	apiTrainPath   = "/api/train"
	apiModelsPath  = "/api/models"
	apiHistoryPath = "/api/history"
	metricsPath    = "/metrics"

	serviceName     = "cyber-risk-api"
	maxRequestBytes = 10 << 20
)

// api serves the engine over HTTP.
type api struct {
	engine  *risk.Engine
	db      *data.DB
	model   string
	metrics *metrics
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	var ve *feature.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, risk.ErrNotTrained):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	d := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	d.UseNumber()
	return d.Decode(v)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func (a *api) assessHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		a.metrics.latency.WithLabelValues(apiAssessPath).Observe(time.Since(start).Seconds())
	}()

	var raw map[string]any
	if err := decodeBody(w, r, &raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	report, err := a.engine.Assess(raw)
	if err != nil {
		a.metrics.fail(err)
		slog.Debug("assessment failed", "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	a.metrics.observe(report.Assessment)

	recordReport(r.Context(), a.db, report)
	writeJSON(w, http.StatusOK, report)
}

func (a *api) bulkHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		a.metrics.latency.WithLabelValues(apiBulkPath).Observe(time.Since(start).Seconds())
	}()

	var req bulkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be {\"entities\": [...]}")
		return
	}

	results, err := a.engine.BulkAssess(r.Context(), entityMaps(req.Entities))
	if err != nil {
		a.metrics.fail(err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	for _, res := range results {
		if res.Assessment != nil {
			a.metrics.observe(res.Assessment)
		} else {
			a.metrics.fail(res.Err())
		}
	}

	recordBulk(r.Context(), a.db, results)
	writeJSON(w, http.StatusOK, results)
}

func (a *api) trainHandler(w http.ResponseWriter, r *http.Request) {
	report, err := a.engine.Train(r.Context())
	if err != nil {
		a.metrics.trainings.WithLabelValues("error").Inc()
		slog.Error("training failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.metrics.trainings.WithLabelValues("ok").Inc()
	a.metrics.trainingDuration.Observe(report.Duration.Seconds())
	a.metrics.published(report.ModelID)

	if err := a.engine.Save(r.Context(), a.db, a.model); err != nil {
		slog.Error("trained model not saved", "model", a.model, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) modelsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := a.db.ListModels(r.Context())
	if err != nil {
		slog.Error("failed to list models", "error", err)
		writeError(w, http.StatusInternalServerError, "error listing models")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := historyLimitDefault
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := a.db.ListAssessments(r.Context(), r.URL.Query().Get("entity"), limit)
	if err != nil {
		slog.Error("failed to list assessments", "error", err)
		writeError(w, http.StatusInternalServerError, "error listing assessments")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
