package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"heartpredict/ml"
	"heartpredict/monitoring"
	"heartpredict/predictor"
)

// Predictor 预测服务接口
type Predictor interface {
	Liveness() string
	Predict(ctx context.Context, features ml.HeartFeatures) (predictor.Result, error)
}

// Handler 持有预测服务，所有请求共享
type Handler struct {
	service   Predictor
	metrics   *monitoring.MetricsCollector
	logger    *zap.Logger
	modelType string
}

// NewHandler 创建处理器
func NewHandler(service Predictor, modelType string, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Handler {
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		metrics:   metrics,
		logger:    logger,
		modelType: modelType,
	}
}

// RegisterHandlers 注册路由
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": h.service.Liveness()})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	features, err := decodeFeatures(r.Body)
	if err != nil {
		var validation ValidationErrors
		switch {
		case errors.As(err, &validation):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"detail": validation})
		case isBodyTooLarge(err):
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	result, err := h.service.Predict(r.Context(), features)
	if err != nil {
		h.logger.Error("predict failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"model_type": h.modelType,
		"features":   ml.NumFeatures,
		"uptime":     h.metrics.GetUptime().String(),
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(h.metrics.ExportPrometheus()))
		return
	}
	snapshot := h.metrics.Snapshot()
	snapshot["system"] = h.metrics.GetSystemStats()
	respondJSON(w, http.StatusOK, snapshot)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
