package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"query-engine/internal/config"
	"query-engine/internal/connector"
	"query-engine/internal/graphbuilder"
	"query-engine/internal/interpreter"
	"query-engine/internal/logging"
	"query-engine/internal/middleware"
	"query-engine/internal/models"
	"query-engine/internal/observability"
)

var errSchemaUnavailable = errors.New("data model is not loaded")

// queryHandler serves POST /query. One document builds one query graph,
// which runs inside one transaction.
type queryHandler struct {
	connector connector.Connector
	dataModel func() *models.InternalDataModel
	limits    graphbuilder.PageLimits
	maxBytes  int64
	timeout   time.Duration
	metrics   *observability.EngineMetrics
}

type queryResponse struct {
	Data map[string]any `json:"data"`
}

func pageLimits(cfg *config.Config) graphbuilder.PageLimits {
	return graphbuilder.PageLimits{
		DefaultPageSize: cfg.Engine.DefaultPageSize,
		MaxPageSize:     cfg.Engine.MaxPageSize,
	}
}

func (h *queryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	ctx := observability.ContextWithEngineMetrics(r.Context(), h.metrics)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	logger := logging.FromContext(ctx)

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	var doc graphbuilder.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "invalid_json", "request body is not a valid query document")
		return
	}

	h.metrics.IncrementActiveRequests(ctx)
	defer h.metrics.DecrementActiveRequests(ctx)

	start := time.Now()
	data, err := h.execute(ctx, doc)
	h.metrics.RecordRequest(ctx, time.Since(start), err != nil, doc.Action)
	if err != nil {
		status, code, message := classifyError(ctx, err)
		attrs := []any{
			slog.String("action", doc.Action),
			slog.String("model", doc.Model),
			slog.String("code", code),
			slog.String("error", err.Error()),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("query failed", attrs...)
		} else {
			logger.Warn("query rejected", attrs...)
		}
		middleware.WriteError(w, status, code, message)
		return
	}

	logger.Debug("query executed",
		slog.String("action", doc.Action),
		slog.String("model", doc.Model),
		slog.Duration("duration", time.Since(start)),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(queryResponse{Data: data})
}

// execute commits when the graph ran and rendered, and rolls back otherwise.
func (h *queryHandler) execute(ctx context.Context, doc graphbuilder.Document) (map[string]any, error) {
	dm := h.dataModel()
	if dm == nil {
		return nil, errSchemaUnavailable
	}
	if err := graphbuilder.ApplyPageLimits(&doc, h.limits); err != nil {
		return nil, err
	}
	g, err := graphbuilder.Build(dm, doc)
	if err != nil {
		return nil, err
	}

	tx, err := h.connector.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil {
			logging.FromContext(ctx).Warn("rollback failed", slog.String("error", err.Error()))
		}
	}()

	rs, err := interpreter.New(tx).Execute(ctx, g)
	if err != nil {
		return nil, err
	}
	data, err := rs.Data(doc.ResultName())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return data, nil
}

// classifyError maps an execution error to an HTTP status and the code and
// message reported to the client.
func classifyError(ctx context.Context, err error) (int, string, string) {
	if errors.Is(err, errSchemaUnavailable) {
		return http.StatusServiceUnavailable, "schema_unavailable", "data model is not loaded"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout", "query timed out"
	}

	code, message := interpreter.PublicError(err)
	switch code {
	case "invalid_input", "pagination_contract", "records_not_connected":
		return http.StatusBadRequest, code, message
	case "record_not_found":
		return http.StatusNotFound, code, message
	case "relation_violation":
		return http.StatusConflict, code, message
	default:
		return http.StatusInternalServerError, code, message
	}
}
