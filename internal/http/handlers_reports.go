package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/report"
)

type sendReportRequest struct {
	Type string `json:"type"`
	Date string `json:"date,omitempty"`
}

type sendReportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleSendReport delivers one report to the authenticated user, outside
// the batch schedule.
func (s *Server) handleSendReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sendReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	kind, err := core.ParsePeriodKind(req.Type)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "Tipo de relatório inválido. Use 'weekly' ou 'monthly'")
		return
	}

	var ref *time.Time
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "Data inválida. Use o formato AAAA-MM-DD")
			return
		}
		ref = &parsed
	}

	user := currentUser(r)
	_, err = s.reports.SendNow(r.Context(), user.ID, kind, ref)
	if errors.Is(err, dispatch.ErrNoDestination) {
		errorJSON(w, http.StatusBadRequest, "Usuário não possui WhatsApp cadastrado")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "On-demand send failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldOperation, applog.OpSendNow,
			applog.FieldUserID, user.ID,
			applog.FieldError, err.Error())
		errorJSON(w, http.StatusInternalServerError, "Erro ao enviar relatório")
		return
	}

	respondJSON(w, http.StatusOK, sendReportResponse{
		Success: true,
		Message: "Relatório enviado com sucesso",
	})
}

// handleGetReport builds the report record for the authenticated user
// without sending anything. Also lists recent audit entries when asked
// with ?history=1.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user := currentUser(r)

	if r.URL.Query().Get("history") == "1" {
		entries, err := s.store.ListReportsSent(r.Context(), user.ID, 50)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "Erro ao consultar histórico")
			return
		}
		history := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			history = append(history, map[string]any{
				"kind":   string(e.Kind),
				"period": e.Period,
				"sentAt": e.SentAt,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{"history": history})
		return
	}

	kind, err := core.ParsePeriodKind(r.URL.Query().Get("type"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "Tipo de relatório inválido. Use 'weekly' ou 'monthly'")
		return
	}

	ref := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "Data inválida. Use o formato AAAA-MM-DD")
			return
		}
		ref = parsed
	}

	window, err := report.Resolve(kind, ref)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "Tipo de relatório inválido. Use 'weekly' ou 'monthly'")
		return
	}

	txs, err := s.store.FindTransactions(r.Context(), user.ID, window.Start, window.End)
	if err != nil {
		slog.ErrorContext(r.Context(), "Report query failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldUserID, user.ID,
			applog.FieldError, err.Error())
		errorJSON(w, http.StatusInternalServerError, "Erro ao gerar relatório")
		return
	}

	rec := report.Build(window, report.Aggregate(txs, window, report.DefaultTopN))
	respondJSON(w, http.StatusOK, toReportJSON(rec))
}
