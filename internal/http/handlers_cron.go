package http

import (
	"errors"
	"fmt"
	"net/http"

	"log/slog"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
)

type cronResponse struct {
	Message string   `json:"message"`
	Sent    int      `json:"sent"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors,omitempty"`
}

// handleCronReports runs one batch for the route's period kind. The
// response is 200 even when every individual send failed; only an
// overlapping run or an internal error changes the status.
func (s *Server) handleCronReports(kind core.PeriodKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.authorizedCron(r) {
			errorJSON(w, http.StatusUnauthorized, "Não autorizado")
			return
		}

		summary, err := s.reports.RunBatch(r.Context(), kind)
		if errors.Is(err, dispatch.ErrRunInProgress) {
			errorJSON(w, http.StatusConflict, "Já existe um envio em andamento para este período")
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "Batch run failed",
				applog.FieldComponent, applog.ComponentHTTP,
				applog.FieldOperation, applog.OpBatchRun,
				applog.FieldPeriodKind, string(kind),
				applog.FieldError, err.Error())
			errorJSON(w, http.StatusInternalServerError, "Erro ao processar relatórios")
			return
		}

		respondJSON(w, http.StatusOK, cronResponse{
			Message: fmt.Sprintf("Relatórios processados: %d de %d enviados", summary.Sent, summary.Total),
			Sent:    summary.Sent,
			Total:   summary.Total,
			Errors:  summary.Errors,
		})
	}
}
