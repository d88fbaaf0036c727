package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/report"
	"github.com/ConnecteDigital/connect-financeiro/internal/storage"
)

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTransactions(w, r)
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	q := r.URL.Query()

	filter := storage.ListTransactionsFilter{
		CategoryID: q.Get("categoryId"),
		Limit:      50,
	}
	if v := q.Get("kind"); v != "" {
		kind := core.TransactionKind(v)
		if !kind.Valid() {
			errorJSON(w, http.StatusBadRequest, "Tipo de transação inválido. Use 'INCOME' ou 'EXPENSE'")
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("from"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "Data inválida. Use o formato AAAA-MM-DD")
			return
		}
		filter.From = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "Data inválida. Use o formato AAAA-MM-DD")
			return
		}
		// Include the whole end day.
		filter.To = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	txs, err := s.store.ListTransactions(r.Context(), user.ID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "Transaction list failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldOperation, applog.OpList,
			applog.FieldUserID, user.ID,
			applog.FieldError, err.Error())
		errorJSON(w, http.StatusInternalServerError, "Erro ao listar transações")
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type createTransactionRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	CategoryID  string `json:"categoryId,omitempty"`
	Date        string `json:"date"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "Valor inválido")
		return
	}

	date := time.Now()
	if req.Date != "" {
		date, err = parseDate(req.Date)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "Data inválida. Use o formato AAAA-MM-DD")
			return
		}
	}

	created, err := s.store.CreateTransaction(r.Context(), core.Transaction{
		UserID:      user.ID,
		CategoryID:  req.CategoryID,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Kind:        core.TransactionKind(req.Kind),
		Date:        date,
	})
	if err != nil {
		var status int
		switch {
		case errors.Is(err, core.ErrInvalidAmount),
			errors.Is(err, core.ErrInvalidKind),
			errors.Is(err, core.ErrEmptyDescription),
			errors.Is(err, core.ErrZeroDate):
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
			slog.ErrorContext(r.Context(), "Transaction create failed",
				applog.FieldComponent, applog.ComponentHTTP,
				applog.FieldOperation, applog.OpCreate,
				applog.FieldUserID, user.ID,
				applog.FieldError, err.Error())
		}
		errorJSON(w, status, "Não foi possível criar a transação: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, toTransactionJSON(created))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	switch r.Method {
	case http.MethodGet:
		cats, err := s.store.ListCategories(r.Context(), user.ID)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "Erro ao listar categorias")
			return
		}
		out := make([]map[string]string, 0, len(cats))
		for _, c := range cats {
			out = append(out, map[string]string{
				"id":    c.ID,
				"name":  c.Name,
				"color": c.Color,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{"categories": out})

	case http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			Color string `json:"color,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, http.StatusBadRequest, "Corpo da requisição inválido")
			return
		}

		created, err := s.store.CreateCategory(r.Context(), core.Category{
			UserID: user.ID,
			Name:   sanitizeInput(req.Name),
			Color:  req.Color,
		})
		if errors.Is(err, storage.ErrDuplicateCategory) {
			errorJSON(w, http.StatusConflict, "Categoria já existe")
			return
		}
		if errors.Is(err, core.ErrEmptyName) {
			errorJSON(w, http.StatusBadRequest, "Nome da categoria é obrigatório")
			return
		}
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "Erro ao criar categoria")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]string{
			"id":    created.ID,
			"name":  created.Name,
			"color": created.Color,
		})

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleDashboard returns the current Sunday-based week and calendar month
// summaries side by side, the shape the dashboard cards consume.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user := currentUser(r)
	now := time.Now()

	weekStart, weekEnd := report.SundayWeekRange(now)
	weekWindow := report.Window{Kind: core.Weekly, Start: weekStart, End: weekEnd}

	monthWindow, err := report.Resolve(core.Monthly, now)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "Erro ao montar painel")
		return
	}

	// One fetch covering both windows; the month always contains more days
	// than the current week except around month boundaries, so take the
	// union of the two ranges.
	start := weekStart
	if monthWindow.Start.Before(start) {
		start = monthWindow.Start
	}
	end := weekEnd
	if monthWindow.End.After(end) {
		end = monthWindow.End
	}

	txs, err := s.store.FindTransactions(r.Context(), user.ID, start, end)
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard query failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldUserID, user.ID,
			applog.FieldError, err.Error())
		errorJSON(w, http.StatusInternalServerError, "Erro ao montar painel")
		return
	}

	week := report.Aggregate(txs, weekWindow, report.DefaultTopN)
	month := report.Aggregate(txs, monthWindow, report.DefaultTopN)

	respondJSON(w, http.StatusOK, map[string]any{
		"week": map[string]any{
			"totalIncome":      toMoneyJSON(week.TotalIncome),
			"totalExpense":     toMoneyJSON(week.TotalExpense),
			"balance":          toMoneyJSON(week.Balance),
			"transactionCount": week.TransactionCount,
		},
		"month": map[string]any{
			"period":           monthWindow.Label,
			"totalIncome":      toMoneyJSON(month.TotalIncome),
			"totalExpense":     toMoneyJSON(month.TotalExpense),
			"balance":          toMoneyJSON(month.Balance),
			"transactionCount": month.TransactionCount,
		},
	})
}
