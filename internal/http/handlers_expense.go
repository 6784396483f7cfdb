package http

import (
	"net/http"

	"spendwise/internal/core"
	"spendwise/internal/csvio"
	"spendwise/internal/services"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.deps.Expenses.Create(r.Context(), username, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var reqs []expenseRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeError(w, r, err)
		return
	}
	if len(reqs) == 0 {
		writeError(w, r, badRequest("batch is empty"))
		return
	}
	if len(reqs) > csvio.MaxUploadRows {
		writeError(w, r, badRequest("batch exceeds %d expenses", csvio.MaxUploadRows))
		return
	}

	inputs := make([]services.ExpenseInput, 0, len(reqs))
	for _, req := range reqs {
		inputs = append(inputs, req.input())
	}
	s.createMany(w, r, username, inputs)
}

// handleUpload imports a CSV file of expenses as one batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, closeBody, err := uploadReader(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeBody()

	rows, err := csvio.ReadExpenses(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.createMany(w, r, username, rowInputs(rows))
}

func (s *Server) createMany(w http.ResponseWriter, r *http.Request, username string, inputs []services.ExpenseInput) {
	created, err := s.deps.Expenses.CreateBatch(r.Context(), username, inputs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(map[string]interface{}{"created": len(created), "items": created}).
		Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.deps.Expenses.List(r.Context(), username, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []core.Expense{}
	}
	NewJSONResponse().Body(page).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.deps.Expenses.Update(r.Context(), username, r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Expenses.Delete(r.Context(), username, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category := s.deps.Classifier.Categorize(r.Context(), sanitizeInput(req.Description))
	NewJSONResponse().Body(map[string]string{"category": category}).Write(w)
}
