package importcsv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/engine"
	"github.com/institutoandes/cobranza/internal/http/actor"
	"github.com/institutoandes/cobranza/internal/http/respond"
	"github.com/institutoandes/cobranza/internal/ingest/sii"
)

type Handler struct {
	parser *sii.Parser
	engine *engine.Service
}

func NewHandler(parser *sii.Parser, eng *engine.Service) *Handler {
	return &Handler{parser: parser, engine: eng}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importCSV)
	r.Post("/documents", h.importJSON)
}

type importResponse struct {
	TaxPeriod            string   `json:"tax_period"`
	SourceFile           string   `json:"source_file"`
	Inserted             int      `json:"inserted"`
	DuplicatesSkipped    int      `json:"duplicates_skipped"`
	AppliedCreditNotes   int      `json:"applied_credit_notes"`
	UnmatchedCreditNotes int      `json:"unmatched_credit_notes"`
	RowsSkipped          int      `json:"rows_skipped"`
	RowErrors            []string `json:"row_errors,omitempty"`
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.parser.Parse(file, header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.engine.ImportBatch(r.Context(), result.Documents, actor.From(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, importResponse{
		TaxPeriod:            result.TaxPeriod,
		SourceFile:           result.SourceFile,
		Inserted:             summary.Inserted,
		DuplicatesSkipped:    summary.DuplicatesSkipped,
		AppliedCreditNotes:   summary.AppliedCreditNotes,
		UnmatchedCreditNotes: summary.UnmatchedCreditNotes,
		RowsSkipped:          result.RowsSkipped,
		RowErrors:            result.Errors,
	})
}

type importDocumentRequest struct {
	Type              document.Type  `json:"type"`
	Folio             int64          `json:"folio"`
	IssueDate         string         `json:"issue_date"`
	Counterparty      string         `json:"counterparty"`
	CounterpartyTaxID string         `json:"counterparty_tax_id"`
	NetAmount         int64          `json:"net_amount"`
	TaxAmount         int64          `json:"tax_amount"`
	ExemptAmount      int64          `json:"exempt_amount"`
	TotalAmount       int64          `json:"total_amount"`
	ReferenceFolio    *int64         `json:"reference_folio"`
	ReferenceType     *document.Type `json:"reference_type"`
	TaxPeriod         string         `json:"tax_period"`
	SourceFile        string         `json:"source_file"`
}

func (req importDocumentRequest) params() (document.ImportParams, error) {
	switch req.Type {
	case document.TypeInvoice, document.TypeExemptInvoice, document.TypeCreditNote:
	default:
		return document.ImportParams{}, fmt.Errorf("unknown document type %q", req.Type)
	}

	issueDate, err := time.Parse(time.DateOnly, req.IssueDate)
	if err != nil {
		return document.ImportParams{}, fmt.Errorf("invalid issue_date %q, expected YYYY-MM-DD", req.IssueDate)
	}

	return document.ImportParams{
		Type:              req.Type,
		Folio:             req.Folio,
		IssueDate:         issueDate,
		Counterparty:      req.Counterparty,
		CounterpartyTaxID: req.CounterpartyTaxID,
		NetAmount:         req.NetAmount,
		TaxAmount:         req.TaxAmount,
		ExemptAmount:      req.ExemptAmount,
		TotalAmount:       req.TotalAmount,
		ReferenceFolio:    req.ReferenceFolio,
		ReferenceType:     req.ReferenceType,
		TaxPeriod:         req.TaxPeriod,
		SourceFile:        req.SourceFile,
	}, nil
}

// importJSON accepts already-typed document records, for callers that do
// their own parsing instead of uploading a sales-register export.
func (h *Handler) importJSON(w http.ResponseWriter, r *http.Request) {
	var reqs []importDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	docs := make([]document.ImportParams, 0, len(reqs))

	for i, req := range reqs {
		params, err := req.params()
		if err != nil {
			http.Error(w, fmt.Sprintf("document %d: %v", i, err), http.StatusBadRequest)
			return
		}

		docs = append(docs, params)
	}

	summary, err := h.engine.ImportBatch(r.Context(), docs, actor.From(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, importResponse{
		Inserted:             summary.Inserted,
		DuplicatesSkipped:    summary.DuplicatesSkipped,
		AppliedCreditNotes:   summary.AppliedCreditNotes,
		UnmatchedCreditNotes: summary.UnmatchedCreditNotes,
	})
}
