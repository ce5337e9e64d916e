// Package sii parses sales-register CSV exports from the Chilean tax
// authority (Servicio de Impuestos Internos) into import parameters.
package sii

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/institutoandes/cobranza/internal/document"
	"github.com/institutoandes/cobranza/internal/encoding"
)

// Document type codes used by the sales register.
const (
	codeInvoice       = 33
	codeExemptInvoice = 34
	codeCreditNote    = 61
)

const (
	colDocType   = "Tipo Doc"
	colTaxID     = "Rut cliente"
	colName      = "Razon Social"
	colFolio     = "Folio"
	colIssueDate = "Fecha Docto"
	colExempt    = "Monto Exento"
	colNet       = "Monto Neto"
	colTax       = "Monto IVA"
	colTotal     = "Monto total"
	colRefType   = "Tipo Docto. Referencia"
	colRefFolio  = "Folio Docto. Referencia"
)

// Exports are named "MM YYYY.csv", "MM_YYYY.csv" or "MMYYYY.csv".
var filenamePattern = regexp.MustCompile(`(?i)(\d{2})[\s_]?(\d{4})\.csv$`)

// Issue dates appear both with dashes and slashes, with or without a time
// component.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02/01/2006",
	"02-01-2006",
}

// Result is the outcome of parsing one export. Row-level problems are
// collected, not fatal: a register with one bad row still imports the
// rest.
type Result struct {
	TaxPeriod  string
	SourceFile string
	Documents  []document.ImportParams
	Errors     []string
	// RowsSkipped counts rows whose document type is outside the sales
	// register scope (boletas, guías).
	RowsSkipped int
	TotalRows   int
}

// PeriodFromFilename extracts the tax period from the export's file name:
// "01 2023.csv" becomes "2023-01".
func PeriodFromFilename(name string) (string, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("file name %q does not carry a tax period (expected \"MM YYYY.csv\")", name)
	}

	return m[2] + "-" + m[1], nil
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse reads one sales-register export. The input may be UTF-8 or
// ISO-8859-1; the decoded stream is parsed as semicolon-separated values
// with a named header row.
func (p *Parser) Parse(r io.Reader, sourceFile string) (*Result, error) {
	period, err := PeriodFromFilename(sourceFile)
	if err != nil {
		return nil, err
	}

	utf8r, err := encoding.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detecting encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("file %q is empty", sourceFile)
	}

	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	res := &Result{TaxPeriod: period, SourceFile: sourceFile}

	for i, row := range rows[1:] {
		rowNum := i + 2 // row 1 is the header
		res.TotalRows++

		params, skip, err := p.parseRow(row, cols)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))

			continue
		}

		if skip {
			res.RowsSkipped++

			continue
		}

		params.TaxPeriod = period
		params.SourceFile = sourceFile
		res.Documents = append(res.Documents, params)
	}

	slog.Info("sales register parsed",
		"file", sourceFile, "period", period,
		"documents", len(res.Documents), "skipped", res.RowsSkipped, "errors", len(res.Errors))

	return res, nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var missing []string

	for _, required := range []string{colDocType, colFolio, colIssueDate, colTotal, colTaxID} {
		if _, ok := cols[required]; !ok {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required columns missing: %s", strings.Join(missing, ", "))
	}

	return cols, nil
}

func (p *Parser) parseRow(row []string, cols map[string]int) (document.ImportParams, bool, error) {
	var params document.ImportParams

	code, err := strconv.Atoi(field(row, cols, colDocType))
	if err != nil {
		return params, false, fmt.Errorf("invalid document type %q", field(row, cols, colDocType))
	}

	switch code {
	case codeInvoice:
		params.Type = document.TypeInvoice
	case codeExemptInvoice:
		params.Type = document.TypeExemptInvoice
	case codeCreditNote:
		params.Type = document.TypeCreditNote
	default:
		return params, true, nil
	}

	folio, err := strconv.ParseInt(field(row, cols, colFolio), 10, 64)
	if err != nil {
		return params, false, fmt.Errorf("invalid folio %q", field(row, cols, colFolio))
	}

	params.Folio = folio

	issueDate, err := parseDate(field(row, cols, colIssueDate))
	if err != nil {
		return params, false, fmt.Errorf("folio %d: %w", folio, err)
	}

	params.IssueDate = issueDate
	params.CounterpartyTaxID = field(row, cols, colTaxID)
	params.Counterparty = field(row, cols, colName)
	params.ExemptAmount = parseAmount(field(row, cols, colExempt))
	params.NetAmount = parseAmount(field(row, cols, colNet))
	params.TaxAmount = parseAmount(field(row, cols, colTax))
	params.TotalAmount = parseAmount(field(row, cols, colTotal))

	if params.TotalAmount == 0 && params.Type.IsInvoice() {
		return params, false, fmt.Errorf("folio %d: invoice with zero total", folio)
	}

	if refFolio, err := strconv.ParseInt(field(row, cols, colRefFolio), 10, 64); err == nil {
		params.ReferenceFolio = &refFolio

		if refCode, err := strconv.Atoi(field(row, cols, colRefType)); err == nil {
			switch refCode {
			case codeInvoice:
				t := document.TypeInvoice
				params.ReferenceType = &t
			case codeExemptInvoice:
				t := document.TypeExemptInvoice
				params.ReferenceType = &t
			}
		}
	}

	return params, false, nil
}

func field(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("issue date is empty")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized issue date %q", s)
}

// parseAmount reads a peso amount. Amounts are integers; stray thousand
// separators are tolerated, empty and malformed values count as zero.
func parseAmount(s string) int64 {
	s = strings.ReplaceAll(s, ".", "")
	if s == "" {
		return 0
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}
