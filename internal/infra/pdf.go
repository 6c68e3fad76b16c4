package infra

// pdf.go: closing report for one cash session using go-pdf/fpdf.
// A4 portrait with:
//   - Location, session id, open/close times and operators
//   - Movement table (time, kind, description, signed amount)
//   - Reconciliation block (expected, counted, variance, classification)
//
// The document is rendered into memory; callers stream or attach it.

import (
	"bytes"
	"fmt"

	"farmacaixa/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// SessionReport bundles everything printed on a closing report.
type SessionReport struct {
	Session   *model.CashSession
	Movements []model.Movement
	// ActorNames resolves operator ids to display names; unknown ids print as-is.
	ActorNames map[uuid.UUID]string
}

func (r SessionReport) actor(id uuid.UUID) string {
	if n, ok := r.ActorNames[id]; ok && n != "" {
		return n
	}
	return id.String()
}

var kindLabel = map[model.MovementKind]string{
	model.KindSaleSettlement: "Venda",
	model.KindDeposit:        "Suprimento",
	model.KindWithdrawal:     "Sangria",
}

// GenerateSessionReportPDF renders the report and returns the PDF bytes.
func GenerateSessionReportPDF(r SessionReport) ([]byte, error) {
	s := r.Session
	if s == nil {
		return nil, fmt.Errorf("pdf: nil session")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(contentW, 8, tr("Fechamento de Caixa"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, tr("Local: "+s.LocationID), "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 5, tr("Sessão: "+s.ID.String()), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	// ── Session info ─────────────────────────────────────────────────────────
	half := contentW / 2
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(half, 5, tr("Abertura: "+s.OpenedAt.Format("02/01/2006 15:04")), "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 5, tr("Operador: "+r.actor(s.OpenedBy)), "", 1, "L", false, 0, "")
	if s.ClosedAt != nil && s.ClosedBy != nil {
		pdf.CellFormat(half, 5, tr("Fechamento: "+s.ClosedAt.Format("02/01/2006 15:04")), "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 5, tr("Operador: "+r.actor(*s.ClosedBy)), "", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(contentW, 5, tr("Sessão em aberto"), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(contentW, 5, "Fundo de troco: R$ "+s.OpeningFloat.String(), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(2)

	// ── Movements ────────────────────────────────────────────────────────────
	col1 := contentW * 0.15 // time
	col2 := contentW * 0.20 // kind
	col3 := contentW * 0.45 // description
	col4 := contentW * 0.20 // amount

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1, 6, "Hora", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 6, "Tipo", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, tr("Descrição"), "B", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 6, "Valor", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	if len(r.Movements) == 0 {
		pdf.CellFormat(contentW, 5, tr("Nenhuma movimentação"), "", 1, "C", false, 0, "")
	}
	for _, m := range r.Movements {
		desc := m.Description
		if len(desc) > 48 {
			desc = desc[:47] + "..."
		}
		sign := "+"
		if m.Kind == model.KindWithdrawal {
			sign = "-"
		}
		pdf.CellFormat(col1, 5, m.RecordedAt.Format("15:04:05"), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, tr(kindLabel[m.Kind]), "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, tr(desc), "", 0, "L", false, 0, "")
		pdf.CellFormat(col4, 5, sign+m.Amount.String(), "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(2)

	// ── Reconciliation ───────────────────────────────────────────────────────
	if rec := s.Reconciliation(); rec != nil {
		line := func(label string, c model.Cents, bold bool) {
			style := ""
			if bold {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, 9)
			pdf.CellFormat(col1+col2+col3, 5, tr(label), "", 0, "L", false, 0, "")
			pdf.CellFormat(col4, 5, "R$ "+c.String(), "", 1, "R", false, 0, "")
		}
		line("Vendas", rec.SumSales, false)
		line("Suprimentos", rec.SumDeposits, false)
		line("Sangrias", rec.SumWithdrawals, false)
		line("Esperado", rec.ExpectedCloseAmount, true)
		line("Contado", rec.CountedCloseAmount, true)
		line("Diferença", rec.Variance, true)

		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentW, 5,
			tr(fmt.Sprintf("Variação: %s%% (%s)", rec.VariancePct.StringFixed(2), rec.VarianceClass)),
			"", 1, "L", false, 0, "")
		if s.Notes != nil && *s.Notes != "" {
			pdf.Ln(2)
			pdf.MultiCell(contentW, 5, tr("Observações: "+*s.Notes), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}
