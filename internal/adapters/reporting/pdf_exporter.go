package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/lcalzada-xor/mids/internal/core/domain"
)

// PDFExporter renders device incident reports as PDF.
type PDFExporter struct {
	// Limits keep a noisy device's report readable.
	MaxEvents    int
	MaxDecisions int
}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{MaxEvents: 25, MaxDecisions: 25}
}

// ExportIncident generates the operator hand-off report of one device.
func (e *PDFExporter) ExportIncident(report domain.IncidentReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addRiskBox(pdf, report)
	e.addChannels(pdf, report)
	e.addEvents(pdf, report)
	e.addDecisions(pdf, report)
	e.addApps(pdf, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Device Incident Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 13)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "Device "+report.DeviceID, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "Generated: "+report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func (e *PDFExporter) addRiskBox(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	r, g, b := stateColor(report.State)
	y := pdf.GetY()
	pdf.SetFillColor(r, g, b)
	pdf.Rect(20, y, 170, 28, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 30)
	pdf.SetXY(25, y+5)
	pdf.CellFormat(70, 18, fmt.Sprintf("%.1f/100", report.Risk.SmoothedScore), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetXY(100, y+5)
	pdf.CellFormat(85, 9, string(report.State), "", 2, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(85, 7, fmt.Sprintf("Confidence %.0f%%  Ticks %d", report.Confidence*100, report.Risk.Ticks), "", 0, "L", false, 0, "")

	pdf.SetY(y + 34)
}

func (e *PDFExporter) addChannels(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	sectionTitle(pdf, "Channel Scores")

	tableHeader(pdf, []column{{"Channel", 45}, {"Score", 25}, {"Status", 25}, {"Weighted", 25}, {"Note", 50}})
	pdf.SetFont("Arial", "", 9)
	for _, ch := range domain.AllChannels {
		vs, ok := report.Risk.LastScores[ch]
		if !ok {
			continue
		}
		note := ""
		switch {
		case vs.InsufficientData:
			note = "insufficient data"
		case vs.Stale:
			note = "stale (timed out)"
		}
		r, g, b := statusColor(vs.Status)

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(45, 7, ch.Label(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.3f", vs.Score), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 7, string(vs.Status), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(25, 7, fmt.Sprintf("%.1f", report.Risk.Contributions[ch]), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 7, note, "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addEvents(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	sectionTitle(pdf, fmt.Sprintf("Threat Events (%d)", len(report.Events)))
	if len(report.Events) == 0 {
		emptyNote(pdf, "No threat events recorded")
		return
	}

	for i, ev := range newestFirst(report.Events) {
		if i >= e.MaxEvents {
			emptyNote(pdf, fmt.Sprintf("%d older events omitted", len(report.Events)-e.MaxEvents))
			break
		}
		r, g, b := severityColor(ev.Severity)
		pdf.SetFillColor(r, g, b)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(22, 6, string(ev.Severity), "", 0, "C", true, 0, "")

		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(0, 51, 102)
		pdf.CellFormat(0, 6, fmt.Sprintf("  %s  [%s]  %s", ev.Channel.Label(), ev.Status, ev.CreatedAt.UTC().Format("01-02 15:04:05")), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, 5, ev.Description, "", "L", false)
		for _, line := range ev.Evidence {
			pdf.CellFormat(5, 5, "", "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, "- "+truncate(line, 110), "", 1, "L", false, 0, "")
		}
		if ev.Narrative != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.MultiCell(0, 5, ev.Narrative, "", "L", false)
		}
		pdf.Ln(3)
	}
	pdf.Ln(3)
}

func (e *PDFExporter) addDecisions(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	sectionTitle(pdf, fmt.Sprintf("Policy Decisions (%d)", len(report.Decisions)))
	if len(report.Decisions) == 0 {
		emptyNote(pdf, "No policy decisions recorded")
		return
	}

	tableHeader(pdf, []column{{"Time", 28}, {"Transition", 52}, {"Rule", 40}, {"Actions", 50}})
	pdf.SetFont("Arial", "", 8)
	pdf.SetTextColor(60, 60, 60)
	shown := report.Decisions
	if len(shown) > e.MaxDecisions {
		shown = shown[len(shown)-e.MaxDecisions:]
	}
	for _, d := range shown {
		actions := make([]string, len(d.Actions))
		for i, a := range d.Actions {
			actions[i] = string(a)
		}
		pdf.CellFormat(28, 6, d.Timestamp.UTC().Format("01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(52, 6, fmt.Sprintf("%s -> %s", d.PreviousState, d.State), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, d.Rationale, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, truncate(strings.Join(actions, ", "), 34), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addApps(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	if len(report.Apps) == 0 {
		return
	}
	sectionTitle(pdf, "Application Assessment")

	tableHeader(pdf, []column{{"Package", 70}, {"Risk", 20}, {"Malicious", 22}, {"Reasons", 58}})
	pdf.SetFont("Arial", "", 8)
	for _, app := range report.Apps {
		pdf.SetTextColor(60, 60, 60)
		if app.IsMalicious {
			pdf.SetTextColor(220, 53, 69)
		}
		malicious := "no"
		if app.IsMalicious {
			malicious = "yes"
		}
		pdf.CellFormat(70, 6, truncate(app.Package, 45), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", app.RiskScore), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, malicious, "1", 0, "C", false, 0, "")
		pdf.CellFormat(58, 6, truncate(strings.Join(app.Reasons, "; "), 40), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report domain.IncidentReport) {
	pdf.Ln(4)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	chain := "decision audit chain verified"
	if !report.ChainValid {
		pdf.SetTextColor(220, 53, 69)
		chain = "decision audit chain FAILED verification"
	}
	pdf.CellFormat(0, 5, "mids | "+chain, "", 1, "C", false, 0, "")
}

type column struct {
	title string
	width float64
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func emptyNote(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, text, "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func tableHeader(pdf *gofpdf.Fpdf, cols []column) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(60, 60, 60)
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(c.width, 7, c.title, "1", ln, "L", true, 0, "")
	}
}

func newestFirst(events []domain.ThreatEvent) []domain.ThreatEvent {
	out := make([]domain.ThreatEvent, len(events))
	for i, ev := range events {
		out[len(events)-1-i] = ev
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func stateColor(s domain.PolicyState) (r, g, b int) {
	switch s {
	case domain.StateDefenseActive:
		return 220, 53, 69
	case domain.StateElevated:
		return 255, 149, 0
	default:
		return 52, 199, 89
	}
}

func statusColor(s domain.VectorStatus) (r, g, b int) {
	switch s {
	case domain.StatusCritical:
		return 220, 53, 69
	case domain.StatusWarning:
		return 255, 149, 0
	default:
		return 52, 199, 89
	}
}

func severityColor(s domain.Severity) (r, g, b int) {
	switch s {
	case domain.SeverityCritical:
		return 220, 53, 69
	case domain.SeverityHigh:
		return 255, 149, 0
	case domain.SeverityMedium:
		return 255, 204, 0
	default:
		return 52, 199, 89
	}
}
