package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/threatcanvas/sdk/pkg/shared/severity"
)

// WriteMarkdown renders the report as a human-readable Markdown document:
// model overview, assumptions, inventories, and the findings grouped by
// severity.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Threat Model Report: %s\n\n", r.Model.Name)
	if r.Model.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Model.Description)
	}
	fmt.Fprintf(&b, "- Report ID: `%s`\n", r.Metadata.ID)
	fmt.Fprintf(&b, "- Generated: %s\n", r.Metadata.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Findings: %d (highest severity: %s)\n\n",
		r.Summary.Total, r.HighestSeverity())

	if len(r.Model.Assumptions) > 0 {
		b.WriteString("## Assumptions\n\n")
		for _, a := range r.Model.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	if len(r.Model.Elements) > 0 {
		b.WriteString("## Elements\n\n")
		b.WriteString("| Name | Kind | Boundary | OS | In Scope |\n")
		b.WriteString("|------|------|----------|----|----------|\n")
		for _, e := range r.Model.Elements {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %v |\n",
				e.Name, e.Kind, orDash(e.Boundary), orDash(e.OS), e.InScope)
		}
		b.WriteString("\n")
	}

	if len(r.Model.Flows) > 0 {
		b.WriteString("## Dataflows\n\n")
		b.WriteString("| # | Flow | Source | Sink | Protocol | Port | TLS |\n")
		b.WriteString("|---|------|--------|------|----------|------|-----|\n")
		for _, f := range r.Model.Flows {
			port := "-"
			if f.DstPort > 0 {
				port = fmt.Sprintf("%d", f.DstPort)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s |\n",
				f.Seq+1, f.Name, f.Source, f.Sink, orDash(f.Protocol), port, orDash(f.TLS))
		}
		b.WriteString("\n")
	}

	if len(r.Model.DataAssets) > 0 {
		b.WriteString("## Data Assets\n\n")
		b.WriteString("| Name | Classification | PII | Stored |\n")
		b.WriteString("|------|----------------|-----|--------|\n")
		for _, d := range r.Model.DataAssets {
			fmt.Fprintf(&b, "| %s | %s | %v | %v |\n",
				d.Name, d.Classification, d.PII, d.Stored)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n")
	} else {
		fmt.Fprintf(&b, "Critical: %d, High: %d, Medium: %d, Low: %d, Info: %d\n\n",
			r.Summary.Critical, r.Summary.High, r.Summary.Medium, r.Summary.Low, r.Summary.Info)

		for _, level := range severity.AllLevels() {
			r.writeFindingsAt(&b, level)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Report) writeFindingsAt(b *strings.Builder, level severity.Level) {
	wrote := false
	for _, f := range r.Findings {
		if f.Severity != level {
			continue
		}
		if !wrote {
			fmt.Fprintf(b, "### %s\n\n", strings.ToUpper(level.String()))
			wrote = true
		}
		fmt.Fprintf(b, "#### [%s] %s\n\n", f.RuleID, f.Summary)
		if f.Source != "" || f.Sink != "" {
			fmt.Fprintf(b, "- Dataflow: %s (%s -> %s)\n", f.Target, f.Source, f.Sink)
		} else {
			fmt.Fprintf(b, "- Target: %s\n", f.Target)
		}
		if f.Details != "" {
			fmt.Fprintf(b, "- Details: %s\n", f.Details)
		}
		if f.Mitigations != "" {
			fmt.Fprintf(b, "- Mitigations: %s\n", f.Mitigations)
		}
		fmt.Fprintf(b, "- Fingerprint: `%s`\n\n", f.Fingerprint)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
