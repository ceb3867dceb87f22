package validate

import (
	"fmt"
	"strings"
)

// ToMarkdown generates a Markdown-formatted gate validation report.
func (gateReport *GateReport) ToMarkdown() string {
	var markdownBuilder strings.Builder

	overallStatus := "PASS"
	if !gateReport.OverallPass {
		overallStatus = "FAIL"
	}
	markdownBuilder.WriteString(fmt.Sprintf("# Gate Validation Report %s\n\n", markdownBadge(overallStatus)))

	markdownBuilder.WriteString("## Summary\n\n")
	markdownBuilder.WriteString("| Metric | Value |\n")
	markdownBuilder.WriteString("|--------|-------|\n")
	markdownBuilder.WriteString(fmt.Sprintf("| **Overall Score** | %.1f%% |\n", gateReport.TotalScore*100))
	markdownBuilder.WriteString(fmt.Sprintf("| **Gates Passed** | %d |\n", gateReport.GatesPassed))
	markdownBuilder.WriteString(fmt.Sprintf("| **Gates Failed** | %d |\n", gateReport.GatesFailed))
	markdownBuilder.WriteString(fmt.Sprintf("| **Gates Skipped** | %d |\n", gateReport.GatesSkipped))
	markdownBuilder.WriteString(fmt.Sprintf("| **Anomalies** | %d |\n", len(gateReport.Anomalies)))
	markdownBuilder.WriteString(fmt.Sprintf("| **Duration** | %v |\n", gateReport.Duration))
	if gateReport.HaltedAt != "" {
		markdownBuilder.WriteString(fmt.Sprintf("| **Halted At** | %s |\n", gateReport.HaltedAt))
	}
	markdownBuilder.WriteString("\n")

	markdownBuilder.WriteString("## Gate Results\n\n")
	for _, gateResult := range gateReport.Results {
		markdownBuilder.WriteString(fmt.Sprintf("### %s %s (%.1f%%)\n\n",
			markdownBadge(gateResult.status()), gateResult.Gate, gateResult.Score*100))

		if gateResult.Skipped {
			markdownBuilder.WriteString(fmt.Sprintf("*Skipped: %s*\n\n", gateResult.SkipReason))
			continue
		}

		if len(gateResult.Metrics) > 0 {
			markdownBuilder.WriteString("| Metric | Value |\n")
			markdownBuilder.WriteString("|--------|-------|\n")
			for _, metricName := range gateResult.metricNames() {
				markdownBuilder.WriteString(fmt.Sprintf("| %s | %.1f%% |\n", metricName, gateResult.Metrics[metricName]*100))
			}
			markdownBuilder.WriteString("\n")
		}

		if len(gateResult.Warnings) > 0 {
			markdownBuilder.WriteString("**Warnings:**\n\n")
			for _, gateWarning := range gateResult.Warnings {
				markdownBuilder.WriteString(fmt.Sprintf("- [%s] %s\n", gateWarning.Metric, gateWarning.Message))
			}
			markdownBuilder.WriteString("\n")
		}

		if len(gateResult.Errors) > 0 {
			markdownBuilder.WriteString("**Errors:**\n\n")
			for _, gateError := range gateResult.Errors {
				markdownBuilder.WriteString(fmt.Sprintf("- [%s] %s\n", gateError.Metric, gateError.Message))
			}
			markdownBuilder.WriteString("\n")
		}
	}

	if len(gateReport.Anomalies) > 0 {
		markdownBuilder.WriteString("## Anomalies\n\n")
		markdownBuilder.WriteString("| Kind | Rule | Parent | Line | Message |\n")
		markdownBuilder.WriteString("|------|------|--------|------|---------|\n")
		for _, anomaly := range gateReport.Anomalies {
			markdownBuilder.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
				anomaly.Kind, anomaly.ID, anomaly.ParentID, anomaly.Line,
				escapeMarkdownTableCell(anomaly.Message)))
		}
		markdownBuilder.WriteString("\n")
	}

	return markdownBuilder.String()
}

func markdownBadge(status string) string {
	return fmt.Sprintf("`%s`", status)
}

// escapeMarkdownTableCell escapes pipe characters in table cell content.
func escapeMarkdownTableCell(content string) string {
	return strings.ReplaceAll(content, "|", "\\|")
}
