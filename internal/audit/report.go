package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeReport renders audit_report.md into the output directory.
func (a *Auditor) writeReport(res *Result) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Diagram Audit Report\n\n")
	fmt.Fprintf(&sb, "**Total Pairs Analyzed:** %d\n", len(res.Decisions))
	fmt.Fprintf(&sb, "**Diagrams Deprecated:** %d\n", res.Moved)
	fmt.Fprintf(&sb, "**Diagrams Kept:** %d\n\n---\n\n", res.Kept)

	for _, d := range res.Decisions {
		switch d.Status {
		case StatusSkipped:
			fmt.Fprintf(&sb, "## SKIPPED: Pair (%d, %d)\n", d.DroppedID, d.KeptID)
			fmt.Fprintf(&sb, "**Reason:** %s\n", d.Reason)
		case StatusKeepBoth:
			fmt.Fprintf(&sb, "## KEPT BOTH: Pair (%d, %d)\n", d.DroppedID, d.KeptID)
			fmt.Fprintf(&sb, "**Confidence:** %s\n", orNA(d.Confidence))
			fmt.Fprintf(&sb, "**Reason:** %s\n", d.Reason)
		case StatusDropA:
			fmt.Fprintf(&sb, "## DEPRECATED ID %d\n", d.DroppedID)
			fmt.Fprintf(&sb, "**Kept:** ID %d\n", d.KeptID)
			fmt.Fprintf(&sb, "**Confidence:** %s\n", orNA(d.Confidence))
			fmt.Fprintf(&sb, "**Reason:** %s\n", d.Reason)
		case StatusDropB:
			fmt.Fprintf(&sb, "## DEPRECATED ID %d (Plan Reversed)\n", d.KeptID)
			fmt.Fprintf(&sb, "**Kept:** ID %d\n", d.DroppedID)
			fmt.Fprintf(&sb, "**Confidence:** %s\n", orNA(d.Confidence))
			fmt.Fprintf(&sb, "**Reason:** %s\n", d.Reason)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n*Generated by the post-generation auditor*\n")

	path := filepath.Join(a.outputDir, "audit_report.md")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing audit report: %w", err)
	}
	return path, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
