package access

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
)

const (
	exportTimestampLayout = "2006-01-02T15:04:05.000Z07:00"
	exportDevicePrefixLen = 4
	exportMissingSummary  = "N/A"
)

var exportWhitespace = regexp.MustCompile(`\s+`)

// ExportCopy is a plain-text copy of a document stamped with the exporting device.
type ExportCopy struct {
	FileName string
	Content  string
}

func stampCopy(document catalog.Document, account ledger.Account, at time.Time) ExportCopy {
	summary := document.AISummary
	if strings.TrimSpace(summary) == "" {
		summary = exportMissingSummary
	}
	var builder strings.Builder
	fmt.Fprintln(&builder, "[SECURE DOCUMENT - DO NOT DISTRIBUTE]")
	fmt.Fprintf(&builder, "DEVICE ID BINDING: %s\n", account.BoundDevice)
	fmt.Fprintf(&builder, "USER: %s\n", account.DisplayName)
	fmt.Fprintf(&builder, "TIMESTAMP: %s\n\n", at.UTC().Format(exportTimestampLayout))
	fmt.Fprintf(&builder, "--- DOCUMENT: %s ---\n", strings.ToUpper(document.Title))
	fmt.Fprintf(&builder, "AUTHOR: %s\n", document.AuthorName)
	fmt.Fprintf(&builder, "TYPE: %s\n\n", document.DocType)
	fmt.Fprintf(&builder, "--- DESCRIPTION ---\n%s\n\n", document.Description)
	fmt.Fprintf(&builder, "--- AI SUMMARY ---\n%s\n\n", summary)
	fmt.Fprintln(&builder, "--- CONTENT SIMULATION ---")
	fmt.Fprintln(&builder, "Lorem ipsum dolor sit amet, consectetur adipiscing elit.")
	builder.WriteString("(This is a generated file for demonstration purposes.)")

	return ExportCopy{
		FileName: exportFileName(document.Title, account.BoundDevice.String()),
		Content:  builder.String(),
	}
}

// exportFileName renders SECURE_<title with whitespace runs as underscores>_<device prefix>.txt.
func exportFileName(title, deviceID string) string {
	prefix := deviceID
	if len(prefix) > exportDevicePrefixLen {
		prefix = prefix[:exportDevicePrefixLen]
	}
	return fmt.Sprintf("SECURE_%s_%s.txt", exportWhitespace.ReplaceAllString(strings.TrimSpace(title), "_"), prefix)
}
