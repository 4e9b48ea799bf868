// Package pdfbrief extracts plain text from uploaded marketing brief PDFs.
package pdfbrief

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText pulls the text of every readable page, joined by blank lines.
// Pages that fail to extract are skipped; an error is returned only when the
// document itself cannot be opened.
func ExtractText(pdfBytes []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	chunks := []string{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(chunks, "\n\n")), nil
}
