// Package pdf extracts per-page plain text from uploaded PDF bytes.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtract marks content that could not be parsed as a PDF.
var ErrExtract = errors.New("pdf extraction failed")

// Page is one page of extracted text. Numbers are 1-based.
type Page struct {
	Number int
	Text   string
}

// Extract parses data and returns one Page per PDF page, in order.
// Zero-byte input yields zero pages without error. Corrupt or non-PDF
// content returns an error wrapping ErrExtract.
func Extract(name string, data []byte) (pages []Page, err error) {
	if len(data) == 0 {
		return nil, nil
	}

	// The underlying parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: parser panic: %v", ErrExtract, name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtract, name, err)
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	return pages, nil
}
