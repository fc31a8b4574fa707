package agents

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// pdfText is the text layer of a PDF, one string per page
type pdfText struct {
	Pages []string
}

func (p *pdfText) String() string {
	return strings.Join(p.Pages, "\n")
}

// looksLikePDF checks the header and that the cross-reference table loads
func looksLikePDF(data []byte) bool {
	if !bytes.HasPrefix(data, pdfMagic) {
		return false
	}
	_, err := openPDF(data)
	return err == nil
}

// openPDF guards the reader, which panics on some malformed input
func openPDF(data []byte) (r *pdf.Reader, err error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("missing %s header", pdfMagic)
	}
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// extractPDFText reads the plain text of every page
func extractPDFText(data []byte) (text *pdfText, err error) {
	r, err := openPDF(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			text, err = nil, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	n := r.NumPage()
	out := &pdfText{Pages: make([]string, 0, n)}
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			out.Pages = append(out.Pages, "")
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		out.Pages = append(out.Pages, s)
	}
	return out, nil
}
