package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF = "application/pdf"

	// Only the head of the text layer is read; plan sets can run to hundreds of sheets.
	textProbeBytes = 4 << 10
)

var (
	ErrNotPDF   = errors.New("file is not a PDF")
	ErrNoPages  = errors.New("PDF has no pages")
	ErrTooLarge = errors.New("PDF exceeds the page limit")
)

// PlanInfo summarizes an uploaded plan set.
type PlanInfo struct {
	Pages   int
	HasText bool
}

// InspectPDF validates a plan upload and counts its pages.
// maxPages <= 0 disables the page limit.
func InspectPDF(ctx context.Context, data []byte, maxPages int) (PlanInfo, error) {
	if err := ctx.Err(); err != nil {
		return PlanInfo{}, err
	}
	if !LooksLikePDF(data) {
		return PlanInfo{}, ErrNotPDF
	}

	r, err := openPDF(data)
	if err != nil {
		return PlanInfo{}, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages, err := numPages(r)
	if err != nil {
		return PlanInfo{}, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if pages <= 0 {
		return PlanInfo{}, ErrNoPages
	}
	if maxPages > 0 && pages > maxPages {
		return PlanInfo{}, fmt.Errorf("%w: %d pages, limit %d", ErrTooLarge, pages, maxPages)
	}

	return PlanInfo{Pages: pages, HasText: hasText(r)}, nil
}

// LooksLikePDF checks the magic header, allowing leading whitespace some exporters emit.
func LooksLikePDF(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n\x00")
	return bytes.HasPrefix(trimmed, []byte("%PDF-"))
}

// The pdf package panics on some malformed xref tables.
func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func numPages(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("count pages: %v", rec)
		}
	}()
	return r.NumPage(), nil
}

// Scanned plan sets have no text layer; the workflow still accepts them.
func hasText(r *pdf.Reader) (found bool) {
	defer func() {
		if recover() != nil {
			found = false
		}
	}()
	plain, err := r.GetPlainText()
	if err != nil {
		return false
	}
	buf := make([]byte, textProbeBytes)
	n, _ := io.ReadFull(plain, buf)
	return strings.TrimSpace(string(buf[:n])) != ""
}
