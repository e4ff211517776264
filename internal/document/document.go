// Package document validates uploaded study material and extracts text from it.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	rpdf "rsc.io/pdf"
)

const (
	// MIMEType is the only accepted media type.
	MIMEType = "application/pdf"

	// DefaultMaxBytes is the largest accepted upload.
	DefaultMaxBytes = 20 << 20
)

var (
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalid         = errors.New("file is not a readable PDF")
)

// Document is a validated PDF.
type Document struct {
	Name  string
	MIME  string
	Data  []byte
	Pages int
}

// Size returns the document length in bytes.
func (d *Document) Size() int64 { return int64(len(d.Data)) }

// Read consumes at most maxBytes from r and validates the result.
func Read(r io.Reader, name, declaredMIME string, maxBytes int64) (*Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return Validate(name, declaredMIME, data, maxBytes)
}

// Validate checks size, media type and PDF structure, in that order.
func Validate(name, declaredMIME string, data []byte, maxBytes int64) (*Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d MB", ErrTooLarge, name, maxBytes>>20)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalid, name)
	}

	detected := http.DetectContentType(data)
	if !isPDF(declaredMIME, detected, name) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, name, detected)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrInvalid, name)
	}

	return &Document{Name: name, MIME: MIMEType, Data: data, Pages: ctx.PageCount}, nil
}

func isPDF(declared, detected, name string) bool {
	if !strings.HasPrefix(detected, MIMEType) {
		return false
	}
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	switch declared {
	case MIMEType, "application/x-pdf":
		return true
	case "", "application/octet-stream":
		// browsers send these for files with unknown extensions
		return strings.EqualFold(filepath.Ext(name), ".pdf") || filepath.Ext(name) == ""
	}
	return false
}

// Text extracts the text layer page by page. Pages are separated by a
// blank line; runs on a new baseline start a new line.
func (d *Document) Text() (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: text extraction failed: %v", ErrInvalid, r)
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(d.Data), d.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if t := pageText(page.Content().Text); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func pageText(runs []rpdf.Text) string {
	sorted := append([]rpdf.Text(nil), runs...)
	// top of the page first, then left to right
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var b strings.Builder
	for i, r := range sorted {
		if i > 0 && r.Y != sorted[i-1].Y {
			b.WriteByte('\n')
		}
		b.WriteString(r.S)
	}
	return strings.TrimSpace(b.String())
}
