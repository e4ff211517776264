package document

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/studyguide/internal/document/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	pdf := pdftest.New("Hello study guide")

	tests := []struct {
		name     string
		file     string
		mime     string
		data     []byte
		max      int64
		expected error
	}{
		{name: "valid pdf", file: "notes.pdf", mime: "application/pdf", data: pdf},
		{name: "octet stream with pdf extension", file: "notes.pdf", mime: "application/octet-stream", data: pdf},
		{name: "too large", file: "notes.pdf", mime: "application/pdf", data: pdf, max: 16, expected: ErrTooLarge},
		{name: "wrong declared type", file: "notes.png", mime: "image/png", data: pdf, expected: ErrUnsupportedType},
		{name: "not a pdf", file: "notes.pdf", mime: "application/pdf", data: []byte("just some text"), expected: ErrUnsupportedType},
		{name: "empty", file: "notes.pdf", mime: "application/pdf", data: nil, expected: ErrInvalid},
		{name: "broken structure", file: "notes.pdf", mime: "application/pdf", data: []byte("%PDF-1.4\ngarbage\n%%EOF"), expected: ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Validate(tt.file, tt.mime, tt.data, tt.max)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Nil(t, doc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, doc.Pages)
			assert.Equal(t, MIMEType, doc.MIME)
			assert.Equal(t, int64(len(tt.data)), doc.Size())
		})
	}
}

func TestReadStopsAtLimit(t *testing.T) {
	big := append(pdftest.New("x"), bytes.Repeat([]byte(" "), 4096)...)
	_, err := Read(bytes.NewReader(big), "big.pdf", MIMEType, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestText(t *testing.T) {
	doc, err := Validate("notes.pdf", MIMEType, pdftest.New("Hello study guide", "Second line"), 0)
	require.NoError(t, err)

	text, err := doc.Text()
	require.NoError(t, err)
	assert.Contains(t, text, "Hello study guide")
	assert.Contains(t, text, "Second line")
	assert.Less(t, strings.Index(text, "Hello"), strings.Index(text, "Second"))
}

func TestTextOnGarbageDoesNotPanic(t *testing.T) {
	doc := &Document{Name: "x.pdf", Data: []byte("%PDF-1.4 nope")}
	_, err := doc.Text()
	assert.ErrorIs(t, err, ErrInvalid)
}
