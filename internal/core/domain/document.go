package domain

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const defaultMimeType = "application/pdf"

// Document is a user-selected file. The content is copied on construction and
// never changes afterwards.
type Document struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`

	content []byte
}

func NewDocument(name, mimeType string, content []byte) (Document, error) {
	if len(content) == 0 {
		return Document{}, WrapError(ErrInvalidInput, "new document", errors.New("document is empty"))
	}
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "document.pdf"
	}

	data := make([]byte, len(content))
	copy(data, content)

	return Document{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: resolveMimeType(name, mimeType, data),
		content:  data,
	}, nil
}

func (d Document) IsEmpty() bool {
	return len(d.content) == 0
}

// Reader returns a fresh reader over the document content.
func (d Document) Reader() io.Reader {
	return bytes.NewReader(d.content)
}

func resolveMimeType(name, mimeType string, data []byte) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return defaultMimeType
	}
	sniffed := http.DetectContentType(data)
	if sniffed == "application/octet-stream" {
		return defaultMimeType
	}
	return sniffed
}
