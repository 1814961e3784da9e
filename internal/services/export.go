package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

type ExportBackend interface {
	Export(ctx context.Context, jobID, format string) ([]byte, string, error)
}

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Pages       int
}

type ExportService struct {
	backend ExportBackend
}

func NewExportService(backend ExportBackend) *ExportService {
	return &ExportService{backend: backend}
}

// ExportFilename is "{title}.md" or "{title}.pdf", with "recipe" standing in
// for an empty title.
func ExportFilename(title, format string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "recipe"
	}
	base = filenameReplacer.Replace(base)

	ext := "md"
	if format == FormatPDF {
		ext = "pdf"
	}
	return base + "." + ext
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\"", "'", "\n", " ", "\r", " ")

func (s *ExportService) Export(ctx context.Context, jobID, title, format string) (*ExportFile, error) {
	if format != FormatMarkdown && format != FormatPDF {
		return nil, &ValidationError{Fields: map[string]string{"format": "format must be markdown or pdf"}}
	}
	if jobID == "" {
		return nil, ErrNoResult
	}

	data, contentType, err := s.backend.Export(ctx, jobID, format)
	if err != nil {
		return nil, err
	}

	file := &ExportFile{
		Filename:    ExportFilename(title, format),
		ContentType: contentType,
		Data:        data,
	}

	switch format {
	case FormatPDF:
		pages, err := PDFPageCount(data)
		if err != nil {
			return nil, fmt.Errorf("export: backend returned an unreadable pdf: %w", err)
		}
		file.Pages = pages
		if file.ContentType == "" {
			file.ContentType = "application/pdf"
		}
	case FormatMarkdown:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("export: backend returned an empty document")
		}
		if file.ContentType == "" {
			file.ContentType = "text/markdown; charset=utf-8"
		}
	}

	return file, nil
}

// PDFPageCount parses data as a PDF and fails unless it has at least one page.
func PDFPageCount(data []byte) (n int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	n = reader.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}
