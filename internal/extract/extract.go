package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

const (
	KindPDF  = "pdf"
	KindDOCX = "docx"
	KindText = "txt"
)

// Detect maps an upload to one of the supported kinds using the file
// extension, falling back to content sniffing.
func Detect(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt", ".md", ".text":
		return KindText, nil
	}
	sniffed := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(sniffed, "application/pdf"):
		return KindPDF, nil
	case strings.HasPrefix(sniffed, "text/plain"):
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %s", appErr.ErrUnsupportedFile, fileName)
}

// Text returns the plain text of a CV upload.
func Text(ctx context.Context, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind, err := Detect(fileName, data)
	if err != nil {
		return "", err
	}
	var text string
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text file is not utf-8", appErr.ErrUnsupportedFile)
		}
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", appErr.ErrUnsupportedFile, kind, err)
	}
	return normalizeSpace(text), nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return stripWordXML(doc.Editable().GetContent())
}

// stripWordXML keeps the character data of a word document and ends a line
// at each paragraph or break.
func stripWordXML(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var sb strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if t.Name.Local == "tab" {
				sb.WriteString("\t")
			}
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String(), nil
}

func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
