// Package doctext turns resume/CV documents (.docx, .pdf, .txt) into the
// cleaned plain text the extraction pipeline consumes.
package doctext

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// ErrUnsupportedType is returned for any file extension other than .docx,
// .pdf or .txt.
var ErrUnsupportedType = errors.New("unsupported file type")

var (
	newlineRuns    = regexp.MustCompile(`\n+`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	pageFooters    = regexp.MustCompile(`page \d+ of \d+`)
	bulletGlyphs   = regexp.MustCompile(`[•●▪■–—]`)
)

// Clean normalizes extracted text before it reaches the model: lowercase,
// collapsed newlines and whitespace, "page N of M" footers and bullet/dash
// glyphs removed.
func Clean(text string) string {
	text = strings.ToLower(text)
	text = newlineRuns.ReplaceAllString(text, "\n")
	text = whitespaceRuns.ReplaceAllString(text, " ")
	text = pageFooters.ReplaceAllString(text, "")
	text = bulletGlyphs.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// FromFile extracts cleaned text from the document at path. The format is
// chosen by extension; anything else fails with ErrUnsupportedType.
func FromFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		text, err := docxToText(path)
		if err != nil {
			return "", err
		}
		return Clean(text), nil
	case ".pdf":
		text, err := pdfToText(path)
		if err != nil {
			return "", err
		}
		return Clean(text), nil
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "reading %q", path)
		}
		return Clean(string(data)), nil
	default:
		return "", errors.Wrapf(ErrUnsupportedType, "%q", filepath.Ext(path))
	}
}

// pdfToText concatenates the plain text of every page. Pages that fail to
// decode contribute nothing, mirroring extractors that return empty text for
// image-only pages.
func pdfToText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening pdf %q", path)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// docx structure: a zip archive whose word/document.xml holds the body as
// w:p (paragraph) and w:t (text run) elements.
func docxToText(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening docx %q", path)
	}
	defer func() { _ = archive.Close() }()

	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", errors.Wrap(err, "opening word/document.xml")
		}
		text, err := documentXMLToText(rc)
		_ = rc.Close()
		if err != nil {
			return "", err
		}
		return text, nil
	}
	return "", errors.Errorf("no word/document.xml in %q", path)
}

func documentXMLToText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "parsing word/document.xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
