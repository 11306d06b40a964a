// Package pdfxml reads the page model written by Poppler's
// `pdftohtml -xml -hidden` as a document source. Coordinates in that format
// already have a top-left origin.
package pdfxml

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
)

type Document struct {
	pages []models.Page
}

// Load parses the XML file at path. Image src attributes are resolved
// relative to the file's directory.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, filepath.Dir(path))
}

// Parse reads a pdftohtml XML document. Image bytes are loaded from baseDir
// when it is not empty.
func Parse(r io.Reader, baseDir string) (*Document, error) {
	// The HTML parser is lenient enough for pdftohtml output, which is not
	// always well formed XML. It rewrites <image> to <img>.
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	pages := doc.Find("page")
	if pages.Length() == 0 {
		return nil, fmt.Errorf("no pages found")
	}

	d := &Document{}
	pages.Each(func(i int, s *goquery.Selection) {
		d.pages = append(d.pages, parsePage(i, s, baseDir))
	})
	return d, nil
}

func parsePage(index int, s *goquery.Selection, baseDir string) models.Page {
	page := models.Page{
		Index:  index,
		Width:  attrFloat(s, "width"),
		Height: attrFloat(s, "height"),
	}
	log := logger.WithFields(logrus.Fields{"page": index + 1})

	s.Find("text, img, image").Each(func(_ int, el *goquery.Selection) {
		rect, ok := elementRect(el)

		if goquery.NodeName(el) == "text" {
			text := strings.TrimSpace(el.Text())
			if !ok || text == "" {
				return
			}
			page.Runs = append(page.Runs, models.TextRun{Rect: rect, Text: text})
			return
		}

		src, _ := el.Attr("src")
		img := models.ImageRef{
			PageIndex:       index,
			SequenceInPage:  len(page.Images),
			FormatExtension: extension(src),
		}
		if ok {
			img.Rect = &rect
		}
		if baseDir != "" && src != "" {
			data, err := os.ReadFile(filepath.Join(baseDir, src))
			if err != nil {
				log.WithError(err).WithField("src", src).Warn("Failed to read image file")
			}
			img.Bytes = data
		}
		page.Images = append(page.Images, img)
	})

	return page
}

func elementRect(s *goquery.Selection) (models.Rectangle, bool) {
	var v [4]float64
	for i, name := range []string{"top", "left", "width", "height"} {
		raw, ok := s.Attr(name)
		if !ok {
			return models.Rectangle{}, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return models.Rectangle{}, false
		}
		v[i] = f
	}
	top, left, width, height := v[0], v[1], v[2], v[3]
	return models.NewRectangle(left, top, left+width, top+height), true
}

func attrFloat(s *goquery.Selection, name string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s.AttrOr(name, "")), 64)
	return f
}

func extension(src string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(src), "."))
	switch ext {
	case "":
		return "png"
	case "jpg":
		return "jpeg"
	}
	return ext
}

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) Page(index int) (models.Page, error) {
	if index < 0 || index >= len(d.pages) {
		return models.Page{}, fmt.Errorf("page %d out of range", index)
	}
	return d.pages[index], nil
}

// Metadata is always empty; pdftohtml does not export the Info dictionary.
func (d *Document) Metadata() []types.MetadataEntry { return nil }

func (d *Document) Close() error { return nil }

var _ types.DocumentSource = (*Document)(nil)
