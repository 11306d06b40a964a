package pdf

import (
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
)

// US Letter, used when a page has no usable MediaBox.
var defaultMediaBox = box{x0: 0, y0: 0, x1: 612, y1: 792}

// Document is a native PDF opened for reading.
type Document struct {
	file   *os.File
	src    io.ReaderAt
	reader *pdf.Reader
	path   string
}

// Open opens the PDF at path.
func Open(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	return &Document{file: f, src: f, reader: r, path: path}, nil
}

// NewDocument reads a PDF of size bytes from src. The caller keeps
// ownership of src.
func NewDocument(src io.ReaderAt, size int64) (*Document, error) {
	r, err := pdf.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return &Document{src: src, reader: r}, nil
}

func (d *Document) PageCount() int {
	return d.reader.NumPage()
}

// Page returns the page model of the zero-based page index. Malformed
// content streams are reported as errors rather than panics.
func (d *Document) Page(index int) (page models.Page, err error) {
	if index < 0 || index >= d.reader.NumPage() {
		return models.Page{}, fmt.Errorf("page %d out of range", index)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page %d: %v", index, r)
		}
	}()

	p := d.reader.Page(index + 1)
	if p.V.IsNull() {
		return models.Page{}, fmt.Errorf("page %d not found", index)
	}

	mb, ok := mediaBox(p.V)
	if !ok {
		logger.WithFields(logrus.Fields{"page": index}).Warn("No valid MediaBox, using US Letter")
		mb = defaultMediaBox
	}

	page = models.Page{
		Index:  index,
		Width:  mb.width(),
		Height: mb.height(),
		Runs:   groupRuns(p.Content().Text, mb),
		Images: pageImages(p, index, mb, d.rawStreams()),
	}
	return page, nil
}

// Metadata returns the entries of the document Info dictionary. A
// malformed dictionary yields no entries.
func (d *Document) Metadata() (entries []types.MetadataEntry) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("reason", r).Warn("Failed to read document metadata")
			entries = nil
		}
	}()

	info := d.reader.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return nil
	}

	// Keys come back sorted; the dictionary's own order is not recoverable.
	for _, key := range info.Keys() {
		entries = append(entries, metadataEntry(key, info.Key(key)))
	}
	return entries
}

// rawStreams reads undecoded stream data from the file. Encrypted
// documents have no usable raw data.
func (d *Document) rawStreams() rawStreams {
	if !d.reader.Trailer().Key("Encrypt").IsNull() {
		return rawStreams{}
	}
	return rawStreams{src: d.src}
}

func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

// metadataEntry keeps names, numbers and booleans in their own kind so they
// are written back unchanged. Anything else is read as text.
func metadataEntry(key string, v pdf.Value) types.MetadataEntry {
	e := types.MetadataEntry{Key: key}
	switch v.Kind() {
	case pdf.String:
		e.Value = v.Text()
	case pdf.Name:
		e.Value, e.Kind = v.Name(), types.NameValue
	case pdf.Integer, pdf.Real, pdf.Bool:
		e.Value, e.Kind = v.String(), types.RawValue
	case pdf.Null:
	default:
		e.Value = v.String()
	}
	return e
}

// box is a rectangle in PDF user space, y growing upward.
type box struct {
	x0, y0, x1, y1 float64
}

func (b box) width() float64  { return b.x1 - b.x0 }
func (b box) height() float64 { return b.y1 - b.y0 }

// toPage converts a user space rectangle to page space with a top-left origin.
func (b box) toPage(r box) models.Rectangle {
	return models.NewRectangle(r.x0-b.x0, b.y1-r.y1, r.x1-b.x0, b.y1-r.y0)
}

// mediaBox walks up the page tree until it finds a MediaBox.
func mediaBox(v pdf.Value) (box, bool) {
	for i := 0; i < 32 && !v.IsNull(); i++ {
		if mb, ok := parseBox(v.Key("MediaBox")); ok {
			return mb, true
		}
		v = v.Key("Parent")
	}
	return box{}, false
}

func parseBox(v pdf.Value) (box, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return box{}, false
	}
	var c [4]float64
	for i := range c {
		n := v.Index(i)
		if n.Kind() != pdf.Integer && n.Kind() != pdf.Real {
			return box{}, false
		}
		c[i] = n.Float64()
	}
	r := models.NewRectangle(c[0], c[1], c[2], c[3])
	if r.Width() <= 0 || r.Height() <= 0 {
		return box{}, false
	}
	return box{x0: r.X0, y0: r.Y0, x1: r.X1, y1: r.Y1}, true
}

var _ types.DocumentSource = (*Document)(nil)
