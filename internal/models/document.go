package models

import "fmt"

// Rectangle is an axis-aligned box in page space with a top-left origin,
// y growing downward.
type Rectangle struct {
	X0, Y0, X1, Y1 float64
}

// NewRectangle returns a rectangle with its corners ordered so that
// X0 <= X1 and Y0 <= Y1.
func NewRectangle(x0, y0, x1, y1 float64) Rectangle {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rectangle{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r Rectangle) Width() float64  { return r.X1 - r.X0 }
func (r Rectangle) Height() float64 { return r.Y1 - r.Y0 }

func (r Rectangle) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", r.X0, r.Y0, r.X1, r.Y1)
}

// TextRun is one contiguous block of text on a page.
type TextRun struct {
	Rect Rectangle
	Text string
}

// ImageRef identifies one embedded image. Rect is nil when the image's
// placement on the page could not be determined.
type ImageRef struct {
	PageIndex       int
	SequenceInPage  int
	Rect            *Rectangle
	FormatExtension string
	Bytes           []byte
}

// Name is the stable file name of the image, e.g. image_p1_2.png.
func (i ImageRef) Name() string {
	return fmt.Sprintf("image_p%d_%d.%s", i.PageIndex+1, i.SequenceInPage+1, i.FormatExtension)
}

// Page is the per-page model handed over by a document source. Runs and
// Images are in the order the source discovered them.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Runs   []TextRun
	Images []ImageRef
}

// ContextRecord is the text context associated with one image.
type ContextRecord struct {
	ImageName  string
	Title      string
	TextBefore string
	TextAfter  string
}

// DescribedRecord is a ContextRecord with its generated description.
type DescribedRecord struct {
	ContextRecord
	Description string
}
