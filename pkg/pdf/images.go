package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"regexp"
	"strconv"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
)

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m × n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// unitSquare is the user space rectangle an image XObject is painted into.
func (m matrix) unitSquare() box {
	b := box{x0: math.Inf(1), y0: math.Inf(1), x1: math.Inf(-1), y1: math.Inf(-1)}
	for _, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := m.apply(p[0], p[1])
		b.x0 = math.Min(b.x0, x)
		b.y0 = math.Min(b.y0, y)
		b.x1 = math.Max(b.x1, x)
		b.y1 = math.Max(b.y1, y)
	}
	return b
}

// maxFormDepth bounds how deep Form XObjects are followed.
const maxFormDepth = 8

// placedImage is an image XObject found through a page's resources. key is
// its resource path, e.g. "Fm1/Im1" for an image drawn by form Fm1.
// Objects are told apart by objectID, so an image drawn through several
// paths is listed once.
type placedImage struct {
	key   string
	obj   pdf.Value
	rect  box
	drawn bool
}

// imageWalker follows a page's content streams, and those of the forms it
// draws, collecting images in drawing order.
type imageWalker struct {
	images []placedImage
	seen   map[string]bool
	active map[string]bool
	page   int
}

func newImageWalker(page int) *imageWalker {
	return &imageWalker{seen: make(map[string]bool), active: make(map[string]bool), page: page}
}

// walk interprets content with the given resources. Images keep the
// rectangle they were first drawn into.
func (w *imageWalker) walk(content, resources pdf.Value, ctm matrix, prefix string, depth int) {
	xobjects := resources.Key("XObject")
	var saved []matrix
	do := func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "q":
			saved = append(saved, ctm)
		case "Q":
			if len(saved) > 0 {
				ctm = saved[len(saved)-1]
				saved = saved[:len(saved)-1]
			}
		case "cm":
			if m, ok := matrixOf(args); ok {
				ctm = m.mul(ctm)
			}
		case "Do":
			if n != 1 {
				return
			}
			name := args[0].Name()
			obj := xobjects.Key(name)
			key := prefix + name
			switch obj.Key("Subtype").Name() {
			case "Image":
				if id := objectID(obj); !w.seen[id] {
					w.seen[id] = true
					w.images = append(w.images, placedImage{key: key, obj: obj, rect: ctm.unitSquare(), drawn: true})
				}
			case "Form":
				w.form(key, obj, resources, ctm, depth)
			}
		}
	}
	interpret(content, do)
}

// form walks a Form XObject drawn under ctm. A form without resources
// uses those of the stream that draws it.
func (w *imageWalker) form(key string, obj, resources pdf.Value, ctm matrix, depth int) {
	id := objectID(obj)
	if depth >= maxFormDepth || w.active[id] {
		return
	}
	w.active[id] = true
	defer delete(w.active, id)

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"page": w.page + 1, "xobject": key, "reason": r}).
				Warn("Failed to read form XObject")
		}
	}()

	m := identity
	if fm := obj.Key("Matrix"); fm.Kind() == pdf.Array && fm.Len() == 6 {
		args := make([]pdf.Value, 6)
		for i := range args {
			args[i] = fm.Index(i)
		}
		if parsed, ok := matrixOf(args); ok {
			m = parsed
		}
	}
	if res := obj.Key("Resources"); res.Kind() == pdf.Dict {
		resources = res
	}
	w.walk(obj, resources, m.mul(ctm), key+"/", depth+1)
}

func matrixOf(args []pdf.Value) (matrix, bool) {
	var m matrix
	if len(args) != len(m) {
		return m, false
	}
	for i := range m {
		if k := args[i].Kind(); k != pdf.Integer && k != pdf.Real {
			return m, false
		}
		m[i] = args[i].Float64()
	}
	return m, true
}

// interpret runs do over a content stream or an array of them.
func interpret(content pdf.Value, do func(stk *pdf.Stack, op string)) {
	switch content.Kind() {
	case pdf.Array:
		for i := 0; i < content.Len(); i++ {
			pdf.Interpret(content.Index(i), do)
		}
	case pdf.Stream:
		pdf.Interpret(content, do)
	}
}

// pageImages lists the images a page draws, directly or through forms, in
// drawing order. Images in the page's resources it never draws follow
// without a rectangle.
func pageImages(p pdf.Page, pageIndex int, mb box, raw rawStreams) []models.ImageRef {
	resources := p.Resources()
	w := newImageWalker(pageIndex)
	w.walk(p.V.Key("Contents"), resources, identity, "", 0)

	found := w.images
	if xobjects := resources.Key("XObject"); xobjects.Kind() == pdf.Dict {
		for _, name := range xobjects.Keys() {
			obj := xobjects.Key(name)
			if obj.Key("Subtype").Name() == "Image" && !w.seen[objectID(obj)] {
				found = append(found, placedImage{key: name, obj: obj})
			}
		}
	}

	images := make([]models.ImageRef, 0, len(found))
	for i, img := range found {
		ref := models.ImageRef{
			PageIndex:      pageIndex,
			SequenceInPage: i,
		}
		if img.drawn {
			r := mb.toPage(img.rect)
			ref.Rect = &r
		}
		ref.Bytes, ref.FormatExtension = imageData(img.obj, raw)
		if len(ref.Bytes) == 0 {
			logger.WithFields(logrus.Fields{"page": pageIndex + 1, "xobject": img.key}).
				Debug("Image data could not be decoded")
		}
		images = append(images, ref)
	}
	return images
}

var jpegSOI = []byte{0xFF, 0xD8}

// imageData returns the image in a self-contained file format with its
// extension. Bytes are nil when the stream cannot be decoded.
func imageData(obj pdf.Value, raw rawStreams) ([]byte, string) {
	fs := filters(obj)
	last := ""
	if len(fs) > 0 {
		last = fs[len(fs)-1]
	}

	switch last {
	case "DCTDecode":
		data := encodedImage(obj, raw, fs)
		if !bytes.HasPrefix(data, jpegSOI) {
			return nil, "jpeg"
		}
		return data, "jpeg"
	case "JPXDecode":
		return encodedImage(obj, raw, fs), "jpx"
	}

	data, err := encodePNG(obj)
	if err != nil {
		return nil, "png"
	}
	return data, "png"
}

func filters(obj pdf.Value) []string {
	f := obj.Key("Filter")
	switch f.Kind() {
	case pdf.Name:
		return []string{f.Name()}
	case pdf.Array:
		names := make([]string, 0, f.Len())
		for i := 0; i < f.Len(); i++ {
			names = append(names, f.Index(i).Name())
		}
		return names
	}
	return nil
}

// encodedImage returns a DCT or JPX image as stored in the file. Flate
// filters applied on top of the image codec are undone; any other filter
// in front of it yields nil.
func encodedImage(obj pdf.Value, raw rawStreams, fs []string) []byte {
	data, ok := raw.read(obj)
	if !ok {
		return nil
	}
	for _, f := range fs[:len(fs)-1] {
		if f != "FlateDecode" {
			return nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil
		}
	}
	return data
}

// streamOffsetRe matches the file offset pdf.Value.String prints after a
// stream's dictionary, e.g. "<</Length 42>>@1234".
var streamOffsetRe = regexp.MustCompile(`@(\d+)$`)

// objectID identifies a stream by its position in the file.
func objectID(obj pdf.Value) string {
	if m := streamOffsetRe.FindStringSubmatch(obj.String()); m != nil {
		return m[1]
	}
	return obj.String()
}

// rawStreams reads stream data as stored in the file, before any filter.
// The reader only hands out decoded data and cannot decode image codecs.
type rawStreams struct {
	src io.ReaderAt
}

func (r rawStreams) read(obj pdf.Value) ([]byte, bool) {
	if r.src == nil || obj.Kind() != pdf.Stream {
		return nil, false
	}
	m := streamOffsetRe.FindStringSubmatch(obj.String())
	if m == nil {
		return nil, false
	}
	offset, err := strconv.ParseInt(m[1], 10, 64)
	length := obj.Key("Length").Int64()
	if err != nil || length <= 0 {
		return nil, false
	}

	data := make([]byte, length)
	if n, _ := r.src.ReadAt(data, offset); int64(n) < length {
		return nil, false
	}
	return data, true
}

// streamBytes reads a decoded stream, returning nil for filters the reader
// does not support.
func streamBytes(obj pdf.Value) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
		}
	}()

	rc := obj.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}
	return data
}

// encodePNG converts raw 8 bit samples to PNG.
func encodePNG(obj pdf.Value) ([]byte, error) {
	w := int(obj.Key("Width").Int64())
	h := int(obj.Key("Height").Int64())
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", w, h)
	}
	if bpc := obj.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", bpc)
	}

	comps := components(obj.Key("ColorSpace"))
	if comps == 0 {
		return nil, fmt.Errorf("unsupported color space")
	}

	samples := streamBytes(obj)
	if len(samples) < w*h*comps {
		return nil, fmt.Errorf("image data too short")
	}

	var img image.Image
	rect := image.Rect(0, 0, w, h)
	switch comps {
	case 1:
		img = &image.Gray{Pix: samples[:w*h], Stride: w, Rect: rect}
	case 3:
		rgba := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			copy(rgba.Pix[i*4:i*4+3], samples[i*3:i*3+3])
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	case 4:
		img = &image.CMYK{Pix: samples[:w*h*4], Stride: w * 4, Rect: rect}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func components(cs pdf.Value) int {
	name := cs.Name()
	if cs.Kind() == pdf.Array && cs.Len() > 0 {
		name = cs.Index(0).Name()
		if name == "ICCBased" && cs.Len() > 1 {
			return int(cs.Index(1).Key("N").Int64())
		}
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1
	case "DeviceRGB", "CalRGB":
		return 3
	case "DeviceCMYK":
		return 4
	}
	return 0
}
