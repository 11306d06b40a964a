package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
)

// buildPDF lays out numbered objects with a classic xref table.
func buildPDF(objects []string, trailer string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return buf.Bytes()
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

const pageContent = "BT /F1 10 Tf 20 250 Td (Figure 1) Tj ET\n" +
	"q 100 0 0 50 20 180 cm /Im1 Do Q\n" +
	"BT /F1 10 Tf 20 160 Td (Caption text) Tj ET"

func samplePDF() []byte {
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 200 300] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> /XObject << /Im1 6 0 R /Im2 7 0 R >> >> /Contents 4 0 R >>",
		stream("", pageContent),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		stream("/Type /XObject /Subtype /Image /Width 2 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "\x00\xff"),
		stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8", "abc"),
		"<< /Title (Report) /Producer (pdfalt test) >>",
	}, "<< /Size 9 /Root 1 0 R /Info 8 0 R >>")
}

func openBytes(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := NewDocument(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return doc
}

// singleImagePDF is a 200x300 page drawing /Im1 into (20,180)-(120,230).
func singleImagePDF(image string) []byte {
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 300] /Resources << /XObject << /Im1 5 0 R >> >> /Contents 4 0 R >>",
		stream("", "q 100 0 0 50 20 180 cm /Im1 Do Q"),
		image,
	}, "<< /Size 6 /Root 1 0 R >>")
}

var fakeJPEG = "\xff\xd8\xff\xe0\x00\x10JFIF\x00 not really a jpeg \xff\xd9"

func TestDocumentPage(t *testing.T) {
	doc := openBytes(t, samplePDF())
	require.Equal(t, 1, doc.PageCount())

	page, err := doc.Page(0)
	require.NoError(t, err)
	assert.Equal(t, 200.0, page.Width)
	assert.Equal(t, 300.0, page.Height)

	require.Len(t, page.Runs, 2)
	assert.Equal(t, "Figure 1", page.Runs[0].Text)
	assert.Equal(t, "Caption text", page.Runs[1].Text)
	assert.InDelta(t, 50, page.Runs[0].Rect.Y1, 0.01)
	assert.InDelta(t, 130, page.Runs[1].Rect.Y0, 0.01)

	require.Len(t, page.Images, 2)
	placed := page.Images[0]
	require.NotNil(t, placed.Rect)
	assert.Equal(t, models.NewRectangle(20, 70, 120, 120), *placed.Rect)
	assert.Equal(t, "image_p1_1.png", placed.Name())

	img, err := png.Decode(bytes.NewReader(placed.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	assert.Nil(t, page.Images[1].Rect)
	assert.Equal(t, 1, page.Images[1].SequenceInPage)
}

func TestDocumentPageJPEG(t *testing.T) {
	var flated bytes.Buffer
	zw := zlib.NewWriter(&flated)
	_, err := zw.Write([]byte(fakeJPEG))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tests := []struct {
		name  string
		image string
	}{
		{"dct", stream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", fakeJPEG)},
		{"flate over dct", stream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter [/FlateDecode /DCTDecode]", flated.String())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := openBytes(t, singleImagePDF(tt.image)).Page(0)
			require.NoError(t, err)
			require.Len(t, page.Images, 1)

			img := page.Images[0]
			assert.Equal(t, "image_p1_1.jpeg", img.Name())
			require.NotNil(t, img.Rect)
			assert.Equal(t, models.NewRectangle(20, 70, 120, 120), *img.Rect)
			assert.True(t, bytes.HasPrefix(img.Bytes, []byte{0xFF, 0xD8}))
			assert.Equal(t, []byte(fakeJPEG), img.Bytes)
		})
	}
}

func TestDocumentPageCorruptJPEG(t *testing.T) {
	image := stream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /Filter /DCTDecode", "not a jpeg")
	page, err := openBytes(t, singleImagePDF(image)).Page(0)
	require.NoError(t, err)
	require.Len(t, page.Images, 1)
	assert.Equal(t, "jpeg", page.Images[0].FormatExtension)
	assert.Nil(t, page.Images[0].Bytes)
}

func TestDocumentPageFormImages(t *testing.T) {
	data := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 200 300] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /XObject << /Fm1 5 0 R /Im2 7 0 R >> >> /Contents 4 0 R >>",
		stream("", "q 2 0 0 2 10 10 cm /Fm1 Do Q\nq 10 0 0 10 150 10 cm /Im2 Do Q"),
		stream("/Type /XObject /Subtype /Form /BBox [0 0 100 100] /Matrix [1 0 0 1 5 5] /Resources << /XObject << /Im1 6 0 R /Fm1 5 0 R >> >>",
			"q 40 0 0 20 0 0 cm /Im1 Do Q /Fm1 Do"),
		stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8", "abc"),
		stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "\x80"),
	}, "<< /Size 8 /Root 1 0 R >>")

	page, err := openBytes(t, data).Page(0)
	require.NoError(t, err)
	require.Len(t, page.Images, 2)

	nested := page.Images[0]
	assert.Equal(t, 0, nested.SequenceInPage)
	require.NotNil(t, nested.Rect)
	assert.Equal(t, models.NewRectangle(20, 240, 100, 280), *nested.Rect)
	assert.NotEmpty(t, nested.Bytes)

	direct := page.Images[1]
	assert.Equal(t, 1, direct.SequenceInPage)
	require.NotNil(t, direct.Rect)
	assert.Equal(t, models.NewRectangle(150, 280, 160, 290), *direct.Rect)
}

func TestDocumentPageOutOfRange(t *testing.T) {
	doc := openBytes(t, samplePDF())
	_, err := doc.Page(1)
	assert.Error(t, err)
	_, err = doc.Page(-1)
	assert.Error(t, err)
}

func TestDocumentMetadata(t *testing.T) {
	doc := openBytes(t, samplePDF())
	assert.ElementsMatch(t, []types.MetadataEntry{
		{Key: "Producer", Value: "pdfalt test"},
		{Key: "Title", Value: "Report"},
	}, doc.Metadata())
}

func TestWriteMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	original := samplePDF()
	require.NoError(t, os.WriteFile(src, original, 0o644))

	entries := []types.MetadataEntry{
		{Key: "Title", Value: "Report (final)"},
		{Key: "AltText", Value: "image_p1_1.png: Säulendiagramm"},
		{Key: "TaggedPDF", Value: "Yes"},
	}
	require.NoError(t, WriteMetadata(src, dst, entries))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, original), "original bytes must be kept")

	doc := openBytes(t, out)
	assert.ElementsMatch(t, entries, doc.Metadata())
	assert.Equal(t, 1, doc.PageCount())
}

func TestWriteMetadataKeepsValueKinds(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	data := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 300] >>",
		"<< /Title (Report) /Trapped /False /Pages 3 >>",
	}, "<< /Size 5 /Root 1 0 R /Info 4 0 R >>")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	original := openBytes(t, data).Metadata()
	assert.ElementsMatch(t, []types.MetadataEntry{
		{Key: "Title", Value: "Report"},
		{Key: "Trapped", Value: "False", Kind: types.NameValue},
		{Key: "Pages", Value: "3", Kind: types.RawValue},
	}, original)

	require.NoError(t, WriteMetadata(src, dst, original))
	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(out[len(data):]), "/Trapped /False")
	assert.Contains(t, string(out[len(data):]), "/Pages 3")
	assert.ElementsMatch(t, original, openBytes(t, out).Metadata())
}

func TestWriteMetadataErrors(t *testing.T) {
	dir := t.TempDir()
	err := WriteMetadata(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.pdf"), nil)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4\nnot a pdf\n"), 0o644))
	err = WriteMetadata(bad, filepath.Join(dir, "out.pdf"), nil)
	assert.ErrorIs(t, err, ErrNoTrailer)
	assert.NoFileExists(t, filepath.Join(dir, "out.pdf"))
}

func TestEncodeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Yes", "(Yes)"},
		{`a (b) \c`, `(a \(b\) \\c)`},
		{"line\nbreak", `(line\nbreak)`},
		{"é", "<FEFF00E9>"},
		{"", "()"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeString(tt.in), tt.in)
	}
}

func TestEncodeValue(t *testing.T) {
	assert.Equal(t, "/False", encodeValue(types.MetadataEntry{Value: "False", Kind: types.NameValue}))
	assert.Equal(t, "/A#20B", encodeValue(types.MetadataEntry{Value: "A B", Kind: types.NameValue}))
	assert.Equal(t, "12.5", encodeValue(types.MetadataEntry{Value: "12.5", Kind: types.RawValue}))
	assert.Equal(t, "(1 0 R)", encodeValue(types.MetadataEntry{Value: "1 0 R", Kind: types.RawValue}))
	assert.Equal(t, "(False)", encodeValue(types.MetadataEntry{Value: "False"}))
}

func TestEncodeName(t *testing.T) {
	assert.Equal(t, "AltText", encodeName("AltText"))
	assert.Equal(t, "Alt#20Text", encodeName("Alt Text"))
	assert.Equal(t, "a#2Fb#23", encodeName("a/b#"))
}

func TestMatrixUnitSquare(t *testing.T) {
	m := matrix{100, 0, 0, 50, 20, 180}.mul(identity)
	assert.Equal(t, box{x0: 20, y0: 180, x1: 120, y1: 230}, m.unitSquare())

	// Scale after translate: translation is scaled too.
	m = matrix{1, 0, 0, 1, 10, 10}.mul(matrix{2, 0, 0, 2, 0, 0})
	assert.Equal(t, box{x0: 20, y0: 20, x1: 22, y1: 22}, m.unitSquare())
}

func TestGroupRuns(t *testing.T) {
	mb := box{x1: 100, y1: 100}
	texts := []pdf.Text{
		{X: 10, Y: 80, W: 5, FontSize: 10, S: "A"},
		{X: 15, Y: 80, W: 5, FontSize: 10, S: "b"},
		{X: 30, Y: 80, W: 5, FontSize: 10, S: "c"},
		// next line of the same block
		{X: 10, Y: 68, W: 5, FontSize: 10, S: "d"},
		// far below, new block
		{X: 10, Y: 20, W: 5, FontSize: 10, S: "e"},
	}
	runs := groupRuns(texts, mb)
	require.Len(t, runs, 2)
	assert.Equal(t, "Ab c d", runs[0].Text)
	assert.Equal(t, models.NewRectangle(10, 10, 35, 32), runs[0].Rect)
	assert.Equal(t, "e", runs[1].Text)
}
