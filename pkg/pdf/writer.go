package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/xhad/pdfalt/internal/types"
)

var (
	ErrNoTrailer = errors.New("no trailer found")
	ErrEncrypted = errors.New("encrypted documents are not supported")

	startxrefRe = regexp.MustCompile(`startxref\s+(\d+)`)
	rootRe      = regexp.MustCompile(`/Root\s+(\d+)\s+(\d+)\s+R`)
	sizeRe      = regexp.MustCompile(`/Size\s+(\d+)`)
	encryptRe   = regexp.MustCompile(`/Encrypt\s`)
	rawValueRe  = regexp.MustCompile(`^(true|false|[+-]?(\d+\.?\d*|\.\d+))$`)
)

// WriteMetadata writes a copy of the PDF at srcPath to dstPath with its Info
// dictionary replaced by entries. The original bytes are kept unchanged and
// the new dictionary is appended as an incremental update.
func WriteMetadata(srcPath, dstPath string, entries []types.MetadataEntry) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}

	update, err := incrementalUpdate(src, entries)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", srcPath, err)
	}

	if err := writeFile(dstPath, func(w io.Writer) error {
		if _, err := w.Write(src); err != nil {
			return err
		}
		_, err := w.Write(update)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", dstPath, err)
	}
	return nil
}

// incrementalUpdate renders the bytes appended after src: one Info object,
// its xref section and a trailer chaining to the previous one.
func incrementalUpdate(src []byte, entries []types.MetadataEntry) ([]byte, error) {
	if encryptRe.Match(src) {
		return nil, ErrEncrypted
	}

	prev, ok := lastSubmatch(startxrefRe, src)
	if !ok {
		return nil, ErrNoTrailer
	}
	root := rootRe.FindAllSubmatch(src, -1)
	if len(root) == 0 {
		return nil, fmt.Errorf("%w: missing /Root", ErrNoTrailer)
	}
	size, ok := lastSubmatch(sizeRe, src)
	if !ok {
		return nil, fmt.Errorf("%w: missing /Size", ErrNoTrailer)
	}
	last := root[len(root)-1]
	rootRef := fmt.Sprintf("%s %s R", last[1], last[2])

	var buf bytes.Buffer
	if len(src) > 0 && src[len(src)-1] != '\n' && src[len(src)-1] != '\r' {
		buf.WriteByte('\n')
	}

	obj := size
	objOffset := len(src) + buf.Len()
	fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", obj, infoDict(entries))

	xrefOffset := len(src) + buf.Len()
	fmt.Fprintf(&buf, "xref\n%d 1\n%010d 00000 n \n", obj, objOffset)
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %s /Info %d 0 R /Prev %d >>\n", obj+1, rootRef, obj, prev)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func lastSubmatch(re *regexp.Regexp, src []byte) (int, bool) {
	matches := re.FindAllSubmatch(src, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(matches[len(matches)-1][1]))
	if err != nil {
		return 0, false
	}
	return n, true
}

func infoDict(entries []types.MetadataEntry) string {
	var b strings.Builder
	b.WriteString("<<")
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		b.WriteString(" /")
		b.WriteString(encodeName(e.Key))
		b.WriteByte(' ')
		b.WriteString(encodeValue(e))
	}
	b.WriteString(" >>")
	return b.String()
}

func encodeValue(e types.MetadataEntry) string {
	switch e.Kind {
	case types.NameValue:
		return "/" + encodeName(e.Value)
	case types.RawValue:
		if rawValueRe.MatchString(e.Value) {
			return e.Value
		}
	}
	return encodeString(e.Value)
}

// encodeName escapes a dictionary key as a PDF name without the slash.
func encodeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '!' || c > '~' || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// encodeString renders a PDF text string: a literal string when s is plain
// ASCII, otherwise UTF-16BE hex with a byte order mark.
func encodeString(s string) string {
	ascii := true
	for _, r := range s {
		if r > '~' || (r < ' ' && r != '\n' && r != '\r' && r != '\t') {
			ascii = false
			break
		}
	}

	if ascii {
		r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
		return "(" + r.Replace(s) + ")"
	}

	var b strings.Builder
	b.WriteString("<FEFF")
	for _, u := range utf16.Encode([]rune(s)) {
		fmt.Fprintf(&b, "%04X", u)
	}
	b.WriteString(">")
	return b.String()
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
