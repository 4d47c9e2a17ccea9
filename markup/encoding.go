package markup

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

const utf8Name = "utf-8"

var boms = []struct {
	bom  []byte
	name string
	enc  encoding.Encoding
}{
	{[]byte{0xEF, 0xBB, 0xBF}, utf8Name, nil},
	{[]byte{0xFE, 0xFF}, "utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	{[]byte{0xFF, 0xFE}, "utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
}

var reDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*?\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Detected describes encoding found for document bytes. Enc is nil for UTF-8.
type Detected struct {
	Name string
	Enc  encoding.Encoding
	BOM  []byte
}

// DetectEncoding guesses encoding of document bytes. Byte order mark wins,
// then XML declaration (when bytes really decode with it), then HTML meta
// prescan, then UTF-8 validity. Windows-1252 is only assumed for bytes which
// are not valid UTF-8, anything else is treated as UTF-8.
func DetectEncoding(data []byte) Detected {
	for _, b := range boms {
		if bytes.HasPrefix(data, b.bom) {
			return Detected{Name: b.name, Enc: b.enc, BOM: b.bom}
		}
	}

	if m := reDeclEncoding.FindSubmatch(head(data)); m != nil {
		// declaration readable as ASCII cannot be in UTF-16
		if e, name := charset.Lookup(string(m[1])); e != nil && !strings.HasPrefix(name, "utf-16") && decodesCleanly(data, e, name) {
			return detected(e, name)
		}
	}

	e, name, certain := charset.DetermineEncoding(data, "")
	if e == nil || (!certain && utf8.Valid(data)) {
		return Detected{Name: utf8Name}
	}
	return detected(e, name)
}

func detected(e encoding.Encoding, name string) Detected {
	name = strings.ToLower(name)
	if name == utf8Name {
		return Detected{Name: utf8Name}
	}
	return Detected{Name: name, Enc: e}
}

func head(data []byte) []byte {
	if len(data) > 1024 {
		return data[:1024]
	}
	return data
}

// decodesCleanly reports whether data could be decoded without producing
// replacement characters.
func decodesCleanly(data []byte, e encoding.Encoding, name string) bool {
	if strings.EqualFold(name, utf8Name) {
		return utf8.Valid(data)
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	replacement := []byte(string(utf8.RuneError))
	return bytes.Contains(data, replacement) || !bytes.Contains(out, replacement)
}

// toUTF8 transcodes document body (BOM already removed). Invalid UTF-8
// sequences are replaced.
func toUTF8(data []byte, d Detected) ([]byte, error) {
	if d.Enc == nil {
		if utf8.Valid(data) {
			return data, nil
		}
		return unicode.UTF8.NewDecoder().Bytes(data)
	}
	return d.Enc.NewDecoder().Bytes(data)
}

// fromUTF8 encodes serialized document back. Runes not representable in
// target encoding become numeric character references.
func fromUTF8(data []byte, d Detected) ([]byte, error) {
	if d.Enc == nil {
		return data, nil
	}
	return encoding.HTMLEscapeUnsupported(d.Enc.NewEncoder()).Bytes(data)
}
