package edit

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"epubalt/archive"
	"epubalt/config"
)

const (
	pngData = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	jpgData = "\xFF\xD8\xFF\xE0\x00\x10JFIF"
	svgData = `<svg xmlns="http://www.w3.org/2000/svg"/>`
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

const testPackage = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <manifest>
    <item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
    <item id="gone" href="text/gone.xhtml" media-type="application/xhtml+xml"/>
    <item id="a" href="images/a.png" media-type="image/png"/>
    <item id="b" href="images/b.jpg" media-type="image/jpeg"/>
    <item id="s" href="images/s.svg" media-type="image/svg+xml"/>
  </manifest>
  <spine><itemref idref="c1"/><itemref idref="c2"/><itemref idref="c3"/></spine>
</package>`

const (
	chapter1 = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body>
<figure><img src="../images/a.png" alt="old a"/><figcaption>Caption of a</figcaption></figure>
<p>text</p>
</body></html>`

	chapter2 = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body>
<img src="../images/b.jpg" aria-details="desc-b"/>
<details id="desc-b"><summary>Description</summary><p>About b</p></details>
<img src="../images/missing.png" alt="lost"/>
<img src="../images/s.svg" alt="vector"/>
</body></html>`

	chapter3 = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><p>no images</p></body></html>`
)

type testEntry struct {
	name    string
	content string
}

func defaultEntries() []testEntry {
	return []testEntry{
		{name: "mimetype", content: "application/epub+zip"},
		{name: "META-INF/container.xml", content: testContainer},
		{name: "OEBPS/content.opf", content: testPackage},
		{name: "OEBPS/text/ch1.xhtml", content: chapter1},
		{name: "OEBPS/text/ch2.xhtml", content: chapter2},
		{name: "OEBPS/text/ch3.xhtml", content: chapter3},
		{name: "OEBPS/images/a.png", content: pngData},
		{name: "OEBPS/images/b.jpg", content: jpgData},
		{name: "OEBPS/images/s.svg", content: svgData},
	}
}

func testConfig() *config.DocumentConfig {
	return &config.DocumentConfig{
		ContentTypes: []string{"application/xhtml+xml"},
		SummaryLabel: "Description",
		IDPrefix:     "desc",
	}
}

func buildEPUB(t *testing.T, entries []testEntry) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("Failed to create entry %s: %v", e.name, err)
		}
		if _, err := io.WriteString(fw, e.content); err != nil {
			t.Fatalf("Failed to write entry %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func openEPUB(t *testing.T, data []byte) *archive.Archive {
	t.Helper()

	a, err := archive.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeEPUB(t *testing.T, dir string, data []byte) string {
	t.Helper()

	p := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("Failed to write book: %v", err)
	}
	return p
}

// entries returns content of every zip entry keyed by name.
func entries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	res := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read entry %s: %v", f.Name, err)
		}
		res[f.Name] = content
	}
	return res
}

func str(s string) *string {
	return &s
}
