// Package archive gives access to EPUB container: locating package document,
// listing content documents, reading entries and producing updated copies.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

const (
	containerPath   = "META-INF/container.xml"
	mimetypePath    = "mimetype"
	packageMimeType = "application/oebps-package+xml"

	// DefaultContentType is media type of content documents processed when
	// caller does not ask for anything else.
	DefaultContentType = "application/xhtml+xml"

	// guards against zip bombs
	maxEntrySize int64 = 256 * 1024 * 1024
)

// Option modifies the way archive is opened.
type Option func(*Archive)

// WithCodePage forces decoding of all zip entry names not flagged as UTF-8
// using specified code page. Raw zip headers are never changed.
func WithCodePage(cp encoding.Encoding) Option {
	return func(a *Archive) {
		a.codePage = cp
	}
}

// Archive is an opened EPUB. It is not safe for concurrent use.
type Archive struct {
	zr       *zip.Reader
	closer   io.Closer
	codePage encoding.Encoding

	files  []*zip.File
	names  map[*zip.File]string
	exact  map[string]*zip.File
	folded map[string]*zip.File

	pkgPath string
}

// Open opens EPUB file at path.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive (%s): %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to stat archive (%s): %w", path, err)
	}
	a, err := NewReader(f, fi.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to open archive (%s): %w", path, err)
	}
	a.closer = f
	return a, nil
}

// NewReader prepares Archive reading from r, which is assumed to have the
// given size in bytes.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	// insecure names are refused later by Walk, reading is still possible
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %w", ErrArchiveFormat, err)
	}

	a := &Archive{
		zr:     zr,
		names:  make(map[*zip.File]string, len(zr.File)),
		exact:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.index()

	if a.pkgPath, err = a.locatePackage(); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases underlying file if archive was opened by Open.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// PackagePath returns archive path of package document (OPF).
func (a *Archive) PackagePath() string {
	return a.pkgPath
}

// Entries returns names of all entries in archive order.
func (a *Archive) Entries() []string {
	res := make([]string, 0, len(a.files))
	for _, f := range a.files {
		res = append(res, a.names[f])
	}
	return res
}

// Has reports whether entry with the given name exists.
func (a *Archive) Has(name string) bool {
	return a.lookup(name) != nil
}

func (a *Archive) index() {
	for _, f := range a.zr.File {
		name := f.Name
		if a.codePage != nil && f.NonUTF8 {
			// forcing zip file name encoding
			if n, err := a.codePage.NewDecoder().String(name); err == nil {
				name = n
			}
		}
		a.files = append(a.files, f)
		a.names[f] = name
		// first entry wins for duplicated names
		if _, ok := a.exact[name]; !ok {
			a.exact[name] = f
		}
		if lower := strings.ToLower(name); a.folded[lower] == nil {
			a.folded[lower] = f
		}
	}
}

// lookup finds entry by exact name first, then ignoring case.
func (a *Archive) lookup(name string) *zip.File {
	if f, ok := a.exact[name]; ok {
		return f
	}
	return a.folded[strings.ToLower(name)]
}

// locatePackage finds OPF using container.xml, scanning for any ".opf"
// entry when container is absent or useless.
func (a *Archive) locatePackage() (string, error) {
	if f := a.lookup(containerPath); f != nil {
		if data, err := readEntry(f, maxEntrySize); err == nil {
			if name := rootFile(data); name != "" {
				if pf := a.lookup(name); pf != nil {
					return a.names[pf], nil
				}
			}
		}
	}
	for _, f := range a.files {
		if !f.FileInfo().IsDir() && strings.HasSuffix(strings.ToLower(a.names[f]), ".opf") {
			return a.names[f], nil
		}
	}
	return "", fmt.Errorf("%w: package document not found", ErrArchiveFormat)
}

// rootFile returns full path of package document from container.xml,
// preferring rootfile with proper media type.
func rootFile(data []byte) string {
	doc, err := readXML(data)
	if err != nil {
		return ""
	}
	var first string
	for _, rf := range doc.FindElements("//rootfile") {
		full := strings.TrimSpace(rf.SelectAttrValue("full-path", ""))
		if full == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.SelectAttrValue("media-type", "")), packageMimeType) {
			return full
		}
		if first == "" {
			first = full
		}
	}
	return first
}

func readXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    true,
		Entity:        xml.HTMLEntity,
	}
	if err := doc.ReadFromBytes(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))); err != nil {
		return nil, err
	}
	return doc, nil
}

// ContentDocuments returns archive paths of manifest items with requested
// media types in manifest order. When no media types are given XHTML content
// documents are returned.
func (a *Archive) ContentDocuments(mediaTypes ...string) ([]string, error) {
	if len(mediaTypes) == 0 {
		mediaTypes = []string{DefaultContentType}
	}
	wanted := make(map[string]bool, len(mediaTypes))
	for _, mt := range mediaTypes {
		wanted[normalizeMediaType(mt)] = true
	}

	data, err := a.ReadEntry(a.pkgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read package document: %w", err)
	}
	doc, err := readXML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse package document (%s): %w", ErrArchiveFormat, a.pkgPath, err)
	}

	var (
		res  []string
		seen = make(map[string]bool)
	)
	for _, item := range doc.FindElements("//manifest/item") {
		if !wanted[normalizeMediaType(item.SelectAttrValue("media-type", ""))] {
			continue
		}
		name, ok := ResolveHref(a.pkgPath, item.SelectAttrValue("href", ""))
		if !ok {
			continue
		}
		// manifest spelling may differ from entry name in letter case
		if f := a.lookup(name); f != nil {
			name = a.names[f]
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		res = append(res, name)
	}
	return res, nil
}

func normalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// ReadEntry returns content of the named entry.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	f := a.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("entry %q: %w", name, ErrEntryNotFound)
	}
	return readEntry(f, maxEntrySize)
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// declared size could be forged
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}
	return data, nil
}

// ResolveHref resolves relative reference href found in document base to
// archive path. Query and fragment are dropped, percent encoding is decoded.
// References with scheme or host, absolute ones and those escaping archive
// root are rejected.
func ResolveHref(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	var p string
	if u, err := url.Parse(href); err == nil {
		if u.Scheme != "" || u.Host != "" || u.Opaque != "" {
			return "", false
		}
		p = u.Path
	} else {
		// tolerate stray percent signs and such
		if strings.Contains(href, ":") {
			return "", false
		}
		p = href
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return "", false
	}

	res := path.Join(path.Dir(base), p)
	if res == "." || !isSafePath(res) {
		return "", false
	}
	return res, true
}
