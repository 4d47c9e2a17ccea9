// Package markup reads content documents into mutable element trees and
// writes them back in their original encoding.
package markup

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

// Document is parsed content document.
type Document struct {
	Tree *etree.Document
	// Encoding is detected encoding name.
	Encoding string
	// Recovered is set when document was not well formed and had to be
	// parsed leniently.
	Recovered *RecoveryWarning

	detected Detected
}

// RecoveryWarning keeps strict parsing error for documents which were
// recovered. It is never fatal.
type RecoveryWarning struct {
	Err error
}

func (w *RecoveryWarning) Error() string {
	return fmt.Sprintf("malformed markup recovered: %v", w.Err)
}

func (w *RecoveryWarning) Unwrap() error {
	return w.Err
}

// elements which never have content
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// IsVoid reports whether element with this tag is always empty.
func IsVoid(tag string) bool {
	return voidElements[strings.ToLower(tag)]
}

// Parse detects encoding of data and builds element tree. Well formed
// documents are read as XML, anything else is recovered leniently.
func Parse(data []byte) (*Document, error) {
	d := DetectEncoding(data)

	text, err := toUTF8(data[len(d.BOM):], d)
	if err != nil {
		return nil, fmt.Errorf("unable to decode document from %s: %w", d.Name, err)
	}

	doc := &Document{Encoding: d.Name, detected: d}

	tree, strictErr := readTree(text, false)
	if strictErr == nil {
		doc.Tree = tree
		return doc, nil
	}

	tree, err = readTree(text, true)
	if err == nil && !sane(&tree.Element) {
		err = fmt.Errorf("void elements with content")
	}
	if err != nil {
		// last resort, HTML parser never gives up
		if tree, err = readHTML(text); err != nil {
			return nil, fmt.Errorf("unable to parse document: %w", err)
		}
	}
	doc.Tree = tree
	doc.Recovered = &RecoveryWarning{Err: strictErr}
	return doc, nil
}

// text is always UTF-8 at this point, whatever declaration says
func passCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

func readTree(data []byte, permissive bool) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: passCharset,
		Entity:        xml.HTMLEntity,
		PreserveCData: true,
		ValidateInput: false,
	}
	if permissive {
		doc.ReadSettings.Permissive = true
		doc.ReadSettings.AutoClose = xml.HTMLAutoClose
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

// sane checks that lenient reading did not nest content into void elements,
// which happens when they are left unclosed.
func sane(e *etree.Element) bool {
	for _, c := range e.ChildElements() {
		if IsVoid(c.Tag) && len(c.Child) > 0 {
			return false
		}
		if !sane(c) {
			return false
		}
	}
	return true
}

var reDecl = regexp.MustCompile(`^\s*<\?xml\s+([^?]*)\?>`)

// readHTML parses data with HTML5 rules and converts result to etree.
func readHTML(data []byte) (*etree.Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if m := reDecl.FindSubmatch(data); m != nil {
		doc.CreateProcInst("xml", strings.TrimSpace(string(m[1])))
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		convertHTML(&doc.Element, c)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

func convertHTML(parent *etree.Element, n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		e := parent.CreateElement(n.Data)
		for _, a := range n.Attr {
			key := a.Key
			if a.Namespace != "" && !strings.Contains(key, ":") {
				key = a.Namespace + ":" + key
			}
			e.CreateAttr(key, a.Val)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			convertHTML(e, c)
		}
	case html.TextNode:
		parent.CreateText(n.Data)
	case html.CommentNode:
		// declaration shows up as bogus comment
		if !strings.HasPrefix(n.Data, "?xml") {
			parent.CreateComment(n.Data)
		}
	case html.DoctypeNode:
		parent.CreateDirective("DOCTYPE " + n.Data)
	}
}
