package markup

import (
	"bytes"
	"fmt"

	"github.com/beevik/etree"
)

// Bytes serializes document in its original encoding. No indentation is
// added, void elements are self-closed, all other empty elements get explicit
// end tags.
func (d *Document) Bytes() ([]byte, error) {
	closeEmpty(&d.Tree.Element)

	d.Tree.WriteSettings = etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}

	buf := new(bytes.Buffer)
	if _, err := d.Tree.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("unable to serialize document: %w", err)
	}

	out, err := fromUTF8(buf.Bytes(), d.detected)
	if err != nil {
		return nil, fmt.Errorf("unable to encode document to %s: %w", d.Encoding, err)
	}
	if len(d.detected.BOM) > 0 {
		out = append(append([]byte{}, d.detected.BOM...), out...)
	}
	return out, nil
}

// closeEmpty makes writer produce "<tag></tag>" for empty non-void elements:
// "<p/>" or "<script/>" confuse HTML readers.
func closeEmpty(e *etree.Element) {
	for _, c := range e.ChildElements() {
		if len(c.Child) == 0 {
			if !IsVoid(c.Tag) {
				c.AddChild(etree.NewText(""))
			}
			continue
		}
		closeEmpty(c)
	}
}
