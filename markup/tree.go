package markup

import (
	"strings"

	"github.com/beevik/etree"
)

// IsTag reports whether e is an element with given local name. XHTML is case
// sensitive, recovered documents are not always.
func IsTag(e *etree.Element, tag string) bool {
	return e != nil && strings.EqualFold(e.Tag, tag)
}

// Walk visits all descendants of root depth first in document order. When fn
// returns false children of the element are not visited.
func Walk(root *etree.Element, fn func(e *etree.Element) bool) {
	for _, c := range root.ChildElements() {
		if fn(c) {
			Walk(c, fn)
		}
	}
}

// Elements returns all descendants of root with given tag in document order.
func Elements(root *etree.Element, tag string) []*etree.Element {
	var res []*etree.Element
	Walk(root, func(e *etree.Element) bool {
		if IsTag(e, tag) {
			res = append(res, e)
		}
		return true
	})
	return res
}

// FindByID returns first element carrying id or nil.
func FindByID(root *etree.Element, id string) *etree.Element {
	if id == "" {
		return nil
	}
	var res *etree.Element
	Walk(root, func(e *etree.Element) bool {
		if res != nil {
			return false
		}
		if e.SelectAttrValue("id", "") == id {
			res = e
			return false
		}
		return true
	})
	return res
}

// NearestAncestor returns closest ancestor of e with given tag or nil.
func NearestAncestor(e *etree.Element, tag string) *etree.Element {
	for p := e.Parent(); p != nil; p = p.Parent() {
		if IsTag(p, tag) {
			return p
		}
	}
	return nil
}

// ChildElement returns first direct child of e with given tag or nil.
func ChildElement(e *etree.Element, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if IsTag(c, tag) {
			return c
		}
	}
	return nil
}

// TextContent returns text of e and all its descendants with runs of
// whitespace collapsed to a single space. Direct children with tags listed in
// skip are ignored.
func TextContent(e *etree.Element, skip ...string) string {
	var sb strings.Builder
	for _, t := range e.Child {
		switch v := t.(type) {
		case *etree.CharData:
			sb.WriteString(v.Data)
		case *etree.Element:
			if !skipped(v, skip) {
				collectText(&sb, v)
			}
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func skipped(e *etree.Element, tags []string) bool {
	for _, tag := range tags {
		if IsTag(e, tag) {
			return true
		}
	}
	return false
}

func collectText(sb *strings.Builder, e *etree.Element) {
	for _, t := range e.Child {
		switch v := t.(type) {
		case *etree.CharData:
			sb.WriteString(v.Data)
		case *etree.Element:
			collectText(sb, v)
		}
	}
}

// InsertAfter puts e into the tree right after ref. e is detached from its
// current parent first.
func InsertAfter(ref, e *etree.Element) {
	parent := ref.Parent()
	if parent == nil {
		return
	}
	Detach(e)
	parent.InsertChildAt(ref.Index()+1, e)
}

// Detach removes e from its parent.
func Detach(e *etree.Element) {
	if p := e.Parent(); p != nil {
		p.RemoveChild(e)
	}
}

// ReplaceText drops all content of e and sets it to text.
func ReplaceText(e *etree.Element, text string) {
	for len(e.Child) > 0 {
		e.RemoveChildAt(0)
	}
	e.SetText(text)
}

// AttrTokens splits whitespace separated attribute value (IDREFS and such).
func AttrTokens(e *etree.Element, key string) []string {
	return strings.Fields(e.SelectAttrValue(key, ""))
}

// SetAttrTokens stores tokens as attribute value removing attribute when
// nothing is left.
func SetAttrTokens(e *etree.Element, key string, tokens []string) {
	if len(tokens) == 0 {
		e.RemoveAttr(key)
		return
	}
	e.CreateAttr(key, strings.Join(tokens, " "))
}
