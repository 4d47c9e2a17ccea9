package describe

import (
	"errors"
	"slices"
	"strings"

	"github.com/beevik/etree"

	"epubalt/markup"
)

// Apply brings images of the document in line with updates keyed by image
// archive path. Long descriptions are always written as details element
// referenced by aria-details, containers of other conventions are removed.
// Returns true when tree was actually changed.
func Apply(doc *markup.Document, docPath string, updates map[string]Update, opts Options) (bool, error) {
	if doc == nil || doc.Tree == nil || doc.Tree.Root() == nil {
		return false, errors.New("document has no root element")
	}
	if len(updates) == 0 {
		return false, nil
	}

	root := doc.Tree.Root()
	s := &synchronizer{
		root:  root,
		opts:  opts.withDefaults(),
		pool:  NewIDPool(root),
		after: make(map[*etree.Element]*etree.Element),
	}
	for _, img := range images(root) {
		src, ok := imageSource(img, docPath)
		if !ok {
			continue
		}
		u, ok := updates[src]
		if !ok || u.Empty() {
			continue
		}
		if u.Alt != nil {
			s.setAttr(img, "alt", *u.Alt)
		}
		if u.LongDesc == nil {
			continue
		}
		if text := strings.Join(strings.Fields(*u.LongDesc), " "); text != "" {
			s.describe(img, src, text)
		} else {
			s.clear(img)
		}
	}
	return s.changed, nil
}

type synchronizer struct {
	root    *etree.Element
	opts    Options
	pool    *IDPool
	changed bool
	// last container created after anchor element, keeps several
	// containers in image order
	after map[*etree.Element]*etree.Element
}

func (s *synchronizer) setAttr(e *etree.Element, key, value string) {
	if a := e.SelectAttr(key); a != nil && a.Value == value {
		return
	}
	e.CreateAttr(key, value)
	s.changed = true
}

func (s *synchronizer) detach(e *etree.Element) {
	if e.Parent() != nil {
		markup.Detach(e)
		s.changed = true
	}
}

func (s *synchronizer) setText(e *etree.Element, text string) {
	if len(e.Child) == 1 && len(e.ChildElements()) == 0 && e.Text() == text {
		return
	}
	markup.ReplaceText(e, text)
	s.changed = true
}

// unlink drops connection between img and container, container itself is
// removed unless other images use it.
func (s *synchronizer) unlink(img *etree.Element, a Association) {
	switch a.Kind {
	case AssociationKindDescribedby:
		tokens := markup.AttrTokens(img, attrDescribedBy)
		if rest := slices.DeleteFunc(slices.Clone(tokens), func(t string) bool { return t == a.Ref }); len(rest) != len(tokens) {
			markup.SetAttrTokens(img, attrDescribedBy, rest)
			s.changed = true
		}
	case AssociationKindDetails:
		tokens := markup.AttrTokens(img, attrDetails)
		if rest := slices.DeleteFunc(slices.Clone(tokens), func(t string) bool { return t == a.Ref }); len(rest) != len(tokens) {
			markup.SetAttrTokens(img, attrDetails, rest)
			s.changed = true
		}
	}
	if !a.Shared {
		s.detach(a.Container)
	}
}

func (s *synchronizer) setTokens(e *etree.Element, key string, tokens []string) {
	if a := e.SelectAttr(key); a != nil && slices.Equal(strings.Fields(a.Value), tokens) {
		return
	}
	markup.SetAttrTokens(e, key, tokens)
	s.changed = true
}

func (s *synchronizer) clear(img *etree.Element) {
	for _, a := range associations(s.root, img, images(s.root)) {
		s.unlink(img, a)
	}
	if fc, shared := figureCaption(img); fc != nil && shared && img.SelectAttr(attrDetails) == nil {
		// empty reference keeps caption of the group from describing image
		s.setAttr(img, attrDetails, "")
	}
}

func (s *synchronizer) describe(img *etree.Element, src, text string) {
	assocs := associations(s.root, img, images(s.root))

	var (
		container *etree.Element
		ref       string
	)
	for _, a := range assocs {
		if a.Kind == AssociationKindDetails && !a.Shared {
			container, ref = a.Container, a.Ref
			break
		}
	}
	for _, a := range assocs {
		if a.Container != container {
			s.unlink(img, a)
		}
	}

	var own string
	if container != nil {
		own = container.SelectAttrValue("id", "")
	}
	id := s.pool.Mint(containerID(s.opts.IDPrefix, src), own)

	if container != nil {
		s.setAttr(container, "id", id)
		s.fill(container, text)
	} else {
		container = newContainer(id, s.opts.SummaryLabel, text)
		s.place(img, container)
		s.changed = true
	}
	s.setTokens(img, attrDetails, withToken(markup.AttrTokens(img, attrDetails), ref, id))
}

// withToken replaces old reference with id keeping other tokens in place,
// id is appended when there was nothing to replace.
func withToken(tokens []string, old, id string) []string {
	res := make([]string, 0, len(tokens)+1)
	placed := false
	for _, t := range tokens {
		if t == old || t == id {
			if !placed {
				res = append(res, id)
				placed = true
			}
			continue
		}
		res = append(res, t)
	}
	if !placed {
		res = append(res, id)
	}
	return res
}

// fill puts label and text into existing container keeping whatever else
// it holds.
func (s *synchronizer) fill(container *etree.Element, text string) {
	summary := markup.ChildElement(container, "summary")
	if summary == nil {
		summary = etree.NewElement("summary")
		container.InsertChildAt(0, summary)
		s.changed = true
	}
	s.setText(summary, s.opts.SummaryLabel)

	p := markup.ChildElement(container, "p")
	if p == nil {
		// loose text would become part of description
		for _, t := range slices.Clone(container.Child) {
			if cd, ok := t.(*etree.CharData); ok && strings.TrimSpace(cd.Data) != "" {
				container.RemoveChild(cd)
			}
		}
		p = etree.NewElement("p")
		markup.InsertAfter(summary, p)
		s.changed = true
	}
	s.setText(p, text)
}

// place inserts new container after enclosing figure or after image itself.
func (s *synchronizer) place(img, container *etree.Element) {
	anchor := markup.NearestAncestor(img, "figure")
	if anchor == nil {
		anchor = img
	}
	ref := anchor
	if last, ok := s.after[anchor]; ok && last.Parent() == anchor.Parent() {
		ref = last
	}
	markup.InsertAfter(ref, container)
	s.after[anchor] = container
}

func newContainer(id, label, text string) *etree.Element {
	d := etree.NewElement("details")
	d.CreateAttr("id", id)
	d.CreateElement("summary").SetText(label)
	d.CreateElement("p").SetText(text)
	return d
}
