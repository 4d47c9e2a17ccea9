package describe

import (
	"slices"

	"github.com/beevik/etree"

	"epubalt/archive"
	"epubalt/markup"
)

const (
	attrDetails     = "aria-details"
	attrDescribedBy = "aria-describedby"
)

// Locate returns records for every addressable image of the document in
// document order. Images without src, with external or escaping src are
// skipped, repeated src yields a single record.
func Locate(doc *markup.Document, docPath string) []ImageRecord {
	root := doc.Tree.Root()
	if root == nil {
		return nil
	}

	var (
		res  []ImageRecord
		seen = make(map[string]bool)
	)
	imgs := images(root)
	for _, img := range imgs {
		src, ok := imageSource(img, docPath)
		if !ok || seen[src] {
			continue
		}
		seen[src] = true

		rec := ImageRecord{
			Document: docPath,
			Src:      src,
			Alt:      img.SelectAttrValue("alt", ""),
		}
		for _, a := range associations(root, img, imgs) {
			if text := a.Text(); text != "" {
				rec.LongDesc, rec.Kind, rec.HasLongDesc = text, a.Kind, true
				break
			}
		}
		res = append(res, rec)
	}
	return res
}

func images(root *etree.Element) []*etree.Element {
	imgs := markup.Elements(root, "img")
	if markup.IsTag(root, "img") {
		imgs = append([]*etree.Element{root}, imgs...)
	}
	return imgs
}

func imageSource(img *etree.Element, docPath string) (string, bool) {
	attr := img.SelectAttr("src")
	if attr == nil {
		return "", false
	}
	return archive.ResolveHref(docPath, attr.Value)
}

// Text returns long description held by the container.
func (a Association) Text() string {
	if a.Kind == AssociationKindDetails {
		return markup.TextContent(a.Container, "summary")
	}
	return markup.TextContent(a.Container)
}

// associations finds all containers linked to img in priority order:
// figcaption, details, describing div. Shared figcaption goes last, explicit
// link of a single image is more specific than caption of the whole group,
// and it is not considered at all once image has aria-details attribute.
// imgs are all images of the document, used to detect sharing.
func associations(root, img *etree.Element, imgs []*etree.Element) []Association {
	var (
		res     []Association
		caption *Association
	)

	if fc, shared := figureCaption(img); fc != nil {
		// any aria-details on image, even empty one, overrides group caption
		if !shared || img.SelectAttr(attrDetails) == nil {
			caption = &Association{
				Kind:      AssociationKindFigcaption,
				Container: fc,
				Shared:    shared,
			}
		}
		if caption != nil && !shared {
			res = append(res, *caption)
		}
	}

	seen := make(map[*etree.Element]bool)
	linked := func(attr, tag string, kind AssociationKind) {
		for _, ref := range markup.AttrTokens(img, attr) {
			c := markup.FindByID(root, ref)
			if c == nil || seen[c] || !markup.IsTag(c, tag) {
				continue
			}
			seen[c] = true
			res = append(res, Association{
				Kind:      kind,
				Container: c,
				Ref:       ref,
				Shared:    referenced(imgs, img, ref),
			})
		}
	}
	linked(attrDetails, "details", AssociationKindDetails)
	linked(attrDescribedBy, "div", AssociationKindDescribedby)

	if caption != nil && caption.Shared {
		res = append(res, *caption)
	}
	return res
}

// figureCaption returns caption of the figure enclosing img and whether
// other images of that figure share it.
func figureCaption(img *etree.Element) (*etree.Element, bool) {
	fig := markup.NearestAncestor(img, "figure")
	if fig == nil {
		return nil, false
	}
	fc := markup.ChildElement(fig, "figcaption")
	if fc == nil {
		return nil, false
	}
	return fc, len(images(fig)) > 1
}

// referenced reports whether any image other than img links to id.
func referenced(imgs []*etree.Element, img *etree.Element, id string) bool {
	for _, other := range imgs {
		if other == img {
			continue
		}
		if slices.Contains(markup.AttrTokens(other, attrDetails), id) ||
			slices.Contains(markup.AttrTokens(other, attrDescribedBy), id) {
			return true
		}
	}
	return false
}
