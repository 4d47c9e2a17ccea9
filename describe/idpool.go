package describe

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/gosimple/slug"

	"epubalt/markup"
)

// IDPool tracks element ids taken in a single document. Ids are never
// released, so an id given out once is not handed to anything else during
// the same pass even if its element was removed.
type IDPool struct {
	used map[string]bool
}

// NewIDPool collects ids of root and all its descendants.
func NewIDPool(root *etree.Element) *IDPool {
	p := &IDPool{used: make(map[string]bool)}
	if root == nil {
		return p
	}
	p.Reserve(root.SelectAttrValue("id", ""))
	markup.Walk(root, func(e *etree.Element) bool {
		p.Reserve(e.SelectAttrValue("id", ""))
		return true
	})
	return p
}

// Has reports whether id is taken.
func (p *IDPool) Has(id string) bool {
	return p.used[id]
}

// Reserve marks id as taken.
func (p *IDPool) Reserve(id string) {
	if id != "" {
		p.used[id] = true
	}
}

// Mint returns first free id among base, base-1, base-2... and reserves it.
// Candidate equal to own, the current id of element which is going to carry
// the result, is acceptable even though it is taken.
func (p *IDPool) Mint(base, own string) string {
	id := base
	for i := 1; p.used[id] && id != own; i++ {
		id = base + "-" + strconv.Itoa(i)
	}
	p.Reserve(id)
	return id
}

// containerID is the preferred id of description container for image src.
func containerID(prefix, src string) string {
	s := slug.Make(src)
	if s == "" {
		s = "image"
	}
	return prefix + "-" + s
}
