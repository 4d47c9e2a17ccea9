// Package describe finds images in content documents together with their
// textual descriptions and brings that markup in line with requested edits.
package describe

import (
	"github.com/beevik/etree"
)

const (
	DefaultSummaryLabel = "Description"
	DefaultIDPrefix     = "desc"
)

// ImageRecord is a single image reference found in content document.
type ImageRecord struct {
	// Document is archive path of content document image was found in.
	Document string
	// Src is archive path of image, it identifies record for updates.
	Src      string
	Alt      string
	LongDesc string
	// Kind is meaningful only when HasLongDesc is set.
	Kind        AssociationKind
	HasLongDesc bool

	// Filled by caller from archive.
	Data     []byte
	MimeType string
}

// Update is requested change for image. Nil field means "leave alone",
// pointer to empty string means "remove".
type Update struct {
	Src      string  `yaml:"src" json:"src"`
	Alt      *string `yaml:"alt,omitempty" json:"alt,omitempty"`
	LongDesc *string `yaml:"long_desc,omitempty" json:"long_desc,omitempty"`
}

// Empty reports whether update does not request anything.
func (u Update) Empty() bool {
	return u.Alt == nil && u.LongDesc == nil
}

// Merge combines two updates for the same image, fields set in later win.
func (u Update) Merge(later Update) Update {
	if later.Src != "" {
		u.Src = later.Src
	}
	if later.Alt != nil {
		u.Alt = later.Alt
	}
	if later.LongDesc != nil {
		u.LongDesc = later.LongDesc
	}
	return u
}

// Options controls markup produced by Apply.
type Options struct {
	// SummaryLabel is text of summary element of created containers.
	SummaryLabel string
	// IDPrefix starts every container id.
	IDPrefix string
}

func (o Options) withDefaults() Options {
	if o.SummaryLabel == "" {
		o.SummaryLabel = DefaultSummaryLabel
	}
	if o.IDPrefix == "" {
		o.IDPrefix = DefaultIDPrefix
	}
	return o
}

// Association is a link between image and element holding its long
// description.
type Association struct {
	Kind      AssociationKind
	Container *etree.Element
	// Ref is id image refers to, empty for figcaption.
	Ref string
	// Shared containers describe several images at once.
	Shared bool
}
