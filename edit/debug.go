package edit

import (
	"cmp"
	"slices"
	"sort"

	"github.com/maruel/natural"

	"epubalt/describe"
	"epubalt/utils/debug"
)

const textLimit = 80

type treeWriter struct {
	*debug.TreeWriter
}

// dumpRecords returns readable tree of extracted records grouped by
// document. It exists solely for debug report.
func dumpRecords(recs []describe.ImageRecord) []byte {
	byDoc := make(map[string][]describe.ImageRecord)
	for _, rec := range recs {
		byDoc[rec.Document] = append(byDoc[rec.Document], rec)
	}
	docs := make([]string, 0, len(byDoc))
	for d := range byDoc {
		docs = append(docs, d)
	}
	sort.Sort(natural.StringSlice(docs))

	tw := treeWriter{debug.NewTreeWriter()}
	tw.Line(0, "Images: %d in %d documents", len(recs), len(docs))
	for _, d := range docs {
		images := slices.Clone(byDoc[d])
		slices.SortStableFunc(images, func(a, b describe.ImageRecord) int {
			switch {
			case natural.Less(a.Src, b.Src):
				return -1
			case natural.Less(b.Src, a.Src):
				return 1
			}
			return cmp.Compare(a.Src, b.Src)
		})
		tw.Line(1, "Document[%q] images[%d]", d, len(images))
		for _, rec := range images {
			tw.image(rec)
		}
	}
	return tw.Bytes()
}

func (tw treeWriter) image(rec describe.ImageRecord) {
	tw.Line(2, "Image[%q] mime[%q] size[%d]", rec.Src, rec.MimeType, len(rec.Data))
	tw.Text(3, "alt", rec.Alt, textLimit)
	if rec.HasLongDesc {
		tw.Line(3, "convention: %s", rec.Kind)
		tw.Text(3, "long_desc", rec.LongDesc, textLimit)
	}
}

// dumpSummary returns readable result of the write pass for debug report.
func dumpSummary(sum *Summary) []byte {
	tw := treeWriter{debug.NewTreeWriter()}
	section := func(title string, names []string) {
		names = slices.Clone(names)
		sort.Sort(natural.StringSlice(names))
		tw.Line(0, "%s: %d", title, len(names))
		for _, n := range names {
			tw.Line(1, "%q", n)
		}
	}
	section("Documents", sum.Documents)
	section("Changed", sum.Changed)
	section("Skipped", sum.Skipped)
	section("Unmatched updates", sum.Unmatched)
	if sum.Issues != nil {
		tw.Line(0, "Issues:")
		tw.Line(1, "%v", sum.Issues)
	}
	return tw.Bytes()
}
