package describe

import (
	"testing"

	"github.com/beevik/etree"

	"epubalt/markup"
)

const (
	idA = "desc-oebps-images-a-jpg"
	idB = "desc-oebps-images-b-jpg"
)

func str(s string) *string {
	return &s
}

func wrap(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func apply(t *testing.T, input string, updates ...Update) (string, bool) {
	t.Helper()

	doc := parseDoc(t, input)
	m := make(map[string]Update, len(updates))
	for _, u := range updates {
		m[u.Src] = m[u.Src].Merge(u)
	}
	changed, err := Apply(doc, docPath, m, Options{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	return string(out), changed
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		updates []Update
		want    string
	}{
		{
			name:    "figcaption converted to details",
			input:   wrap(`<figure><img src="../images/a.jpg" alt="old"/><figcaption>old desc</figcaption></figure>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", Alt: str("new"), LongDesc: str("new desc")}},
			want: wrap(`<figure><img src="../images/a.jpg" alt="new" aria-details="` + idA + `"/></figure>` +
				`<details id="` + idA + `"><summary>Description</summary><p>new desc</p></details>`),
		},
		{
			name:    "details cleared",
			input:   wrap(`<p><img src="../images/a.jpg" alt="x" aria-details="d1"/></p><details id="d1"><summary>Description</summary><p>old</p></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<p><img src="../images/a.jpg" alt="x"/></p>`),
		},
		{
			name:    "describedby div converted",
			input:   wrap(`<p><img src="../images/a.jpg" aria-describedby="d1 other"/></p><div id="d1">old text</div><span id="other">o</span>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("new")}},
			want: wrap(`<p><img src="../images/a.jpg" aria-describedby="other" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>new</p></details></p><span id="other">o</span>`),
		},
		{
			name:    "describedby div cleared",
			input:   wrap(`<img src="../images/a.jpg" aria-describedby="d1"/><div id="d1">old text</div>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<img src="../images/a.jpg"/>`),
		},
		{
			name:    "figcaption cleared",
			input:   wrap(`<figure><img src="../images/a.jpg"/><figcaption>cap</figcaption></figure>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<figure><img src="../images/a.jpg"/></figure>`),
		},
		{
			name:    "existing details reused",
			input:   wrap(`<img src="../images/a.jpg" aria-details="old"/><details id="old"><summary>Old</summary><p>x</p><aside>keep</aside></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("fresh")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>fresh</p><aside>keep</aside></details>`),
		},
		{
			name:    "details without paragraph",
			input:   wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/><details id="` + idA + `">loose text</details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("fresh")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>fresh</p></details>`),
		},
		{
			name:    "created after image without figure",
			input:   wrap(`<p>before<img src="../images/a.jpg" alt="a"/>after</p>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("long")}},
			want: wrap(`<p>before<img src="../images/a.jpg" alt="a" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>long</p></details>after</p>`),
		},
		{
			name:  "shared caption kept",
			input: wrap(`<figure><img src="../images/a.jpg"/><img src="../images/b.jpg"/><figcaption>both</figcaption></figure>`),
			updates: []Update{
				{Src: "OEBPS/images/a.jpg", LongDesc: str("A")},
				{Src: "OEBPS/images/b.jpg", LongDesc: str("B")},
			},
			want: wrap(`<figure><img src="../images/a.jpg" aria-details="` + idA + `"/><img src="../images/b.jpg" aria-details="` + idB + `"/><figcaption>both</figcaption></figure>` +
				`<details id="` + idA + `"><summary>Description</summary><p>A</p></details>` +
				`<details id="` + idB + `"><summary>Description</summary><p>B</p></details>`),
		},
		{
			name:    "shared div kept",
			input:   wrap(`<img src="../images/a.jpg" aria-describedby="d"/><img src="../images/b.jpg" aria-describedby="d"/><div id="d">common</div>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("mine")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>mine</p></details>` +
				`<img src="../images/b.jpg" aria-describedby="d"/><div id="d">common</div>`),
		},
		{
			name:    "shared details kept on clear",
			input:   wrap(`<img src="../images/a.jpg" aria-details="d"/><img src="../images/b.jpg" aria-details="d"/><details id="d"><summary>S</summary><p>t</p></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<img src="../images/a.jpg"/><img src="../images/b.jpg" aria-details="d"/><details id="d"><summary>S</summary><p>t</p></details>`),
		},
		{
			name:    "shared caption cleared",
			input:   wrap(`<figure><img src="../images/a.jpg"/><img src="../images/b.jpg"/><figcaption>both</figcaption></figure>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<figure><img src="../images/a.jpg" aria-details=""/><img src="../images/b.jpg"/><figcaption>both</figcaption></figure>`),
		},
		{
			name:    "foreign details reference kept on reuse",
			input:   wrap(`<img src="../images/a.jpg" aria-details="note d"/><aside id="note">n</aside><details id="d"><summary>S</summary><p>t</p></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("fresh")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="note ` + idA + `"/><aside id="note">n</aside>` +
				`<details id="` + idA + `"><summary>Description</summary><p>fresh</p></details>`),
		},
		{
			name:    "foreign details reference kept on create",
			input:   wrap(`<img src="../images/a.jpg" aria-details="note"/><aside id="note">n</aside>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("long")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="note ` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>long</p></details><aside id="note">n</aside>`),
		},
		{
			name:    "foreign details reference kept on clear",
			input:   wrap(`<img src="../images/a.jpg" aria-details="note d"/><aside id="note">n</aside><details id="d"><p>t</p></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("")}},
			want:    wrap(`<img src="../images/a.jpg" aria-details="note"/><aside id="note">n</aside>`),
		},
		{
			name:    "taken id gets suffix",
			input:   wrap(`<p id="` + idA + `">taken</p><img src="../images/a.jpg"/>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("long")}},
			want: wrap(`<p id="` + idA + `">taken</p><img src="../images/a.jpg" aria-details="` + idA + `-1"/>` +
				`<details id="` + idA + `-1"><summary>Description</summary><p>long</p></details>`),
		},
		{
			name:    "same source twice",
			input:   wrap(`<img src="../images/a.jpg"/><img src="../images/a.jpg"/>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("long")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>long</p></details>` +
				`<img src="../images/a.jpg" aria-details="` + idA + `-1"/>` +
				`<details id="` + idA + `-1"><summary>Description</summary><p>long</p></details>`),
		},
		{
			name:    "description whitespace collapsed",
			input:   wrap(`<img src="../images/a.jpg"/>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str("  two\n\tlines ")}},
			want: wrap(`<img src="../images/a.jpg" aria-details="` + idA + `"/>` +
				`<details id="` + idA + `"><summary>Description</summary><p>two lines</p></details>`),
		},
		{
			name:    "blank description clears",
			input:   wrap(`<img src="../images/a.jpg" aria-details="d"/><details id="d"><p>t</p></details>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", LongDesc: str(" \n ")}},
			want:    wrap(`<img src="../images/a.jpg"/>`),
		},
		{
			name:    "alt created",
			input:   wrap(`<img src="../images/a.jpg"/>`),
			updates: []Update{{Src: "OEBPS/images/a.jpg", Alt: str("a & b")}},
			want:    wrap(`<img src="../images/a.jpg" alt="a &amp; b"/>`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := apply(t, tt.input, tt.updates...)
			if got != tt.want {
				t.Errorf("Apply() =\n%s\nwant\n%s", got, tt.want)
			}
			if !changed {
				t.Error("Apply() reported no changes")
			}
		})
	}
}

func TestApply_NoChanges(t *testing.T) {
	input := wrap(`<figure><img src="../images/a.jpg" alt="same" aria-details="` + idA + `"/></figure>` +
		`<details id="` + idA + `"><summary>Description</summary><p>same desc</p></details>`)

	tests := []struct {
		name    string
		updates []Update
	}{
		{"unknown source", []Update{{Src: "OEBPS/images/zzz.jpg", Alt: str("x"), LongDesc: str("")}}},
		{"empty update", []Update{{Src: "OEBPS/images/a.jpg"}}},
		{"same values", []Update{{Src: "OEBPS/images/a.jpg", Alt: str("same"), LongDesc: str("same desc")}}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := apply(t, input, tt.updates...)
			if changed {
				t.Error("Apply() reported changes")
			}
			if got != input {
				t.Errorf("document changed:\n%s", got)
			}
		})
	}
}

func TestApply_FieldIndependence(t *testing.T) {
	input := wrap(`<figure><img src="../images/a.jpg" alt="old"/><figcaption>caption</figcaption></figure>` +
		`<img src="../images/b.jpg" alt="keep" aria-details="d"/><details id="d"><summary>S</summary><p>t</p></details>`)

	t.Run("alt only", func(t *testing.T) {
		got, _ := apply(t, input,
			Update{Src: "OEBPS/images/a.jpg", Alt: str("new")},
			Update{Src: "OEBPS/images/b.jpg", Alt: str("")})
		want := wrap(`<figure><img src="../images/a.jpg" alt="new"/><figcaption>caption</figcaption></figure>` +
			`<img src="../images/b.jpg" alt="" aria-details="d"/><details id="d"><summary>S</summary><p>t</p></details>`)
		if got != want {
			t.Errorf("Apply() =\n%s\nwant\n%s", got, want)
		}
	})

	t.Run("long description only", func(t *testing.T) {
		got, _ := apply(t, input, Update{Src: "OEBPS/images/b.jpg", LongDesc: str("other")})
		recs := Locate(parseDoc(t, got), docPath)
		if recs[0].Alt != "old" || recs[1].Alt != "keep" {
			t.Errorf("alt changed: %q, %q", recs[0].Alt, recs[1].Alt)
		}
		if recs[0].LongDesc != "caption" {
			t.Errorf("unrelated description changed: %q", recs[0].LongDesc)
		}
	})
}

func TestApply_Idempotent(t *testing.T) {
	inputs := []string{
		wrap(`<figure><img src="../images/a.jpg" alt="old"/><figcaption>old desc</figcaption></figure>`),
		wrap(`<p id="` + idA + `">taken</p><img src="../images/a.jpg"/>`),
		wrap(`<img src="../images/a.jpg"/><img src="../images/a.jpg" aria-describedby="x"/><div id="x">d</div>`),
		wrap(`<img src="../images/a.jpg" aria-details="old"/><details id="old"><summary>Old</summary><p>x</p></details>`),
	}
	update := Update{Src: "OEBPS/images/a.jpg", Alt: str("alt"), LongDesc: str("long desc")}

	for _, input := range inputs {
		first, _ := apply(t, input, update)
		second, changed := apply(t, first, update)
		if changed {
			t.Errorf("second application reported changes for %s", input)
		}
		if first != second {
			t.Errorf("second application differs:\n%s\n%s", first, second)
		}
	}
}

func TestApply_ClearSharedCaption(t *testing.T) {
	input := wrap(`<figure><img src="../images/a.jpg"/><img src="../images/b.jpg"/><figcaption>both</figcaption></figure>`)
	update := Update{Src: "OEBPS/images/a.jpg", LongDesc: str("")}

	first, changed := apply(t, input, update)
	if !changed {
		t.Fatal("Apply() reported no changes")
	}
	recs := Locate(parseDoc(t, first), docPath)
	if len(recs) != 2 {
		t.Fatalf("Locate() returned %d records, want 2", len(recs))
	}
	if recs[0].HasLongDesc || recs[0].LongDesc != "" {
		t.Errorf("cleared image = %+v", recs[0])
	}
	if recs[1].LongDesc != "both" || recs[1].Kind != AssociationKindFigcaption {
		t.Errorf("other image = %+v", recs[1])
	}

	second, changed := apply(t, first, update)
	if changed || second != first {
		t.Errorf("second application changed document:
%s
%s", first, second)
	}

	// description written later replaces empty reference
	third, _ := apply(t, first, Update{Src: "OEBPS/images/a.jpg", LongDesc: str("own")})
	if recs := Locate(parseDoc(t, third), docPath); recs[0].LongDesc != "own" || recs[1].LongDesc != "both" {
		t.Errorf("after describing: %+v", recs)
	}
}

func TestApply_RoundTrip(t *testing.T) {
	input := wrap(`<figure><img src="../images/a.jpg" alt="old"/><figcaption>old</figcaption></figure>` +
		`<img src="../images/b.jpg" aria-describedby="x"/><div id="x">gone</div>` +
		`<img src="../images/c.jpg" alt="c"/>`)
	updates := []Update{
		{Src: "OEBPS/images/a.jpg", Alt: str("new a"), LongDesc: str("long a")},
		{Src: "OEBPS/images/b.jpg", LongDesc: str("")},
		{Src: "OEBPS/images/c.jpg", LongDesc: str("long c")},
	}

	got, _ := apply(t, input, updates...)
	doc := parseDoc(t, got)
	recs := Locate(doc, docPath)
	if len(recs) != 3 {
		t.Fatalf("Locate() returned %d records", len(recs))
	}
	if recs[0].Alt != "new a" || recs[0].LongDesc != "long a" || recs[0].Kind != AssociationKindDetails {
		t.Errorf("a = %+v", recs[0])
	}
	if recs[1].HasLongDesc || recs[1].LongDesc != "" {
		t.Errorf("b still has description: %+v", recs[1])
	}
	img := markup.Elements(doc.Tree.Root(), "img")[1]
	if img.SelectAttr(attrDetails) != nil || img.SelectAttr(attrDescribedBy) != nil {
		t.Error("b still has link attribute")
	}
	if recs[2].Alt != "c" || recs[2].LongDesc != "long c" {
		t.Errorf("c = %+v", recs[2])
	}
}

func TestApply_UniqueIDs(t *testing.T) {
	input := wrap(`<p id="desc-oebps-images-a-jpg">x</p><p id="desc-oebps-images-a-jpg-1">y</p>` +
		`<img src="../images/a.jpg"/><img src="../images/a.jpg"/><img src="../images/a.jpg" aria-details="desc-oebps-images-a-jpg"/>`)
	got, _ := apply(t, input, Update{Src: "OEBPS/images/a.jpg", LongDesc: str("long")})

	seen := make(map[string]bool)
	markup.Walk(parseDoc(t, got).Tree.Root(), func(e *etree.Element) bool {
		if id := e.SelectAttrValue("id", ""); id != "" {
			if seen[id] {
				t.Errorf("duplicate id %q in\n%s", id, got)
			}
			seen[id] = true
		}
		return true
	})
}

func TestApply_CustomOptions(t *testing.T) {
	doc := parseDoc(t, wrap(`<img src="../images/a.jpg"/>`))
	changed, err := Apply(doc, docPath,
		map[string]Update{"OEBPS/images/a.jpg": {Src: "OEBPS/images/a.jpg", LongDesc: str("long")}},
		Options{SummaryLabel: "Beschreibung", IDPrefix: "ld"})
	if err != nil || !changed {
		t.Fatalf("Apply() = %v, %v", changed, err)
	}
	out, _ := doc.Bytes()
	want := wrap(`<img src="../images/a.jpg" aria-details="ld-oebps-images-a-jpg"/>` +
		`<details id="ld-oebps-images-a-jpg"><summary>Beschreibung</summary><p>long</p></details>`)
	if string(out) != want {
		t.Errorf("Apply() =\n%s\nwant\n%s", out, want)
	}
}

func TestIDPool(t *testing.T) {
	doc := parseDoc(t, `<html id="root"><body><p id="a">1</p><p id="a-1">2</p><p id="b">3</p></body></html>`)
	pool := NewIDPool(doc.Tree.Root())

	if !pool.Has("root") || !pool.Has("a") {
		t.Fatal("NewIDPool() missed existing ids")
	}
	if got := pool.Mint("a", ""); got != "a-2" {
		t.Errorf("Mint(a) = %q, want a-2", got)
	}
	if got := pool.Mint("a", ""); got != "a-3" {
		t.Errorf("second Mint(a) = %q, want a-3", got)
	}
	if got := pool.Mint("a", "a-1"); got != "a-1" {
		t.Errorf("Mint(a, own a-1) = %q, want a-1", got)
	}
	if got := pool.Mint("b", "b"); got != "b" {
		t.Errorf("Mint(b, own b) = %q, want b", got)
	}
	if got := pool.Mint("c", ""); got != "c" || !pool.Has("c") {
		t.Errorf("Mint(c) = %q, want reserved c", got)
	}
}

func TestContainerID(t *testing.T) {
	tests := []struct{ src, want string }{
		{"OEBPS/images/a.jpg", "desc-oebps-images-a-jpg"},
		{"OEBPS/Images/My Picture.PNG", "desc-oebps-images-my-picture-png"},
		{"***", "desc-image"},
	}
	for _, tt := range tests {
		if got := containerID(DefaultIDPrefix, tt.src); got != tt.want {
			t.Errorf("containerID(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}
