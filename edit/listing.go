package edit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"

	"epubalt/describe"
)

type listingEntry struct {
	Document   string `yaml:"document"`
	Src        string `yaml:"src"`
	Alt        string `yaml:"alt"`
	LongDesc   string `yaml:"long_desc"`
	Convention string `yaml:"convention,omitempty"`
	Mime       string `yaml:"mime"`
	Size       int    `yaml:"size"`
}

type listing struct {
	Images []listingEntry `yaml:"images"`
}

// WriteListing outputs records as YAML document.
func WriteListing(w io.Writer, recs []describe.ImageRecord) error {
	l := listing{Images: make([]listingEntry, 0, len(recs))}
	for _, rec := range recs {
		e := listingEntry{
			Document: rec.Document,
			Src:      rec.Src,
			Alt:      rec.Alt,
			LongDesc: rec.LongDesc,
			Mime:     rec.MimeType,
			Size:     len(rec.Data),
		}
		if rec.HasLongDesc {
			e.Convention = rec.Kind.String()
		}
		l.Images = append(l.Images, e)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("unable to encode listing: %w", err)
	}
	return enc.Close()
}

// DumpImages saves raw image bytes under dir keeping archive layout. Image
// referenced from several documents is written once. Returns number of
// written files.
func DumpImages(dir string, recs []describe.ImageRecord, overwrite bool) (int, error) {
	written := make(map[string]bool)
	for _, rec := range recs {
		if written[rec.Src] || rec.Data == nil {
			continue
		}
		// sources are resolved archive paths which never escape archive root
		name := filepath.Join(dir, filepath.FromSlash(rec.Src))
		if _, err := os.Stat(name); err == nil && !overwrite {
			return len(written), fmt.Errorf("image file already exists: %s", name)
		}
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return len(written), fmt.Errorf("unable to create image directory: %w", err)
		}
		if err := os.WriteFile(name, rec.Data, 0644); err != nil {
			return len(written), fmt.Errorf("unable to write image: %w", err)
		}
		written[rec.Src] = true
	}
	return len(written), nil
}
