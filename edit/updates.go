package edit

import (
	"errors"
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v3"

	"epubalt/describe"
)

type updatesFile struct {
	Updates []describe.Update `yaml:"updates"`
}

// ReadUpdates decodes list of updates. Input is YAML, JSON is accepted too
// as a subset of it. Fields absent from an update are left untouched, empty
// strings request removal.
func ReadUpdates(r io.Reader) ([]describe.Update, error) {
	// only fields we defined are accepted, typo in field name would otherwise
	// silently turn into "leave alone"
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f updatesFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no updates found")
		}
		return nil, fmt.Errorf("unable to decode updates: %w", err)
	}
	return f.Updates, nil
}

// LoadUpdates reads updates from file at path, "-" means STDIN.
func LoadUpdates(path string) ([]describe.Update, error) {
	if path == "-" {
		return ReadUpdates(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open updates file: %w", err)
	}
	defer f.Close()
	return ReadUpdates(f)
}
