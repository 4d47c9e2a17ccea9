package edit

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"epubalt/archive"
	"epubalt/config"
	"epubalt/describe"
)

// Summary describes outcome of the write pass.
type Summary struct {
	// Documents are all content documents considered.
	Documents []string
	// Changed documents were rewritten with new markup.
	Changed []string
	// Skipped documents could not be processed and were copied unmodified.
	Skipped []string
	// Unmatched are update sources no document refers to.
	Unmatched []string
	// Issues aggregates per document problems, nil when there were none.
	Issues error
}

// Update applies updates to content documents of the archive and writes
// resulting archive to w. Only archive level failures are returned as
// errors, problems with individual documents end up in Summary.Issues.
func Update(ctx context.Context, a *archive.Archive, w io.Writer, updates []describe.Update, cfg *config.DocumentConfig, log *zap.Logger) (*Summary, error) {
	sum, mutated, err := process(ctx, a, updates, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := archive.Rebuild(ctx, a, w, mutated); err != nil {
		return nil, fmt.Errorf("unable to rebuild archive: %w", err)
	}
	return sum, nil
}

// UpdateFile is Update which atomically publishes result as dst.
func UpdateFile(ctx context.Context, a *archive.Archive, dst string, updates []describe.Update, cfg *config.DocumentConfig, overwrite bool, log *zap.Logger) (*Summary, error) {
	sum, mutated, err := process(ctx, a, updates, cfg, log)
	if err != nil {
		return nil, err
	}
	opts := archive.WriteOptions{Overwrite: overwrite, FixZip: cfg.FixZip}
	if err := archive.WriteFile(ctx, a, dst, mutated, opts); err != nil {
		return nil, fmt.Errorf("unable to write archive: %w", err)
	}
	return sum, nil
}

// NormalizeUpdates drops updates without source or without requested
// changes and merges updates for the same source, later fields win.
func NormalizeUpdates(updates []describe.Update, log *zap.Logger) map[string]describe.Update {
	res := make(map[string]describe.Update, len(updates))
	for i, u := range updates {
		u.Src = strings.TrimSpace(u.Src)
		if len(u.Src) == 0 {
			log.Warn("Ignoring update without image source", zap.Int("index", i))
			continue
		}
		if u.Empty() {
			log.Warn("Ignoring update which does not change anything", zap.Int("index", i), zap.String("src", u.Src))
			continue
		}
		if prev, ok := res[u.Src]; ok {
			log.Debug("Merging updates for the same image", zap.String("src", u.Src))
			u = prev.Merge(u)
		}
		res[u.Src] = u
	}
	return res
}

// process runs write pass over every content document and returns new
// content of changed ones.
func process(ctx context.Context, a *archive.Archive, updates []describe.Update, cfg *config.DocumentConfig, log *zap.Logger) (*Summary, map[string][]byte, error) {
	docs, err := a.ContentDocuments(cfg.ContentTypes...)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to enumerate content documents: %w", err)
	}

	byPath := NormalizeUpdates(updates, log)
	opts := describe.Options{SummaryLabel: cfg.SummaryLabel, IDPrefix: cfg.IDPrefix}

	var (
		sum     = &Summary{Documents: docs}
		mutated = make(map[string][]byte)
		matched = make(map[string]bool, len(byPath))
	)
	skip := func(name string, err error) {
		log.Warn("Content document copied unmodified", zap.String("document", name), zap.Error(err))
		sum.Skipped = append(sum.Skipped, name)
		sum.Issues = multierr.Append(sum.Issues, fmt.Errorf("document %s: %w", name, err))
	}

	for _, name := range docs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if len(byPath) == 0 {
			break
		}

		doc, err := loadDocument(a, name, log)
		if isMissing(err) {
			log.Warn("Skipping content document missing from archive", zap.String("document", name))
			continue
		} else if err != nil {
			skip(name, err)
			continue
		}
		for _, rec := range describe.Locate(doc, name) {
			if _, ok := byPath[rec.Src]; ok {
				matched[rec.Src] = true
			}
		}

		changed, err := describe.Apply(doc, name, byPath, opts)
		if err != nil {
			skip(name, fmt.Errorf("unable to apply updates: %w", err))
			continue
		}
		if !changed {
			continue
		}
		data, err := doc.Bytes()
		if err != nil {
			skip(name, fmt.Errorf("unable to serialize document: %w", err))
			continue
		}
		mutated[name] = data
		sum.Changed = append(sum.Changed, name)
		log.Debug("Content document updated", zap.String("document", name), zap.String("encoding", doc.Encoding))
	}

	for src := range byPath {
		if !matched[src] {
			sum.Unmatched = append(sum.Unmatched, src)
		}
	}
	slices.Sort(sum.Unmatched)
	if len(sum.Unmatched) > 0 {
		log.Warn("Some updates do not match any image", zap.Strings("src", sum.Unmatched))
	}
	return sum, mutated, nil
}
