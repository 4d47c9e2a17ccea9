// Package edit implements read and write contracts of the program on top of
// archive, markup and describe packages.
package edit

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"epubalt/archive"
	"epubalt/config"
	"epubalt/describe"
	"epubalt/markup"
)

// Extract returns every addressable image of the archive content documents in
// manifest and then document order. Records carry raw image bytes and
// sniffed MIME type. Documents and images which could not be read are
// skipped with a warning, only archive level problems are returned.
func Extract(ctx context.Context, a *archive.Archive, cfg *config.DocumentConfig, log *zap.Logger) ([]describe.ImageRecord, error) {
	docs, err := a.ContentDocuments(cfg.ContentTypes...)
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate content documents: %w", err)
	}

	var res []describe.ImageRecord
	for _, name := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := loadDocument(a, name, log)
		if err != nil {
			log.Warn("Skipping content document", zap.String("document", name), zap.Error(err))
			continue
		}

		for _, rec := range describe.Locate(doc, name) {
			data, err := a.ReadEntry(rec.Src)
			if isMissing(err) {
				log.Warn("Skipping image missing from archive", zap.String("document", name), zap.String("src", rec.Src))
				continue
			} else if err != nil {
				log.Warn("Skipping image", zap.String("document", name), zap.String("src", rec.Src), zap.Error(err))
				continue
			}
			rec.Data, rec.MimeType = data, sniffMime(rec.Src, data)
			res = append(res, rec)
		}
	}
	log.Debug("Images extracted", zap.Int("documents", len(docs)), zap.Int("images", len(res)))
	return res, nil
}

// loadDocument reads and parses content document. Recovered markup is
// reported but accepted.
func loadDocument(a *archive.Archive, name string, log *zap.Logger) (*markup.Document, error) {
	data, err := a.ReadEntry(name)
	if err != nil {
		return nil, err
	}
	doc, err := markup.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse content document: %w", err)
	}
	if doc.Recovered != nil {
		log.Warn("Content document markup is broken", zap.String("document", name), zap.String("encoding", doc.Encoding), zap.Error(doc.Recovered))
	}
	return doc, nil
}

// sniffMime detects image type by content, SVG and other text formats are
// not recognized by signature so file extension is consulted then.
func sniffMime(name string, data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if mt := mime.TypeByExtension(path.Ext(name)); len(mt) > 0 {
		mt, _, _ = strings.Cut(mt, ";")
		return mt
	}
	return "application/octet-stream"
}

// isMissing reports whether err is caused by absent archive entry.
func isMissing(err error) bool {
	return errors.Is(err, archive.ErrEntryNotFound)
}
