package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	fixzip "github.com/hidez8891/zip"
)

// WriteOptions controls publishing of rebuilt archive.
type WriteOptions struct {
	// Overwrite allows replacing existing destination.
	Overwrite bool
	// FixZip removes data descriptors from all entries after archive is built.
	FixZip bool
}

// Rebuild writes copy of archive a to w. Entries named in mutated get new
// content, everything else is copied raw in original order. Mutated names
// absent from archive are appended at the end.
func Rebuild(ctx context.Context, a *Archive, w io.Writer, mutated map[string][]byte) error {
	mutated = a.canonicalNames(mutated)
	zw := zip.NewWriter(w)

	mt := a.lookup(mimetypePath)
	if err := writeMimetype(zw, mt, mutated[mimetypePath]); err != nil {
		return fmt.Errorf("%w: unable to write mimetype: %w", ErrPackaging, err)
	}

	written := map[string]bool{mimetypePath: true}
	err := a.Walk(func(name string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f == mt || written[name] {
			// mimetype is already there and duplicates are dropped
			return nil
		}
		written[name] = true
		if data, ok := mutated[name]; ok {
			return writeEntry(zw, &f.FileHeader, data)
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("unable to copy entry %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPackaging) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	extra := make([]string, 0, len(mutated))
	for name := range mutated {
		if !written[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		if err := writeEntry(zw, &zip.FileHeader{Name: name, Method: zip.Deflate}, mutated[name]); err != nil {
			return fmt.Errorf("%w: %w", ErrPackaging, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	return nil
}

// canonicalNames rekeys mutated entries by names they have in archive, so
// content found through case insensitive lookup replaces the entry it was
// read from. Names absent from archive are kept as is.
func (a *Archive) canonicalNames(mutated map[string][]byte) map[string][]byte {
	if len(mutated) == 0 {
		return mutated
	}
	keys := make([]string, 0, len(mutated))
	for name := range mutated {
		keys = append(keys, name)
	}
	// exact spelling wins over folded one
	slices.SortFunc(keys, func(x, y string) int {
		xi, yi := a.exact[x] != nil, a.exact[y] != nil
		switch {
		case xi == yi:
			return strings.Compare(x, y)
		case xi:
			return 1
		default:
			return -1
		}
	})
	res := make(map[string][]byte, len(mutated))
	for _, name := range keys {
		key := name
		if f := a.lookup(name); f != nil {
			key = a.names[f]
		}
		res[key] = mutated[name]
	}
	return res
}

// writeMimetype puts mimetype first, stored, without data descriptor and
// extra field. Original content and timestamp are kept. Nothing is written
// when archive has no mimetype and none is supplied.
func writeMimetype(zw *zip.Writer, f *zip.File, data []byte) error {
	fh := &zip.FileHeader{Name: mimetypePath, Method: zip.Store}
	switch {
	case data != nil:
	case f != nil:
		var err error
		if data, err = readEntry(f, maxEntrySize); err != nil {
			return err
		}
	default:
		return nil
	}
	if f != nil {
		// Modified would add extended timestamp extra field
		//lint:ignore SA1019 legacy MS-DOS time keeps header free of extra fields
		fh.ModifiedDate, fh.ModifiedTime = f.ModifiedDate, f.ModifiedTime
	}
	fh.CRC32 = crc32.ChecksumIEEE(data)
	fh.CompressedSize64 = uint64(len(data))
	fh.UncompressedSize64 = uint64(len(data))

	w, err := zw.CreateRaw(fh)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// writeEntry stores new content under original header properties.
func writeEntry(zw *zip.Writer, orig *zip.FileHeader, data []byte) error {
	fh := &zip.FileHeader{
		Name:     orig.Name,
		Comment:  orig.Comment,
		NonUTF8:  orig.NonUTF8,
		Method:   orig.Method,
		Modified: orig.Modified,
	}
	if fh.Method != zip.Store {
		fh.Method = zip.Deflate
	}
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("unable to create entry %q: %w", orig.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("unable to write entry %q: %w", orig.Name, err)
	}
	return nil
}

// WriteFile rebuilds archive into dst. Result is produced in staging file
// next to dst and renamed into place only on success, so dst is never left
// partially written.
func WriteFile(ctx context.Context, a *Archive, dst string, mutated map[string][]byte, opts WriteOptions) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil && !opts.Overwrite {
		return fmt.Errorf("output file already exists: %s", dst)
	}

	dir, base := filepath.Split(dst)
	if len(dir) == 0 {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	staged, err := stage(dir, base, func(out *os.File) error {
		return Rebuild(ctx, a, out, mutated)
	})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(staged)
		}
	}()

	if opts.FixZip {
		fixed, err := stage(dir, base, func(out *os.File) error {
			return copyZipWithoutDataDescriptors(staged, out)
		})
		os.Remove(staged)
		if err != nil {
			return err
		}
		staged = fixed
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(staged, dst); err != nil {
		return fmt.Errorf("unable to publish output file (%s): %w", dst, err)
	}
	return nil
}

// stage creates temporary file in dir and fills it with fill. On failure
// temporary file is removed.
func stage(dir, base string, fill func(*os.File) error) (string, error) {
	out, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("unable to create staging file: %w", err)
	}
	name := out.Name()

	err = fill(out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("unable to close staging file: %w", cerr)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func copyZipWithoutDataDescriptors(from string, out io.Writer) error {
	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("%w: unable to read archive file (%s): %w", ErrPackaging, from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("%w: unable to write entry %q: %w", ErrPackaging, file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	return nil
}
