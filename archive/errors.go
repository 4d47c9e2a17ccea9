package archive

import "errors"

var (
	// ErrArchiveFormat is returned when input is not a readable zip archive
	// or when package document could not be located in it.
	ErrArchiveFormat = errors.New("invalid epub archive")
	// ErrEntryNotFound is returned when requested entry is absent.
	ErrEntryNotFound = errors.New("archive entry not found")
	// ErrPackaging is returned when new archive could not be produced.
	ErrPackaging = errors.New("unable to package archive")
)
