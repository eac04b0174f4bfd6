package credentials

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

// LoadErrorKind classifies why a credential file could not be loaded.
type LoadErrorKind int

const (
	// FileNotFound means the file does not exist or cannot be opened.
	FileNotFound LoadErrorKind = iota + 1
	// IOFailure covers every other read error.
	IOFailure
)

func (k LoadErrorKind) String() string {
	switch k {
	case FileNotFound:
		return "FileNotFound"
	case IOFailure:
		return "IOFailure"
	default:
		return fmt.Sprintf("LoadErrorKind(%d)", int(k))
	}
}

var _ error = &LoadError{}

// LoadError is returned by Load. Parsing problems on single lines are never
// reported here, only file-level failures.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: loading credentials from %q: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func newLoadError(path string, err error) *LoadError {
	kind := IOFailure
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		kind = FileNotFound
	}
	return &LoadError{Kind: kind, Path: path, Err: err}
}

// IsLoadError reports whether err is a LoadError of the given kind.
func IsLoadError(err error, kind LoadErrorKind) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr) && loadErr.Kind == kind
}
