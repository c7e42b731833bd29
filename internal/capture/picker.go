package capture

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/atlas/internal/errors"
)

// PathPicker picks the file at path. An empty path means the user dismissed
// the picker.
func PathPicker(path string) Picker {
	return PickerFunc(func(ctx context.Context, _ Kind) (*Selection, error) {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, ErrCancelled
		}

		info, err := os.Stat(path)
		if err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				return nil, errors.NewFileNotFound(path)
			}
			return nil, errors.NewProviderFailed(err.Error())
		}
		if info.IsDir() {
			return nil, errors.NewInvalidRequest("path is a directory: " + path)
		}

		f, err := os.Open(path)
		if err != nil {
			if stderrors.Is(err, os.ErrPermission) {
				return nil, errors.NewProviderFailed("permission denied: " + path)
			}
			return nil, errors.NewProviderFailed(err.Error())
		}
		return &Selection{Name: filepath.Base(path), Body: f}, nil
	})
}

// ReaderPicker picks already-received content, such as an upload.
// A nil body means nothing was chosen.
func ReaderPicker(name string, body io.Reader) Picker {
	return PickerFunc(func(ctx context.Context, _ Kind) (*Selection, error) {
		if body == nil {
			return nil, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, ErrCancelled
		}
		rc, ok := body.(io.ReadCloser)
		if !ok {
			rc = io.NopCloser(body)
		}
		return &Selection{Name: filepath.Base(strings.TrimSpace(name)), Body: rc}, nil
	})
}
