package capture

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rs/zerolog"

	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/ids"
)

// pdfMagic must appear within the first pdfHeaderWindow bytes of a PDF.
var pdfMagic = []byte("%PDF-")

const pdfHeaderWindow = 1024

// FileProvider copies the picked content into a cache directory and
// validates it against the requested kind.
type FileProvider struct {
	cacheDir string
	maxBytes int64
	picker   Picker
	logger   zerolog.Logger
}

// NewFileProvider creates a provider that caches content under cacheDir.
func NewFileProvider(cacheDir string, maxBytes int64, picker Picker, logger zerolog.Logger) *FileProvider {
	return &FileProvider{
		cacheDir: cacheDir,
		maxBytes: maxBytes,
		picker:   picker,
		logger:   logger,
	}
}

// Capture implements Provider.
func (p *FileProvider) Capture(ctx context.Context, kind Kind) (*Handle, error) {
	if kind != KindImage && kind != KindDocument {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown capture kind %q", kind))
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	sel, err := p.picker.Pick(ctx, kind)
	if err != nil {
		if IsCancelled(err) {
			return nil, ErrCancelled
		}
		return nil, asProviderError(err)
	}
	if sel == nil || sel.Body == nil {
		return nil, ErrCancelled
	}
	defer sel.Body.Close()

	if err := os.MkdirAll(p.cacheDir, 0700); err != nil {
		return nil, errors.NewProviderFailed(fmt.Sprintf("create cache directory: %v", err))
	}

	tmp, size, err := p.copyToCache(sel.Body)
	if err != nil {
		return nil, err
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmp)
		}
	}()

	// The user may have backed out while the content was copying.
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	h := &Handle{
		Kind:        kind,
		DisplayName: sel.Name,
		Size:        size,
	}

	var ext string
	switch kind {
	case KindImage:
		ext, err = inspectImage(tmp, h)
	case KindDocument:
		ext, err = inspectDocument(tmp, h)
	}
	if err != nil {
		return nil, err
	}

	id, err := ids.New()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	h.ID = id
	h.Path = filepath.Join(p.cacheDir, id+ext)
	if err := os.Rename(tmp, h.Path); err != nil {
		return nil, errors.NewProviderFailed(fmt.Sprintf("store capture: %v", err))
	}
	keep = true

	p.logger.Debug().
		Str("id", h.ID).
		Str("kind", string(kind)).
		Str("media_type", h.MediaType).
		Int64("size", h.Size).
		Msg("content captured")

	return h, nil
}

// copyToCache streams body into a temp file, enforcing maxBytes.
func (p *FileProvider) copyToCache(body io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(p.cacheDir, "capture-*")
	if err != nil {
		return "", 0, errors.NewProviderFailed(fmt.Sprintf("create cache file: %v", err))
	}
	name := f.Name()

	n, copyErr := io.Copy(f, io.LimitReader(body, p.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(name)
		return "", 0, errors.NewProviderFailed(fmt.Sprintf("read content: %v", copyErr))
	}
	if n > p.maxBytes {
		_ = os.Remove(name)
		return "", 0, errors.NewContentTooLarge(p.maxBytes, n)
	}
	if n == 0 {
		_ = os.Remove(name)
		return "", 0, errors.NewProviderFailed("selected content is empty")
	}
	return name, n, nil
}

func inspectImage(path string, h *Handle) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewProviderFailed(err.Error())
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", errors.NewUnsupportedFormat(string(KindImage), "not a PNG, JPEG, GIF, WebP, BMP or TIFF image")
	}
	h.Width = cfg.Width
	h.Height = cfg.Height
	h.MediaType = "image/" + format
	if h.DisplayName == "" || h.DisplayName == "." {
		h.DisplayName = "image"
	}

	if format == "jpeg" {
		return ".jpg", nil
	}
	return "." + format, nil
}

func inspectDocument(path string, h *Handle) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewProviderFailed(err.Error())
	}
	defer f.Close()

	head := make([]byte, pdfHeaderWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && !stderrors.Is(err, io.ErrUnexpectedEOF) && !stderrors.Is(err, io.EOF) {
		return "", errors.NewProviderFailed(err.Error())
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return "", errors.NewUnsupportedFormat(string(KindDocument), "only PDF documents are accepted")
	}

	h.MediaType = "application/pdf"
	if h.DisplayName == "" || h.DisplayName == "." {
		h.DisplayName = "document.pdf"
	}
	return ".pdf", nil
}

// asProviderError keeps structured errors and wraps everything else as a provider failure.
func asProviderError(err error) error {
	var aErr *errors.AtlasError
	if stderrors.As(err, &aErr) {
		return aErr
	}
	return errors.NewProviderFailed(err.Error())
}
