package ops

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/atlas/internal/analysis"
	"github.com/hpungsan/atlas/internal/capture"
	"github.com/hpungsan/atlas/internal/config"
	"github.com/hpungsan/atlas/internal/db"
	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/paywall"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestEnv builds an Env on a temp base dir with the given analyzer.
func newTestEnv(t *testing.T, a analysis.Analyzer) *Env {
	t.Helper()
	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	presenter := analysis.NewPresenter(a,
		analysis.WithTimeout(5*time.Second),
		analysis.OnResolve(PersistResults(database, zerolog.Nop())),
	)
	t.Cleanup(func() { _ = presenter.Shutdown(context.Background()) })

	return &Env{
		DB:        database,
		Config:    config.DefaultConfig(),
		BaseDir:   baseDir,
		Presenter: presenter,
		Paywall:   paywall.New(paywall.DefaultOffer(), nil, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}
}

func newTestGate(t *testing.T) *entitlement.Gate {
	t.Helper()
	g, err := entitlement.New(3, 24*time.Hour)
	require.NoError(t, err)
	return g
}

// upload returns a provider that "picks" the given bytes. Nil data means
// the user dismissed the picker.
func upload(env *Env, name string, data []byte) capture.Provider {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	return capture.NewFileProvider(env.CacheDir(), env.Config.MaxUploadBytes, capture.ReaderPicker(name, body), zerolog.Nop())
}

func fetchDone(t *testing.T, env *Env, id string) *FetchOutput {
	t.Helper()
	out, err := Fetch(context.Background(), env, FetchInput{ID: id, Wait: 5 * time.Second})
	require.NoError(t, err)
	return out
}

func TestPagination_Bounds(t *testing.T) {
	env := newTestEnv(t, analysis.MockAnalyzer{})

	out, err := List(context.Background(), env, ListInput{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	require.Equal(t, MaxListLimit, out.Pagination.Limit)
	require.Equal(t, 0, out.Pagination.Offset)
	require.NotNil(t, out.Items)
	require.Empty(t, out.Items)
	require.Equal(t, "created_at_desc", out.Sort)

	out, err = List(context.Background(), env, ListInput{})
	require.NoError(t, err)
	require.Equal(t, DefaultListLimit, out.Pagination.Limit)
}
