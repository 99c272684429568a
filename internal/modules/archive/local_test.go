package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/reportkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestPutGetRoundTrip(t *testing.T) {
	l := newLocal(t)
	key := reportkey.ForURL("https://play.google.com/store/apps/details?id=com.example")
	payload := []byte(`{"fullText":"line one\nline two"}`)

	require.NoError(t, l.Put(context.Background(), key, payload))

	got, err := l.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestShardedLayout(t *testing.T) {
	l := newLocal(t)
	key := reportkey.Key("ab12cd34ab12cd34ab12cd34ab12cd34")
	require.NoError(t, l.Put(context.Background(), key, []byte("x")))

	_, err := os.Stat(filepath.Join(l.dir, "ab", "12", string(key)+".zip"))
	assert.NoError(t, err)
}

func TestGetMissingIsNotFound(t *testing.T) {
	l := newLocal(t)
	_, err := l.Get(context.Background(), reportkey.ForURL("https://nope.example"))
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestGetCorruptArchiveIsTerminal(t *testing.T) {
	l := newLocal(t)
	key := reportkey.ForURL("https://corrupt.example")

	path := l.blobPath(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	_, err := l.Get(context.Background(), key)
	assert.ErrorIs(t, err, fault.ErrCorruptArchive)
}

func TestGetZipWithoutReportEntryIsCorrupt(t *testing.T) {
	l := newLocal(t)
	key := reportkey.ForURL("https://wrong-entry.example")

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	f, err := w.Create("other.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := l.blobPath(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err = l.Get(context.Background(), key)
	assert.ErrorIs(t, err, fault.ErrCorruptArchive)
}

func TestDeleteIsIdempotent(t *testing.T) {
	l := newLocal(t)
	key := reportkey.ForURL("https://delete.example")
	require.NoError(t, l.Put(context.Background(), key, []byte("x")))

	require.NoError(t, l.Delete(context.Background(), key))
	require.NoError(t, l.Delete(context.Background(), key))

	_, err := l.Get(context.Background(), key)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

type recordingMirror struct {
	puts    []string
	deletes []string
}

func (m *recordingMirror) Put(_ context.Context, key reportkey.Key, _ []byte) error {
	m.puts = append(m.puts, key.String())
	return nil
}
func (m *recordingMirror) Get(context.Context, reportkey.Key) ([]byte, error) { return nil, nil }
func (m *recordingMirror) Delete(_ context.Context, key reportkey.Key) error {
	m.deletes = append(m.deletes, key.String())
	return nil
}

func TestMirrorWriteThrough(t *testing.T) {
	mirror := &recordingMirror{}
	l, err := NewLocal(t.TempDir(), mirror, zap.NewNop())
	require.NoError(t, err)

	key := reportkey.ForURL("https://mirror.example")
	require.NoError(t, l.Put(context.Background(), key, []byte("x")))
	require.NoError(t, l.Delete(context.Background(), key))

	assert.Equal(t, []string{key.String()}, mirror.puts)
	assert.Equal(t, []string{key.String()}, mirror.deletes)
}
