package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prescriptions")
	store, err := NewDiskStore(dir, "/uploads/prescriptions/")
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "doc_1.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "doc_1.pdf", ref)
	assert.Equal(t, "/uploads/prescriptions/doc_1.pdf", store.URL(ref))

	data, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestDiskStore_PutStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/files")
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "../../etc/evil.txt", "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "evil.txt", ref)
	assert.FileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestDiskStore_PutCancelled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/files")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Put(ctx, "a.pdf", "", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "a.pdf"))
}

func TestS3Store_URL(t *testing.T) {
	s := &S3Store{bucket: "rx"}
	assert.Equal(t, "s3://rx/prescriptions/a.pdf", s.URL("prescriptions/a.pdf"))

	s.publicBaseURL = "https://cdn.example.test"
	assert.Equal(t, "https://cdn.example.test/prescriptions/a.pdf", s.URL("prescriptions/a.pdf"))
}
