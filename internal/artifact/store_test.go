package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStore() *Store {
	s := NewStore()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return t0 }
	return s
}

func TestPublishAndResolve(t *testing.T) {
	s := fixedStore()
	rec, err := s.Publish("compiled-assets", "/w/dist", "compile", "")
	require.NoError(t, err)
	assert.Equal(t, "compile", rec.Producer)

	got, err := s.Resolve("compiled-assets")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestResolve_Unresolved(t *testing.T) {
	s := NewStore()
	_, err := s.Resolve("missing")
	var ue *UnresolvedArtifactError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "missing", ue.Key)
	assert.True(t, errors.Is(err, ErrUnresolvedArtifact))
}

func TestPublish_ConflictingProducer(t *testing.T) {
	s := NewStore()
	_, err := s.Publish("bundle", "/a", "package", "")
	require.NoError(t, err)

	_, err = s.Publish("bundle", "/b", "other", "")
	var ce *ConflictingArtifactError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "package", ce.Existing)
	assert.Equal(t, "other", ce.Attempted)

	cur, err := s.Resolve("bundle")
	require.NoError(t, err)
	assert.Equal(t, "/a", cur.Location)
}

func TestPublish_IdempotentSameProducer(t *testing.T) {
	s := fixedStore()
	d := digest.FromString("image")
	first, err := s.Publish("image", "/w/image", "assemble", d)
	require.NoError(t, err)
	second, err := s.Publish("image", "/w/image", "assemble", d)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, s.History("image"))
	assert.Len(t, s.Records(), 1)
}

func TestPublish_SupersedeKeepsHistory(t *testing.T) {
	s := fixedStore()
	_, err := s.Publish("image", "/w/image", "assemble", digest.FromString("v1"))
	require.NoError(t, err)
	_, err = s.Publish("image", "/w/image", "assemble", digest.FromString("v2"))
	require.NoError(t, err)

	hist := s.History("image")
	require.Len(t, hist, 1)
	assert.Equal(t, digest.FromString("v1"), hist[0].Checksum)
	cur, err := s.Resolve("image")
	require.NoError(t, err)
	assert.Equal(t, digest.FromString("v2"), cur.Checksum)
}

func TestSeed_UsesInputProducer(t *testing.T) {
	s := NewStore()
	rec, err := s.Seed("sources", "/src")
	require.NoError(t, err)
	assert.Equal(t, InputProducer, rec.Producer)
	_, err = s.Publish("sources", "/other", "compile", "")
	assert.ErrorIs(t, err, ErrConflictingArtifact)
}

func TestPublish_EmptyKey(t *testing.T) {
	_, err := NewStore().Publish("", "/x", "compile", "")
	assert.Error(t, err)
}

func TestPublish_ConcurrentSingleWinner(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Publish("k", "/x", "p"+string(rune('a'+i)), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestRecords_SortedByKey(t *testing.T) {
	s := NewStore()
	for _, k := range []string{"c", "a", "b"} {
		_, err := s.Publish(k, "/"+k, "p", "")
		require.NoError(t, err)
	}
	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{recs[0].Key, recs[1].Key, recs[2].Key})
}

func TestChecksum_FileAndTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tree", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree", "sub", "b.txt"), []byte("b"), 0o644))

	fd, err := Checksum(filepath.Join(dir, "tree", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, digest.FromString("a"), fd)

	first, err := Checksum(filepath.Join(dir, "tree"))
	require.NoError(t, err)
	require.NoError(t, first.Validate())

	// same content elsewhere hashes identically
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "copy", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy", "sub", "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy", "a.txt"), []byte("a"), 0o644))
	second, err := Checksum(filepath.Join(dir, "copy"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy", "a.txt"), []byte("changed"), 0o644))
	third, err := Checksum(filepath.Join(dir, "copy"))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestChecksum_Missing(t *testing.T) {
	_, err := Checksum(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
