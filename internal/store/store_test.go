package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/pkg/config"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/model"
)

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

func backends() []backend {
	return []backend{
		{"file", func(t *testing.T) store.Store {
			s, err := store.NewFileStore(filepath.Join(t.TempDir(), "records"))
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) store.Store {
			s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func sampleRecord(id model.TaskID) *model.TaskRecord {
	rec := model.NewTaskRecord(id, "0190b5a0-0000-7000-8000-000000000001")
	rec.Signature = "go build ./..."
	rec.CompletedAt = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	rec.InputFiles["src"] = model.NewSnapshot(
		model.Fingerprint{Kind: model.KindDir, Path: "src"},
		model.Fingerprint{Kind: model.KindFile, Path: "src/main.go", Content: "aa11", Size: 120, ModTime: 1740830400123456789},
	)
	rec.OutputFiles["bin"] = model.NewSnapshot(
		model.Fingerprint{Kind: model.KindFile, Path: "bin/app", Content: "bb22", Size: 4096},
	)
	return rec
}

func TestStore_RoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			rec := sampleRecord(":app:compile")

			require.NoError(t, s.Save(":app:compile", rec))
			assert.Empty(t, rec.Checksum, "save must not modify the caller's record")

			got, err := s.LoadPrevious(":app:compile")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.NotEmpty(t, got.Checksum)
			assert.Equal(t, rec.ExecutionID, got.ExecutionID)
			assert.Equal(t, rec.Signature, got.Signature)
			assert.True(t, rec.CompletedAt.Equal(got.CompletedAt))
			assert.True(t, got.InputFiles["src"].Equal(rec.InputFiles["src"]))
			assert.Equal(t, rec.InputFiles["src"].Paths(), got.InputFiles["src"].Paths())
			assert.True(t, got.OutputFiles["bin"].Equal(rec.OutputFiles["bin"]))

			main, _ := got.InputFiles["src"].Get("src/main.go")
			assert.Equal(t, int64(1740830400123456789), main.ModTime)
		})
	}
}

func TestStore_LoadAbsent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			got, err := b.open(t).LoadPrevious("never-ran")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			first := sampleRecord("build")
			require.NoError(t, s.Save("build", first))

			second := sampleRecord("build")
			second.ExecutionID = "second"
			second.OutputFiles["bin"] = model.EmptySnapshot()
			require.NoError(t, s.Save("build", second))

			got, err := s.LoadPrevious("build")
			require.NoError(t, err)
			assert.Equal(t, "second", got.ExecutionID)
			assert.True(t, got.OutputFiles["bin"].IsEmpty())

			ids, err := s.List()
			require.NoError(t, err)
			assert.Equal(t, []model.TaskID{"build"}, ids)
		})
	}
}

func TestStore_SaveRejectsMismatchedID(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			err := b.open(t).Save("other", sampleRecord("build"))
			assert.ErrorIs(t, err, errclass.ErrRecordCorrupt)
		})
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			for _, id := range []model.TaskID{":b:test", ":a:compile", ":a:test"} {
				require.NoError(t, s.Save(id, sampleRecord(id)))
			}

			ids, err := s.List()
			require.NoError(t, err)
			assert.Equal(t, []model.TaskID{":a:compile", ":a:test", ":b:test"}, ids)

			require.NoError(t, s.Delete(":a:test"))
			got, err := s.LoadPrevious(":a:test")
			require.NoError(t, err)
			assert.Nil(t, got)

			assert.ErrorIs(t, s.Delete(":a:test"), errclass.ErrTaskNotFound)

			ids, err = s.List()
			require.NoError(t, err)
			assert.Equal(t, []model.TaskID{":a:compile", ":b:test"}, ids)
		})
	}
}

func TestStore_VerifyClean(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.Save("build", sampleRecord("build")))
			problems, err := s.Verify()
			require.NoError(t, err)
			assert.Empty(t, problems)
		})
	}
}

func TestFileStore_DetectsTampering(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Save("build", sampleRecord("build")))

	path := s.RecordPath("build")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"bb22"`)
	tampered := strings.Replace(string(data), `"bb22"`, `"cc33"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = s.LoadPrevious("build")
	assert.ErrorIs(t, err, errclass.ErrRecordCorrupt)

	problems, err := s.Verify()
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.ErrorIs(t, problems[0].Err, errclass.ErrRecordCorrupt)
}

func TestFileStore_GarbageAndUnsupportedVersion(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.RecordPath("garbage"), []byte("{not json"), 0644))
	_, err = s.LoadPrevious("garbage")
	assert.ErrorIs(t, err, errclass.ErrRecordCorrupt)

	require.NoError(t, os.WriteFile(s.RecordPath("future"), []byte(`{"format_version": 99, "task_id": "future"}`), 0644))
	_, err = s.LoadPrevious("future")
	assert.ErrorIs(t, err, errclass.ErrFormatUnsupported)

	// Unreadable records are skipped by List but reported by Verify
	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{"future"}, ids)

	problems, err := s.Verify()
	require.NoError(t, err)
	assert.Len(t, problems, 2)
}

func TestFileStore_RecordPathIsStable(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := s.RecordPath(":app:compile")
	assert.Equal(t, p, s.RecordPath(":app:compile"))
	assert.NotEqual(t, p, s.RecordPath(":app:test"))
	assert.Equal(t, s.Dir(), filepath.Dir(p))
	assert.Len(t, filepath.Base(p), 32+len(".json"))
}

func TestOpen_SelectsBackend(t *testing.T) {
	root := t.TempDir()

	cfg := config.Default()
	s, err := store.Open(root, cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, s)
	require.NoError(t, s.Close())

	cfg.Store.Backend = model.StoreBackendSQLite
	cfg.Store.Path = "records.db"
	s, err = store.Open(root, cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, s)
	require.NoError(t, s.Close())
	_, err = os.Stat(filepath.Join(root, config.StateDirName, "records.db"))
	assert.NoError(t, err)

	cfg.Store.Backend = "etcd"
	_, err = store.Open(root, cfg)
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}
