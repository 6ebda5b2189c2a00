package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/taskstate/pkg/model"
)

func fp(path, hash string) model.Fingerprint {
	return model.Fingerprint{Kind: model.KindFile, Path: path, Content: model.HashValue(hash)}
}

func paths(changes []Change) []string {
	var out []string
	for _, c := range changes {
		out = append(out, string(c.Type)+":"+c.Path)
	}
	return out
}

func TestChanges_NoChanges(t *testing.T) {
	s := model.NewSnapshot(fp("a.txt", "h1"), fp("b.txt", "h2"))

	changes := Collect(Changes(s, s, NoFilters))
	assert.Empty(t, changes)
	assert.False(t, HasChanges(s, s, NoFilters))
}

func TestChanges_AddedFile(t *testing.T) {
	before := model.NewSnapshot(fp("a.txt", "h1"))
	after := model.NewSnapshot(fp("a.txt", "h1"), fp("new.txt", "h2"))

	changes := Collect(Changes(before, after, NoFilters))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeAdded, changes[0].Type)
	assert.Equal(t, "new.txt", changes[0].Path)
	assert.Nil(t, changes[0].Previous)
	require.NotNil(t, changes[0].Current)
	assert.Equal(t, model.HashValue("h2"), changes[0].Current.Content)
}

func TestChanges_RemovedFile(t *testing.T) {
	before := model.NewSnapshot(fp("a.txt", "h1"), fp("gone.txt", "h2"))
	after := model.NewSnapshot(fp("a.txt", "h1"))

	changes := Collect(Changes(before, after, NoFilters))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeRemoved, changes[0].Type)
	assert.Equal(t, "gone.txt", changes[0].Path)
	assert.Nil(t, changes[0].Current)
}

func TestChanges_ModifiedFile(t *testing.T) {
	before := model.NewSnapshot(fp("a.txt", "old"))
	after := model.NewSnapshot(fp("a.txt", "new"))

	changes := Collect(Changes(before, after, NoFilters))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeModified, changes[0].Type)
	assert.Equal(t, model.HashValue("old"), changes[0].Previous.Content)
	assert.Equal(t, model.HashValue("new"), changes[0].Current.Content)
}

func TestChanges_KindChangeIsModification(t *testing.T) {
	before := model.NewSnapshot(model.Fingerprint{Kind: model.KindDir, Path: "out"})
	after := model.NewSnapshot(model.Fingerprint{Kind: model.KindFile, Path: "out", Content: "h1"})

	changes := Collect(Changes(before, after, NoFilters))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeModified, changes[0].Type)
}

func TestChanges_MetadataOnlyDifferenceIsNotAChange(t *testing.T) {
	a := fp("a.txt", "h1")
	a.ModTime = 1
	b := fp("a.txt", "h1")
	b.ModTime = 2

	assert.False(t, HasChanges(model.NewSnapshot(a), model.NewSnapshot(b), NoFilters))
}

func TestChanges_Ordering(t *testing.T) {
	before := model.NewSnapshot(fp("m2", "x"), fp("r2", "x"), fp("m1", "x"), fp("r1", "x"))
	after := model.NewSnapshot(fp("a2", "x"), fp("m1", "y"), fp("a1", "x"), fp("m2", "y"))

	changes := Collect(Changes(before, after, NoFilters))
	assert.Equal(t, []string{
		"removed:r2", "removed:r1",
		"modified:m2", "modified:m1",
		"added:a2", "added:a1",
	}, paths(changes))
}

func TestChanges_IgnoreAddedFiles(t *testing.T) {
	before := model.NewSnapshot(fp("a.txt", "h1"), fp("gone.txt", "h"))
	after := model.NewSnapshot(fp("a.txt", "h2"), fp("b.txt", "h3"))

	filters := NewFilterSet(IgnoreAddedFiles)
	changes := Collect(Changes(before, after, filters))
	assert.Equal(t, []string{"removed:gone.txt", "modified:a.txt"}, paths(changes))

	onlyAdded := model.NewSnapshot(fp("a.txt", "h1"), fp("b.txt", "h3"))
	assert.False(t, HasChanges(model.NewSnapshot(fp("a.txt", "h1")), onlyAdded, filters))
	assert.True(t, HasChanges(model.NewSnapshot(fp("a.txt", "h1")), onlyAdded, NoFilters))
}

func TestChanges_IsRestartable(t *testing.T) {
	before := model.NewSnapshot(fp("a.txt", "h1"))
	after := model.NewSnapshot(fp("b.txt", "h2"))

	seq := Changes(before, after, NoFilters)
	first := Collect(seq)
	second := Collect(seq)
	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
}

func TestChanges_EarlyStop(t *testing.T) {
	before := model.NewSnapshot(fp("a", "1"), fp("b", "1"), fp("c", "1"))

	count := 0
	for range Changes(before, model.EmptySnapshot(), NoFilters) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestChanges_EmptySnapshots(t *testing.T) {
	assert.Empty(t, Collect(Changes(model.EmptySnapshot(), model.EmptySnapshot(), NoFilters)))

	after := model.NewSnapshot(fp("a", "1"), fp("b", "2"))
	changes := Collect(Changes(model.EmptySnapshot(), after, NoFilters))
	assert.Equal(t, []string{"added:a", "added:b"}, paths(changes))
}

func TestFilterSet(t *testing.T) {
	set := NewFilterSet(IgnoreAddedFiles, IgnoreAddedFiles)
	assert.Len(t, set, 1)
	assert.True(t, set.Contains(IgnoreAddedFiles))
	assert.True(t, set.Suppresses(ChangeAdded))
	assert.False(t, set.Suppresses(ChangeRemoved))
	assert.False(t, set.Suppresses(ChangeModified))
	assert.False(t, NoFilters.Suppresses(ChangeAdded))
	assert.Equal(t, "none", NoFilters.String())
	assert.Equal(t, "ignore_added_files", set.String())
}

func TestSummarize_FormatHuman(t *testing.T) {
	prev := fp("mod.txt", "a")
	prev.Size = 3
	cur := fp("mod.txt", "b")
	cur.Size = 5
	before := model.NewSnapshot(prev, fp("gone.txt", "x"))
	after := model.NewSnapshot(cur, fp("new.txt", "y"))

	r := Summarize(Changes(before, after, NoFilters))
	assert.Equal(t, 1, r.TotalAdded)
	assert.Equal(t, 1, r.TotalRemoved)
	assert.Equal(t, 1, r.TotalModified)

	out := r.FormatHuman()
	assert.Contains(t, out, "  + new.txt")
	assert.Contains(t, out, "  - gone.txt")
	assert.Contains(t, out, "  ~ mod.txt (3 -> 5 bytes)")
}

func TestSummarize_NoChanges(t *testing.T) {
	r := Summarize(Changes(model.EmptySnapshot(), model.EmptySnapshot(), NoFilters))
	assert.True(t, r.Empty())
	assert.Equal(t, "No changes.\n", r.FormatHuman())
}

func TestChange_Describe(t *testing.T) {
	assert.Equal(t, "a.txt has been added", Change{Path: "a.txt", Type: ChangeAdded}.Describe())
	assert.Equal(t, "a.txt has been removed", Change{Path: "a.txt", Type: ChangeRemoved}.Describe())
	assert.Equal(t, "a.txt has changed", Change{Path: "a.txt", Type: ChangeModified}.Describe())
}
