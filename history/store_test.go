package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Name    string
	Payload any
}

type fakePublisher struct {
	published []recordedEvent
}

func (f *fakePublisher) Publish(name string, payload any) {
	f.published = append(f.published, recordedEvent{Name: name, Payload: payload})
}

func newTestStore(t *testing.T) (*Store, *fakePublisher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	pub := &fakePublisher{}
	return NewStore(path, pub), pub, path
}

func TestAppendThenList(t *testing.T) {
	store, pub, _ := newTestStore(t)

	item := NewItem("hello world", 1.5)
	require.NoError(t, store.Append(item))

	page := store.List(1, 0)
	require.Len(t, page.Items, 1)
	assert.Equal(t, item, page.Items[0])
	assert.Equal(t, 1, page.Total)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "history_added", pub.published[0].Name)
}

func TestListNewestFirstWithPagination(t *testing.T) {
	store, _, _ := newTestStore(t)
	var ids []string
	for i := 0; i < 5; i++ {
		item := NewItem("text", float64(i))
		ids = append(ids, item.ID)
		require.NoError(t, store.Append(item))
	}

	page := store.List(2, 0)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)

	page = store.List(2, 2)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)

	// Offset past the end yields an empty page.
	page = store.List(10, 50)
	assert.Empty(t, page.Items)
}

func TestListClampsLimitAndOffset(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Append(NewItem("a", 1)))

	page := store.List(0, -3)
	assert.Equal(t, 1, page.Limit)
	assert.Equal(t, 0, page.Offset)

	page = store.List(500, 0)
	assert.Equal(t, 50, page.Limit)
}

func TestDelete(t *testing.T) {
	store, pub, _ := newTestStore(t)
	keep := NewItem("keep", 1)
	drop := NewItem("drop", 2)
	require.NoError(t, store.Append(keep))
	require.NoError(t, store.Append(drop))

	deleted, err := store.Delete(drop.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, item := range store.ListAll() {
		assert.NotEqual(t, drop.ID, item.ID)
	}

	// Unknown id is a no-op.
	deleted, err = store.Delete("no-such-id")
	require.NoError(t, err)
	assert.False(t, deleted)

	var names []string
	for _, ev := range pub.published {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"history_added", "history_added", "history_deleted"}, names)
}

func TestPersistenceRoundTrip(t *testing.T) {
	store, _, path := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		item := NewItem("text", float64(i))
		ids = append(ids, item.ID)
		require.NoError(t, store.Append(item))
	}

	// A fresh store over the same file sees the same sequence.
	reopened := NewStore(path, nil)
	all := reopened.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)
}

func TestMissingAndMalformedFileReadAsEmpty(t *testing.T) {
	store, _, path := newTestStore(t)
	assert.Empty(t, store.ListAll())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	assert.Empty(t, store.ListAll())

	// Appending over a corrupt file starts a fresh sequence instead of
	// failing.
	require.NoError(t, store.Append(NewItem("recovered", 1)))
	assert.Len(t, store.ListAll(), 1)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	store, _, path := newTestStore(t)
	require.NoError(t, store.Append(NewItem("a", 1)))
	require.NoError(t, store.Append(NewItem("b", 2)))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestNewItemShape(t *testing.T) {
	item := NewItem("hi", 2.5)
	assert.NotEmpty(t, item.ID)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, item.CreatedAt)
	assert.Equal(t, 2.5, item.Seconds)
	assert.Equal(t, "hi", item.Text)

	other := NewItem("hi", 2.5)
	assert.NotEqual(t, item.ID, other.ID)
}
