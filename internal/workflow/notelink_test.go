package workflow

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteLinker_CreateAndLink(t *testing.T) {
	store := newFakeStore()
	linker := NewNoteLinker(store, store, zerolog.Nop())

	note, err := linker.Record(context.Background(), priced(5, 1, "150"), "  first session  ")
	require.NoError(t, err)
	assert.Equal(t, "first session", note.Content)
	require.Len(t, store.apptUpdates, 1)
	linked := store.apptUpdates[0].SessionNoteID
	require.True(t, linked.Set)
	require.NotNil(t, linked.Value)
	assert.Equal(t, note.ID, *linked.Value)
	assert.False(t, store.apptUpdates[0].Date.Set, "only the link is written")
}

func TestNoteLinker_EditInPlace(t *testing.T) {
	store := newFakeStore()
	existing, _ := store.CreateSessionNote(context.Background(), 1, "draft")
	appt := priced(5, 1, "150")
	appt.SessionNoteID = &existing.ID

	note, err := NewNoteLinker(store, store, zerolog.Nop()).Record(context.Background(), appt, "final")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, note.ID)
	assert.Equal(t, "final", store.notes[existing.ID].Content)
	assert.Empty(t, store.apptUpdates, "appointment is not re-written")
	assert.Len(t, store.notes, 1)
}

func TestNoteLinker_LinkFailureKeepsNote(t *testing.T) {
	store := newFakeStore()
	store.linkErr = errStoreDown
	linker := NewNoteLinker(store, store, zerolog.Nop())

	note, err := linker.Record(context.Background(), priced(5, 1, "150"), "notes")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoteLinkFailed)
	assert.ErrorIs(t, err, errStoreDown)
	require.NotNil(t, note, "the created note is returned")

	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, note.ID, linkErr.NoteID)
	assert.Equal(t, int64(5), linkErr.AppointmentID)

	assert.Contains(t, store.notes, note.ID, "note is neither deleted nor retried")
	assert.Empty(t, store.deleted)
	assert.Len(t, store.notes, 1)

	require.NoError(t, linkErr.Compensate(context.Background()))
	assert.Equal(t, []int64{note.ID}, store.deleted)
	assert.NotContains(t, store.notes, note.ID)
}

func TestNoteLinker_EmptyContent(t *testing.T) {
	store := newFakeStore()
	_, err := NewNoteLinker(store, store, zerolog.Nop()).Record(context.Background(), priced(5, 1, ""), "   ")
	assert.ErrorIs(t, err, ErrEmptyNote)
	assert.Empty(t, store.notes)
}
