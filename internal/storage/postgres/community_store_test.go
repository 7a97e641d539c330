package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/distrowiki/catalogd/internal/catalog"
)

func newMockStore(t *testing.T) (*CommunityStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCommunityStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestInsertVote(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	vote := catalog.Vote{
		ID:        "vote-1",
		UserID:    "user-1",
		DistroID:  "debian",
		Score:     5,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO votes").
		WithArgs(vote.ID, vote.UserID, vote.DistroID, vote.Score, "pending", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertVote(context.Background(), vote))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVoteValidation(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	ctx := context.Background()

	err := store.InsertVote(ctx, catalog.Vote{DistroID: "debian", Score: 3})
	require.ErrorContains(t, err, "vote id")

	err = store.InsertVote(ctx, catalog.Vote{ID: "v", Score: 3})
	require.ErrorContains(t, err, "distro id")

	err = store.InsertVote(ctx, catalog.Vote{ID: "v", DistroID: "debian", Score: 6})
	require.ErrorContains(t, err, "score")
}

func TestListVotes(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "distro_id", "score", "status", "created_at"}).
		AddRow("vote-2", "user-2", "debian", 4, "approved", now).
		AddRow("vote-1", "user-1", "debian", 5, "pending", now.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, user_id, distro_id, score, status, created_at").
		WithArgs("debian").
		WillReturnRows(rows)

	votes, err := store.ListVotes(context.Background(), "debian")
	require.NoError(t, err)
	require.Len(t, votes, 2)
	require.Equal(t, catalog.StatusApproved, votes[0].Status)
	require.Equal(t, 5, votes[1].Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEdit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	edit := catalog.Edit{
		ID:        "edit-1",
		UserID:    "user-1",
		DistroID:  "debian",
		Field:     "homepage",
		Value:     "https://www.debian.org/",
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO edits").
		WithArgs(edit.ID, edit.UserID, edit.DistroID, edit.Field, edit.Value, "pending", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertEdit(context.Background(), edit))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEditsByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "distro_id", "field", "value", "status", "created_at"}).
		AddRow("edit-1", "user-1", "debian", "homepage", "https://www.debian.org/", "pending", now)

	mock.ExpectQuery("SELECT id, user_id, distro_id, field, value, status, created_at").
		WithArgs("pending").
		WillReturnRows(rows)

	edits, err := store.ListEdits(context.Background(), catalog.StatusPending)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	require.Equal(t, "homepage", edits[0].Field)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEditStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE edits SET status").
		WithArgs("approved", "edit-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetEditStatus(context.Background(), "edit-1", catalog.StatusApproved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetVoteStatusMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE votes SET status").
		WithArgs("rejected", "vote-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetVoteStatus(context.Background(), "vote-404", catalog.StatusRejected)
	require.ErrorContains(t, err, "no votes row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusValidation(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.SetVoteStatus(context.Background(), "vote-1", "bogus")
	require.ErrorContains(t, err, "invalid status")
}
