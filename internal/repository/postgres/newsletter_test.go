package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/dispatch"
)

func newsletterRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "title", "subject", "html_content",
		"status", "from_name", "from_email", "reply_to",
		"scheduled_at", "sent_at", "sent_to", "created_at", "updated_at",
	})
}

func TestNewsletterGet(t *testing.T) {
	db, mock := setupDB(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM newsletters").
		WithArgs("nl-1", "acct-1").
		WillReturnRows(newsletterRows().
			AddRow("nl-1", "acct-1", "Weekly", "Subject", "<p>hi</p>",
				"draft", "", "", "", nil, nil, 0, now, now))

	repo := NewNewsletterRepo(db)
	n, err := repo.Get(context.Background(), "acct-1", "nl-1")
	require.NoError(t, err)

	assert.Equal(t, "Weekly", n.Title)
	assert.Equal(t, domain.NewsletterDraft, n.Status)
	assert.Nil(t, n.SentAt)
}

func TestNewsletterGetNotFound(t *testing.T) {
	db, mock := setupDB(t)

	mock.ExpectQuery("SELECT (.+) FROM newsletters").
		WithArgs("nl-404", "acct-1").
		WillReturnRows(newsletterRows())

	repo := NewNewsletterRepo(db)
	_, err := repo.Get(context.Background(), "acct-1", "nl-404")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestNewsletterMarkSent(t *testing.T) {
	db, mock := setupDB(t)
	at := time.Now()

	mock.ExpectExec("UPDATE newsletters").
		WithArgs("nl-1", "acct-1", at, 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewNewsletterRepo(db)
	assert.NoError(t, repo.MarkSent(context.Background(), "acct-1", "nl-1", 42, at))
}

func TestNewsletterMarkSentRaceLosesToSentGuard(t *testing.T) {
	db, mock := setupDB(t)
	at := time.Now()

	// The status guard means a second MarkSent matches zero rows.
	mock.ExpectExec("UPDATE newsletters").
		WithArgs("nl-1", "acct-1", at, 42).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewNewsletterRepo(db)
	err := repo.MarkSent(context.Background(), "acct-1", "nl-1", 42, at)
	assert.ErrorIs(t, err, dispatch.ErrAlreadySent)
}

func TestNewsletterDeleteDraftsWithTitle(t *testing.T) {
	db, mock := setupDB(t)

	mock.ExpectExec("DELETE FROM newsletters").
		WithArgs("acct-1", "Weekly", "nl-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewNewsletterRepo(db)
	n, err := repo.DeleteDraftsWithTitle(context.Background(), "acct-1", "Weekly", "nl-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewsletterDueScheduled(t *testing.T) {
	db, mock := setupDB(t)
	now := time.Now()
	sched := now.Add(-time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM newsletters").
		WithArgs(now, 50).
		WillReturnRows(newsletterRows().
			AddRow("nl-1", "acct-1", "Weekly", "Subject", "",
				"scheduled", "", "", "", sched, nil, 0, now, now))

	repo := NewNewsletterRepo(db)
	due, err := repo.DueScheduled(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.NewsletterScheduled, due[0].Status)
}
