package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
)

func TestCredentialFound(t *testing.T) {
	db, mock := setupDB(t)

	mock.ExpectQuery("SELECT (.+) FROM external_list_credentials").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "list_id", "api_key_encrypted", "enabled"}).
			AddRow("acct-1", "list-9", "c2VhbGVk", true))

	repo := NewCredentialRepo(db)
	cred, err := repo.Credential(context.Background(), "acct-1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "list-9", cred.ListID)
	assert.True(t, cred.Enabled)
}

func TestCredentialMissingIsNotAnError(t *testing.T) {
	db, mock := setupDB(t)

	mock.ExpectQuery("SELECT (.+) FROM external_list_credentials").
		WithArgs("acct-2").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

	repo := NewCredentialRepo(db)
	cred, err := repo.Credential(context.Background(), "acct-2")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialSave(t *testing.T) {
	db, mock := setupDB(t)

	mock.ExpectExec("INSERT INTO external_list_credentials").
		WithArgs("acct-1", "list-9", "c2VhbGVk", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCredentialRepo(db)
	err := repo.Save(context.Background(), domain.ExternalListCredential{
		AccountID: "acct-1", ListID: "list-9", APIKeyEncrypted: "c2VhbGVk", Enabled: true,
	})
	assert.NoError(t, err)
}
