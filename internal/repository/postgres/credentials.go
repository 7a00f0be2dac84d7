package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/mailflow/internal/domain"
)

// CredentialRepo loads accounts' external list platform credentials.
type CredentialRepo struct{ db *sql.DB }

// NewCredentialRepo creates a Postgres-backed credential repository.
func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Credential returns the account's platform credential, or nil if the
// account never connected one. A missing row is not an error: sync is
// simply disabled for that account.
func (r *CredentialRepo) Credential(ctx context.Context, accountID string) (*domain.ExternalListCredential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT account_id, list_id, api_key_encrypted, enabled
		FROM external_list_credentials
		WHERE account_id = $1
	`, accountID)

	cred := &domain.ExternalListCredential{}
	err := row.Scan(&cred.AccountID, &cred.ListID, &cred.APIKeyEncrypted, &cred.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load list credential: %w", err)
	}
	return cred, nil
}

// Save upserts the account's credential. The API key arrives already
// encrypted; this layer never sees plaintext keys.
func (r *CredentialRepo) Save(ctx context.Context, cred domain.ExternalListCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_list_credentials (account_id, list_id, api_key_encrypted, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			list_id = EXCLUDED.list_id,
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			enabled = EXCLUDED.enabled
	`, cred.AccountID, cred.ListID, cred.APIKeyEncrypted, cred.Enabled)
	if err != nil {
		return fmt.Errorf("save list credential: %w", err)
	}
	return nil
}
