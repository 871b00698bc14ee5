package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/validation"
)

func newEscrowService(t *testing.T) (*EscrowService, *fakeRepos, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newServiceDB(t)
	repos := newFakeRepos()
	policy := NewPolicyService(db, repos, &fakeSink{}, nil, nopLogger{})
	return NewEscrowService(db, repos, policy), repos, mock
}

func TestEscrowService_Deposit(t *testing.T) {
	svc, repos, mock := newEscrowService(t)
	repos.policies.current = &models.OrganizationPolicy{Policy: models.PolicyOptIn}
	armored, fingerprint := generateTestKey(t)
	actor := testActor()
	expectTx(mock)

	key, err := svc.Deposit(context.Background(), actor, &DepositEscrowRequest{
		Data: "encrypted escrow blob",
		PrivateKeyPasswords: []PasswordPayload{
			{
				RecipientFingerprint:  fingerprint,
				RecipientForeignModel: models.ForeignModelOrganizationKey,
				Data:                  encryptTestMessage(t, armored),
			},
		},
	})
	require.NoError(t, err)

	require.Equal(t, actor.ID, key.UserID)
	require.Len(t, repos.keyPasswords.rows, 1)
	require.Equal(t, key.ID, repos.keyPasswords.rows[0].PrivateKeyID, "password bound to the fresh private key")
}

func TestEscrowService_Deposit_RejectedWhenDisabled(t *testing.T) {
	svc, _, _ := newEscrowService(t)

	_, err := svc.Deposit(context.Background(), testActor(), &DepositEscrowRequest{Data: "blob"})
	require.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestEscrowService_Deposit_OnePerUser(t *testing.T) {
	svc, repos, mock := newEscrowService(t)
	repos.policies.current = &models.OrganizationPolicy{Policy: models.PolicyOptIn}
	armored, fingerprint := generateTestKey(t)
	actor := testActor()
	expectTx(mock)

	deposit := &DepositEscrowRequest{
		Data: "encrypted escrow blob",
		PrivateKeyPasswords: []PasswordPayload{
			{
				RecipientFingerprint:  fingerprint,
				RecipientForeignModel: models.ForeignModelOrganizationKey,
				Data:                  encryptTestMessage(t, armored),
			},
		},
	}
	_, err := svc.Deposit(context.Background(), actor, deposit)
	require.NoError(t, err)

	_, err = svc.Deposit(context.Background(), actor, deposit)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	rules := verr.Details["user_id"].(map[string]string)
	require.Contains(t, rules, "_isUnique")
}

func TestEscrowService_RotatePasswords(t *testing.T) {
	svc, repos, mock := newEscrowService(t)
	_, oldFingerprint := generateTestKey(t)
	newArmored, newFingerprint := generateTestKey(t)
	actor := testActor()
	expectTx(mock)

	pk := &models.PrivateKey{ID: "66666666-6666-6666-6666-666666666666", UserID: "user-1"}
	require.NoError(t, repos.privateKeys.Create(context.Background(), pk))
	repos.keyPasswords.rows = []*models.PrivateKeyPassword{
		{ID: "old", PrivateKeyID: pk.ID, RecipientFingerprint: oldFingerprint},
	}

	err := svc.RotatePasswords(context.Background(), actor, oldFingerprint, []PasswordPayload{
		{
			RecipientFingerprint:  newFingerprint,
			RecipientForeignModel: models.ForeignModelOrganizationKey,
			Data:                  encryptTestMessage(t, newArmored),
			PrivateKeyID:          pk.ID,
		},
	})
	require.NoError(t, err)

	require.Len(t, repos.keyPasswords.rows, 1)
	require.Equal(t, newFingerprint, repos.keyPasswords.rows[0].RecipientFingerprint)
}

func TestEscrowService_RotatePasswords_UnknownPrivateKey(t *testing.T) {
	svc, repos, _ := newEscrowService(t)
	armored, fingerprint := generateTestKey(t)

	err := svc.RotatePasswords(context.Background(), testActor(), fingerprint, []PasswordPayload{
		{
			RecipientFingerprint:  fingerprint,
			RecipientForeignModel: models.ForeignModelOrganizationKey,
			Data:                  encryptTestMessage(t, armored),
			PrivateKeyID:          "77777777-7777-7777-7777-777777777777",
		},
	})

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	records := verr.Details["account_recovery_private_key_passwords"].(map[int]validation.Details)
	rules := records[0]["private_key_id"].(map[string]string)
	require.Contains(t, rules, "_exists")
	require.Empty(t, repos.keyPasswords.rows)
}

func TestEscrowService_RotatePasswords_RequiresAdmin(t *testing.T) {
	svc, _, _ := newEscrowService(t)

	err := svc.RotatePasswords(context.Background(), &models.Actor{ID: "user-1"}, "", nil)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}
