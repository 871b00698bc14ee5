package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/stretchr/testify/require"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/logging"
	"github.com/teamvault/escrow/internal/server/events"
	"github.com/teamvault/escrow/internal/server/openpgp"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/repositories/keypasswords"
	"github.com/teamvault/escrow/internal/server/repositories/orgkeys"
	"github.com/teamvault/escrow/internal/server/repositories/policies"
	"github.com/teamvault/escrow/internal/server/repositories/privatekeys"
	"github.com/teamvault/escrow/internal/server/repositories/requests"
	"github.com/teamvault/escrow/internal/server/repositories/usersettings"
)

// newServiceDB returns a stub *sql.DB whose only job is to hand out
// transactions for dbx.WithTx; the fakes below ignore the handle entirely.
func newServiceDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

type fakePolicies struct {
	current  *models.OrganizationPolicy
	inserted []*models.OrganizationPolicy
}

func (f *fakePolicies) GetCurrent(ctx context.Context) (*models.OrganizationPolicy, error) {
	if f.current == nil {
		return nil, common.ErrNotConfigured
	}
	c := *f.current
	return &c, nil
}

func (f *fakePolicies) Insert(ctx context.Context, policy *models.OrganizationPolicy) error {
	f.inserted = append(f.inserted, policy)
	f.current = policy
	return nil
}

type fakeOrgKeys struct {
	keys     map[string]*models.OrganizationPublicKey
	inserted []*models.OrganizationPublicKey
	revoked  []*models.OrganizationPublicKey
}

func newFakeOrgKeys() *fakeOrgKeys {
	return &fakeOrgKeys{keys: map[string]*models.OrganizationPublicKey{}}
}

func (f *fakeOrgKeys) Insert(ctx context.Context, key *models.OrganizationPublicKey) error {
	f.keys[key.ID] = key
	f.inserted = append(f.inserted, key)
	return nil
}

func (f *fakeOrgKeys) GetByID(ctx context.Context, id string) (*models.OrganizationPublicKey, error) {
	key, ok := f.keys[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return key, nil
}

func (f *fakeOrgKeys) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*models.OrganizationPublicKey, error) {
	for _, key := range f.keys {
		if key.Fingerprint == fingerprint && key.Deleted == nil {
			return key, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeOrgKeys) Revoke(ctx context.Context, key *models.OrganizationPublicKey) error {
	if _, ok := f.keys[key.ID]; !ok {
		return common.ErrorNotFound
	}
	f.keys[key.ID] = key
	f.revoked = append(f.revoked, key)
	return nil
}

type fakePrivateKeys struct {
	byID   map[string]*models.PrivateKey
	byUser map[string]*models.PrivateKey
}

func newFakePrivateKeys() *fakePrivateKeys {
	return &fakePrivateKeys{byID: map[string]*models.PrivateKey{}, byUser: map[string]*models.PrivateKey{}}
}

func (f *fakePrivateKeys) Create(ctx context.Context, key *models.PrivateKey) error {
	f.byID[key.ID] = key
	f.byUser[key.UserID] = key
	return nil
}

func (f *fakePrivateKeys) GetByUserID(ctx context.Context, userID string) (*models.PrivateKey, error) {
	key, ok := f.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return key, nil
}

func (f *fakePrivateKeys) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := f.byID[id]
	return ok, nil
}

type fakeKeyPasswords struct {
	rows    []*models.PrivateKeyPassword
	deleted [][2]string
}

func (f *fakeKeyPasswords) CreateMany(ctx context.Context, passwords []*models.PrivateKeyPassword) error {
	f.rows = append(f.rows, passwords...)
	return nil
}

func (f *fakeKeyPasswords) ListByRecipientFingerprint(ctx context.Context, fingerprint string) ([]*models.PrivateKeyPassword, error) {
	var out []*models.PrivateKeyPassword
	for _, row := range f.rows {
		if row.RecipientFingerprint == fingerprint {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeKeyPasswords) DeleteByPrivateKeyAndRecipient(ctx context.Context, privateKeyID, fingerprint string) error {
	f.deleted = append(f.deleted, [2]string{privateKeyID, fingerprint})
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.PrivateKeyID == privateKeyID && row.RecipientFingerprint == fingerprint {
			continue
		}
		kept = append(kept, row)
	}
	f.rows = kept
	return nil
}

type fakeUserSettings struct {
	byUser map[string]*models.UserSetting
}

func newFakeUserSettings() *fakeUserSettings {
	return &fakeUserSettings{byUser: map[string]*models.UserSetting{}}
}

func (f *fakeUserSettings) Upsert(ctx context.Context, setting *models.UserSetting) error {
	f.byUser[setting.UserID] = setting
	return nil
}

func (f *fakeUserSettings) GetByUserID(ctx context.Context, userID string) (*models.UserSetting, error) {
	setting, ok := f.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return setting, nil
}

type fakeRequests struct {
	byID map[string]*models.RecoveryRequest
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{byID: map[string]*models.RecoveryRequest{}}
}

func (f *fakeRequests) Create(ctx context.Context, request *models.RecoveryRequest) error {
	f.byID[request.ID] = request
	return nil
}

func (f *fakeRequests) GetByID(ctx context.Context, id string) (*models.RecoveryRequest, error) {
	request, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *request
	return &c, nil
}

func (f *fakeRequests) UpdateStatus(ctx context.Context, id, status, modifiedBy string) error {
	request, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	request.Status = status
	request.ModifiedBy = modifiedBy
	return nil
}

// fakeRepos hands out the in-memory fakes regardless of the handle, so the
// transactional and non-transactional paths see the same state.
type fakeRepos struct {
	policies     *fakePolicies
	orgKeys      *fakeOrgKeys
	privateKeys  *fakePrivateKeys
	keyPasswords *fakeKeyPasswords
	userSettings *fakeUserSettings
	requests     *fakeRequests
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		policies:     &fakePolicies{},
		orgKeys:      newFakeOrgKeys(),
		privateKeys:  newFakePrivateKeys(),
		keyPasswords: &fakeKeyPasswords{},
		userSettings: newFakeUserSettings(),
		requests:     newFakeRequests(),
	}
}

func (f *fakeRepos) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (f *fakeRepos) Policies(db dbx.DBTX) policies.Repository          { return f.policies }
func (f *fakeRepos) OrgKeys(db dbx.DBTX) orgkeys.Repository            { return f.orgKeys }
func (f *fakeRepos) PrivateKeys(db dbx.DBTX) privatekeys.Repository    { return f.privateKeys }
func (f *fakeRepos) KeyPasswords(db dbx.DBTX) keypasswords.Repository  { return f.keyPasswords }
func (f *fakeRepos) UserSettings(db dbx.DBTX) usersettings.Repository  { return f.userSettings }
func (f *fakeRepos) Requests(db dbx.DBTX) requests.Repository          { return f.requests }

type fakeSink struct {
	published []events.Event
}

func (f *fakeSink) Publish(ctx context.Context, event events.Event) {
	f.published = append(f.published, event)
}

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, args ...any) {}
func (l nopLogger) With(args ...any) logging.Logger                  { return l }

// generateTestKey produces a fresh armored public key and its normalized
// fingerprint.
func generateTestKey(t *testing.T) (string, string) {
	t.Helper()
	pgp := crypto.PGP()
	key, err := pgp.KeyGeneration().
		AddUserId("ada", "ada@example.test").
		New().
		GenerateKey()
	require.NoError(t, err)

	public, err := key.ToPublic()
	require.NoError(t, err)
	armored, err := public.Armor()
	require.NoError(t, err)

	return armored, openpgp.NormalizeFingerprint(key.GetFingerprint())
}

// encryptTestMessage produces an armored OpenPGP message addressed to the
// given armored public key.
func encryptTestMessage(t *testing.T, armoredKey string) string {
	t.Helper()
	key, err := crypto.NewKeyFromArmored(armoredKey)
	require.NoError(t, err)

	pgp := crypto.PGP()
	enc, err := pgp.Encryption().Recipient(key).New()
	require.NoError(t, err)
	msg, err := enc.Encrypt([]byte("s3cret"))
	require.NoError(t, err)
	armored, err := msg.Armor()
	require.NoError(t, err)
	return armored
}

func testActor() *models.Actor {
	return &models.Actor{ID: "5f0917ea-0d29-4c8e-a9ea-926b2c60b0f7", Username: "ada@example.test", IsAdmin: true}
}
