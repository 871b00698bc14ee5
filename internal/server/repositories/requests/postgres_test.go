package requests

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	request := &models.RecoveryRequest{
		ID: "r1", UserID: "u1", Status: models.RequestPending,
		Fingerprint: "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333", ArmoredKey: "armor",
		AuthenticationToken: "token", CreatedBy: "u1", ModifiedBy: "u1",
		Created: now, Modified: now,
	}
	mock.ExpectExec(`INSERT\s+INTO\s+recovery_requests`).
		WithArgs("r1", "u1", models.RequestPending, request.Fingerprint, "armor", "token", "u1", "u1", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), request); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "status", "fingerprint", "armored_key", "authentication_token", "created_by", "modified_by", "created", "modified"}).
		AddRow("r1", "u1", models.RequestApproved, "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333", "armor", "token", "u1", "admin", now, now)
	mock.ExpectQuery(`(?s)FROM\s+recovery_requests\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("r1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Status != models.RequestApproved || got.UserID != "u1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+recovery_requests`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestUpdateStatus_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+recovery_requests\s+SET\s+status\s*=\s*\$2,\s*modified_by\s*=\s*\$3`).
		WithArgs("r1", models.RequestApproved, "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "r1", models.RequestApproved, "admin"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+recovery_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.RequestRejected, "admin")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}
