package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/secrelo/secrelo-server/internal/db/models"
)

var auditCols = []string{"id", "user_id", "repo_id", "action", "resource_type", "resource_id", "metadata", "ip_address", "created_at"}

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(sqlx.NewDb(db, "postgres")), mock
}

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-1", "user-1", "repo-1", "secret.create", "secret", "secret-1",
			[]byte(`{"name":"db-password"}`), "10.0.0.1", time.Now())
}

// ---------------------------------------------------------------------------
// CreateAuditLog
// ---------------------------------------------------------------------------

func TestCreateAuditLog(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "user-1", "repo-1", "secret.create", "secret", "secret-1",
			sqlmock.AnyArg(), "10.0.0.1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		UserID:       strPtr("user-1"),
		RepoID:       strPtr("repo-1"),
		Action:       "secret.create",
		ResourceType: strPtr("secret"),
		ResourceID:   strPtr("secret-1"),
		Metadata:     map[string]interface{}{"name": "db-password"},
		IPAddress:    strPtr("10.0.0.1"),
	}

	if err := repo.CreateAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateAuditLog failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected a generated log ID")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAuditLog_NilMetadata(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{UserID: strPtr("user-1"), Action: "user.login", ResourceType: strPtr("user")}
	if err := repo.CreateAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateAuditLog failed: %v", err)
	}
}

func TestCreateAuditLog_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errDB)

	entry := &models.AuditLog{UserID: strPtr("user-1"), Action: "user.login", ResourceType: strPtr("user")}
	if err := repo.CreateAuditLog(context.Background(), entry); err == nil {
		t.Fatal("expected error from db failure")
	}
}

// ---------------------------------------------------------------------------
// ListAuditLogs
// ---------------------------------------------------------------------------

func TestListAuditLogs_NoFilters(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs.*ORDER BY created_at DESC").
		WithArgs(50, 0).
		WillReturnRows(sampleAuditRow())

	logs, total, err := repo.ListAuditLogs(context.Background(), AuditFilters{}, 50, 0)
	if err != nil {
		t.Fatalf("ListAuditLogs failed: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].Action != "secret.create" {
		t.Errorf("action = %q, want secret.create", logs[0].Action)
	}
	if logs[0].Metadata["name"] != "db-password" {
		t.Errorf("metadata name = %v, want db-password", logs[0].Metadata["name"])
	}
}

func TestListAuditLogs_WithFilters(t *testing.T) {
	repo, mock := newAuditRepo(t)

	userID := "user-1"
	action := "secret.create"

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs.*AND user_id.*AND action").
		WithArgs(userID, action).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs.*AND user_id.*AND action.*ORDER BY created_at DESC").
		WithArgs(userID, action, 20, 0).
		WillReturnRows(sampleAuditRow())

	filters := AuditFilters{UserID: &userID, Action: &action}
	logs, total, err := repo.ListAuditLogs(context.Background(), filters, 20, 0)
	if err != nil {
		t.Fatalf("ListAuditLogs failed: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Errorf("total = %d, len = %d, want 1 / 1", total, len(logs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetAuditLog
// ---------------------------------------------------------------------------

func TestGetAuditLog_Found(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery("SELECT.*FROM audit_logs.*WHERE id").
		WithArgs("log-1").
		WillReturnRows(sampleAuditRow())

	entry, err := repo.GetAuditLog(context.Background(), "log-1")
	if err != nil {
		t.Fatalf("GetAuditLog failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a log entry, got nil")
	}
	if entry.ResourceID == nil || *entry.ResourceID != "secret-1" {
		t.Errorf("resource ID = %v, want secret-1", entry.ResourceID)
	}
}

func TestGetAuditLog_NotFound(t *testing.T) {
	repo, mock := newAuditRepo(t)

	mock.ExpectQuery("SELECT.*FROM audit_logs.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(auditCols))

	entry, err := repo.GetAuditLog(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAuditLog failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil for missing log, got %+v", entry)
	}
}
