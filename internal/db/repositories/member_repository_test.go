package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

var memberCols = []string{"id", "repo_id", "user_id", "member_role", "member_permissions", "status", "created_at", "updated_at"}

// memberRow builds a single repo_members result row. Shared by the member,
// invite, and secret tests, which all exercise the same gate reads.
func memberRow(id, repoID, userID, permission, status string) *sqlmock.Rows {
	return sqlmock.NewRows(memberCols).
		AddRow(id, repoID, userID, "Member", permission, status, time.Now(), time.Now())
}

func strPtr(s string) *string { return &s }

func newMemberRepo(t *testing.T) (*MemberRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMemberRepository(db), mock
}

// expectGateRead queues the acting user's in-transaction membership read.
func expectGateRead(mock sqlmock.Sqlmock, repoID, userID string, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT.*FROM repo_members.*WHERE repo_id.*AND user_id").
		WithArgs(repoID, userID).
		WillReturnRows(rows)
}

// expectTargetLock queues the locked read of the target member row.
func expectTargetLock(mock sqlmock.Sqlmock, repoID, memberID string, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT.*FROM repo_members.*WHERE repo_id.*AND id.*FOR UPDATE").
		WithArgs(repoID, memberID).
		WillReturnRows(rows)
}

// ---------------------------------------------------------------------------
// ApproveMember
// ---------------------------------------------------------------------------

func TestApproveMember_Success(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "new-user", "read", "pending"))
	mock.ExpectExec("UPDATE repo_members.*SET status").
		WithArgs(models.MemberStatusActive, sqlmock.AnyArg(), "m-target").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member, err := repo.ApproveMember(context.Background(), "repo-1", "admin-user", "m-target")
	if err != nil {
		t.Fatalf("ApproveMember failed: %v", err)
	}
	if member.Status != models.MemberStatusActive {
		t.Errorf("status = %q, want active", member.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApproveMember_NotPending(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "new-user", "read", "active"))
	mock.ExpectRollback()

	_, err := repo.ApproveMember(context.Background(), "repo-1", "admin-user", "m-target")
	if err == nil {
		t.Fatal("expected error for non-pending target")
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("error kind = %v, want conflict", domain.KindOf(err))
	}
}

func TestApproveMember_ActingNotAMember(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "stranger", sqlmock.NewRows(memberCols))
	mock.ExpectRollback()

	_, err := repo.ApproveMember(context.Background(), "repo-1", "stranger", "m-target")
	if err == nil {
		t.Fatal("expected error for non-member")
	}
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("error kind = %v, want authorization", domain.KindOf(err))
	}
}

func TestApproveMember_ActingReadOnly(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "reader", memberRow("m-reader", "repo-1", "reader", "read", "active"))
	mock.ExpectRollback()

	_, err := repo.ApproveMember(context.Background(), "repo-1", "reader", "m-target")
	if err == nil {
		t.Fatal("expected error for read-only acting user")
	}
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("error kind = %v, want authorization", domain.KindOf(err))
	}
}

func TestApproveMember_TargetNotFound(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-missing", sqlmock.NewRows(memberCols))
	mock.ExpectRollback()

	_, err := repo.ApproveMember(context.Background(), "repo-1", "admin-user", "m-missing")
	if err == nil {
		t.Fatal("expected error for missing target")
	}
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("error kind = %v, want not found", domain.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// DeclineMember
// ---------------------------------------------------------------------------

func TestDeclineMember_Success(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "owner-user", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "new-user", "read", "pending"))
	mock.ExpectExec("UPDATE repo_members.*SET status").
		WithArgs(models.MemberStatusRejected, sqlmock.AnyArg(), "m-target").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member, err := repo.DeclineMember(context.Background(), "repo-1", "owner-user", "m-target")
	if err != nil {
		t.Fatalf("DeclineMember failed: %v", err)
	}
	if member.Status != models.MemberStatusRejected {
		t.Errorf("status = %q, want rejected", member.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeclineMember_AlreadyRejected(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "owner-user", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "new-user", "read", "rejected"))
	mock.ExpectRollback()

	_, err := repo.DeclineMember(context.Background(), "repo-1", "owner-user", "m-target")
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("error kind = %v, want conflict", domain.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// UpdateMember
// ---------------------------------------------------------------------------

func TestUpdateMember_EmptyUpdate(t *testing.T) {
	repo, _ := newMemberRepo(t)

	_, err := repo.UpdateMember(context.Background(), "repo-1", "owner-user", "m-target", models.MemberUpdate{})
	if err == nil {
		t.Fatal("expected error for empty update")
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("error kind = %v, want validation", domain.KindOf(err))
	}
}

func TestUpdateMember_InvalidPermission(t *testing.T) {
	repo, _ := newMemberRepo(t)

	update := models.MemberUpdate{Permission: strPtr("superuser")}
	_, err := repo.UpdateMember(context.Background(), "repo-1", "owner-user", "m-target", update)
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("error kind = %v, want validation", domain.KindOf(err))
	}
}

func TestUpdateMember_Success(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "owner-user", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "other-user", "read", "active"))
	mock.ExpectExec("UPDATE repo_members.*SET member_permissions").
		WithArgs("admin", "Lead", sqlmock.AnyArg(), "m-target").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update := models.MemberUpdate{Permission: strPtr("admin"), Role: strPtr("Lead")}
	member, err := repo.UpdateMember(context.Background(), "repo-1", "owner-user", "m-target", update)
	if err != nil {
		t.Fatalf("UpdateMember failed: %v", err)
	}
	if member.MemberPermissions != "admin" {
		t.Errorf("permission = %q, want admin", member.MemberPermissions)
	}
	if member.MemberRole != "Lead" {
		t.Errorf("role = %q, want Lead", member.MemberRole)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateMember_TargetNotActive(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "owner-user", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "other-user", "read", "pending"))
	mock.ExpectRollback()

	update := models.MemberUpdate{Permission: strPtr("admin")}
	_, err := repo.UpdateMember(context.Background(), "repo-1", "owner-user", "m-target", update)
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("error kind = %v, want conflict", domain.KindOf(err))
	}
}

func TestUpdateMember_AdminCannotModifyOwner(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-owner", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	mock.ExpectRollback()

	update := models.MemberUpdate{Permission: strPtr("read")}
	_, err := repo.UpdateMember(context.Background(), "repo-1", "admin-user", "m-owner", update)
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("error kind = %v, want authorization", domain.KindOf(err))
	}
}

func TestUpdateMember_AdminCannotGrantOwner(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "other-user", "read", "active"))
	mock.ExpectRollback()

	update := models.MemberUpdate{Permission: strPtr("owner")}
	_, err := repo.UpdateMember(context.Background(), "repo-1", "admin-user", "m-target", update)
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("error kind = %v, want authorization", domain.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// RemoveMember
// ---------------------------------------------------------------------------

func TestRemoveMember_Success(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "owner-user", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	expectTargetLock(mock, "repo-1", "m-target", memberRow("m-target", "repo-1", "other-user", "admin", "active"))
	mock.ExpectExec("DELETE FROM repo_members").
		WithArgs("m-target").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member, err := repo.RemoveMember(context.Background(), "repo-1", "owner-user", "m-target")
	if err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if member.ID != "m-target" {
		t.Errorf("removed member ID = %q, want m-target", member.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRemoveMember_AdminCannotRemoveOwner(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	expectGateRead(mock, "repo-1", "admin-user", memberRow("m-admin", "repo-1", "admin-user", "admin", "active"))
	expectTargetLock(mock, "repo-1", "m-owner", memberRow("m-owner", "repo-1", "owner-user", "owner", "active"))
	mock.ExpectRollback()

	_, err := repo.RemoveMember(context.Background(), "repo-1", "admin-user", "m-owner")
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Errorf("error kind = %v, want authorization", domain.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// ListMembers / ListPendingMembers
// ---------------------------------------------------------------------------

var memberWithUserCols = []string{
	"id", "repo_id", "user_id", "member_role", "member_permissions", "status", "created_at", "updated_at",
	"full_name", "email",
}

func TestListMembers(t *testing.T) {
	repo, mock := newMemberRepo(t)

	rows := sqlmock.NewRows(memberWithUserCols).
		AddRow("m-1", "repo-1", "user-1", "Member", "owner", "active", time.Now(), time.Now(), "Ada Lovelace", "ada@example.com").
		AddRow("m-2", "repo-1", "user-2", "Member", "read", "pending", time.Now(), time.Now(), "Grace Hopper", "grace@example.com")

	mock.ExpectQuery("SELECT.*FROM repo_members rm.*INNER JOIN users").
		WithArgs("repo-1").
		WillReturnRows(rows)

	members, err := repo.ListMembers(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].UserFullName != "Ada Lovelace" {
		t.Errorf("first member name = %q, want Ada Lovelace", members[0].UserFullName)
	}
}

func TestListPendingMembers_FiltersByStatus(t *testing.T) {
	repo, mock := newMemberRepo(t)

	rows := sqlmock.NewRows(memberWithUserCols).
		AddRow("m-2", "repo-1", "user-2", "Member", "read", "pending", time.Now(), time.Now(), "Grace Hopper", "grace@example.com")

	mock.ExpectQuery("SELECT.*FROM repo_members rm.*INNER JOIN users.*AND rm.status").
		WithArgs("repo-1", models.MemberStatusPending).
		WillReturnRows(rows)

	members, err := repo.ListPendingMembers(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("ListPendingMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	if members[0].Status != models.MemberStatusPending {
		t.Errorf("status = %q, want pending", members[0].Status)
	}
}

func TestListMembers_DBError(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectQuery("SELECT.*FROM repo_members rm").
		WithArgs("repo-1").
		WillReturnError(errDB)

	if _, err := repo.ListMembers(context.Background(), "repo-1"); err == nil {
		t.Fatal("expected error from db failure")
	}
}
