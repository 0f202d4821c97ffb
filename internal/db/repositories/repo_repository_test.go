package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

var repoCols = []string{"id", "created_by", "updated_by", "name", "description", "type", "created_at", "updated_at"}

var repoCountCols = []string{"id", "created_by", "updated_by", "name", "description", "type", "created_at", "updated_at", "member_count"}

func sampleRepoRow() *sqlmock.Rows {
	return sqlmock.NewRows(repoCols).
		AddRow("repo-1", "user-1", "user-1", "team-secrets", "shared credentials", "team", time.Now(), time.Now())
}

func newRepoRepo(t *testing.T) (*RepoRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepoRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateRepoWithOwner
// ---------------------------------------------------------------------------

func TestCreateRepoWithOwner_Success(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repos").
		WithArgs(sqlmock.AnyArg(), "user-1", "user-1", "team-secrets", "shared credentials", "team", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO repo_members").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", "Owner", "owner", models.MemberStatusActive, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	input := &models.Repo{CreatedBy: "user-1", Name: "team-secrets", Description: "shared credentials", Type: "team"}
	created, err := repo.CreateRepoWithOwner(context.Background(), input, "Owner")
	if err != nil {
		t.Fatalf("CreateRepoWithOwner failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected a generated repo ID")
	}
	if created.MemberCount != 1 {
		t.Errorf("member count = %d, want 1", created.MemberCount)
	}
	if created.UpdatedBy != "user-1" {
		t.Errorf("updated_by = %q, want user-1", created.UpdatedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateRepoWithOwner_DuplicateName(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repos").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	input := &models.Repo{CreatedBy: "user-1", Name: "team-secrets"}
	_, err := repo.CreateRepoWithOwner(context.Background(), input, "Owner")
	if err == nil {
		t.Fatal("expected error for duplicate repo name")
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("error kind = %v, want conflict", domain.KindOf(err))
	}
}

func TestCreateRepoWithOwner_MemberInsertFails(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repos").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO repo_members").
		WillReturnError(errDB)
	mock.ExpectRollback()

	input := &models.Repo{CreatedBy: "user-1", Name: "team-secrets"}
	_, err := repo.CreateRepoWithOwner(context.Background(), input, "Owner")
	if err == nil {
		t.Fatal("expected error when owner membership insert fails")
	}
	if domain.KindOf(err) != domain.KindTransientStore {
		t.Errorf("error kind = %v, want transient store", domain.KindOf(err))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListUserRepos
// ---------------------------------------------------------------------------

func TestListUserRepos(t *testing.T) {
	repo, mock := newRepoRepo(t)

	rows := sqlmock.NewRows(repoCountCols).
		AddRow("repo-1", "user-1", "user-1", "team-secrets", "", "team", time.Now(), time.Now(), 3).
		AddRow("repo-2", "user-2", "user-2", "infra", "", "team", time.Now(), time.Now(), 5)

	mock.ExpectQuery("SELECT.*FROM repos r.*INNER JOIN repo_members").
		WithArgs("user-1").
		WillReturnRows(rows)

	repos, err := repo.ListUserRepos(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListUserRepos failed: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2", len(repos))
	}
	if repos[0].MemberCount != 3 {
		t.Errorf("first repo member count = %d, want 3", repos[0].MemberCount)
	}
}

func TestListUserRepos_Empty(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repos r").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(repoCountCols))

	repos, err := repo.ListUserRepos(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListUserRepos failed: %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("got %d repos, want 0", len(repos))
	}
}

// ---------------------------------------------------------------------------
// GetRepoByID / GetRepoWithMemberCount
// ---------------------------------------------------------------------------

func TestGetRepoByID_Found(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repos.*WHERE id").
		WithArgs("repo-1").
		WillReturnRows(sampleRepoRow())

	result, err := repo.GetRepoByID(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("GetRepoByID failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a repo, got nil")
	}
	if result.Name != "team-secrets" {
		t.Errorf("name = %q, want team-secrets", result.Name)
	}
}

func TestGetRepoByID_NotFound(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repos.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(repoCols))

	result, err := repo.GetRepoByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRepoByID failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil for missing repo, got %+v", result)
	}
}

func TestGetRepoWithMemberCount_Found(t *testing.T) {
	repo, mock := newRepoRepo(t)

	rows := sqlmock.NewRows(repoCountCols).
		AddRow("repo-1", "user-1", "user-1", "team-secrets", "", "team", time.Now(), time.Now(), 4)

	mock.ExpectQuery("SELECT.*member_count.*FROM repos r.*WHERE r.id").
		WithArgs("repo-1").
		WillReturnRows(rows)

	result, err := repo.GetRepoWithMemberCount(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("GetRepoWithMemberCount failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a repo, got nil")
	}
	if result.MemberCount != 4 {
		t.Errorf("member count = %d, want 4", result.MemberCount)
	}
}

// ---------------------------------------------------------------------------
// GetRepoDetails
// ---------------------------------------------------------------------------

func TestGetRepoDetails_Found(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repos.*WHERE id").
		WithArgs("repo-1").
		WillReturnRows(sampleRepoRow())

	memberRows := sqlmock.NewRows(memberWithUserCols).
		AddRow("m-1", "repo-1", "user-1", "Owner", "owner", "active", time.Now(), time.Now(), "Ada Lovelace", "ada@example.com")
	mock.ExpectQuery("SELECT.*FROM repo_members rm.*INNER JOIN users").
		WithArgs("repo-1").
		WillReturnRows(memberRows)

	details, err := repo.GetRepoDetails(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("GetRepoDetails failed: %v", err)
	}
	if details == nil {
		t.Fatal("expected details, got nil")
	}
	if len(details.Members) != 1 {
		t.Fatalf("got %d members, want 1", len(details.Members))
	}
	if details.Members[0].UserEmail != "ada@example.com" {
		t.Errorf("member email = %q, want ada@example.com", details.Members[0].UserEmail)
	}
}

func TestGetRepoDetails_RepoMissing(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repos.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(repoCols))

	details, err := repo.GetRepoDetails(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRepoDetails failed: %v", err)
	}
	if details != nil {
		t.Errorf("expected nil for missing repo, got %+v", details)
	}
}

// ---------------------------------------------------------------------------
// GetMembership
// ---------------------------------------------------------------------------

func TestGetMembership_Found(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repo_members.*WHERE repo_id.*AND user_id").
		WithArgs("repo-1", "user-1").
		WillReturnRows(memberRow("m-1", "repo-1", "user-1", "owner", "active"))

	member, err := repo.GetMembership(context.Background(), "repo-1", "user-1")
	if err != nil {
		t.Fatalf("GetMembership failed: %v", err)
	}
	if member == nil {
		t.Fatal("expected a membership, got nil")
	}
	if member.MemberPermissions != "owner" {
		t.Errorf("permission = %q, want owner", member.MemberPermissions)
	}
}

func TestGetMembership_NotFound(t *testing.T) {
	repo, mock := newRepoRepo(t)

	mock.ExpectQuery("SELECT.*FROM repo_members.*WHERE repo_id.*AND user_id").
		WithArgs("repo-1", "stranger").
		WillReturnRows(sqlmock.NewRows(memberCols))

	member, err := repo.GetMembership(context.Background(), "repo-1", "stranger")
	if err != nil {
		t.Fatalf("GetMembership failed: %v", err)
	}
	if member != nil {
		t.Errorf("expected nil for non-member, got %+v", member)
	}
}
