package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) User {
	t.Helper()
	user := User{Email: email, Name: "tester", Plan: PlanFree}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func countPrimary(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Resume{}).Where("user_id = ? AND is_primary = ?", userID, true).Count(&n).Error; err != nil {
		t.Fatalf("count primary: %v", err)
	}
	return n
}

func TestCreateResumeDemotesPreviousPrimary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "a@example.com")

	first := Resume{UserID: user.ID, Title: "one", Format: FormatText, IsPrimary: true}
	if err := CreateResume(ctx, db, &first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := Resume{UserID: user.ID, Title: "two", Format: FormatLatex, IsPrimary: true}
	if err := CreateResume(ctx, db, &second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	if got := countPrimary(t, db, user.ID); got != 1 {
		t.Fatalf("primary count = %d, want 1", got)
	}
	primary, err := FindPrimaryResume(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("find primary: %v", err)
	}
	if primary.ID != second.ID {
		t.Fatalf("primary = %d, want %d", primary.ID, second.ID)
	}
}

func TestCreateUploadedResumeBecomesPrimaryOnlyWhenNoneExists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "b@example.com")

	first := Resume{UserID: user.ID, Title: "upload-1", Format: FormatText}
	if err := CreateUploadedResume(ctx, db, &first); err != nil {
		t.Fatalf("upload first: %v", err)
	}
	if !first.IsPrimary {
		t.Fatalf("first upload should become primary")
	}

	second := Resume{UserID: user.ID, Title: "upload-2", Format: FormatText}
	if err := CreateUploadedResume(ctx, db, &second); err != nil {
		t.Fatalf("upload second: %v", err)
	}
	if second.IsPrimary {
		t.Fatalf("second upload should not steal primary")
	}
}

func TestUpdateResumeLeavesPrimaryUntouchedWhenOmitted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "c@example.com")

	resume := Resume{UserID: user.ID, Title: "cv", Content: "old", Format: FormatText, IsPrimary: true}
	if err := CreateResume(ctx, db, &resume); err != nil {
		t.Fatalf("create: %v", err)
	}

	content := "new"
	updated, err := UpdateResume(ctx, db, user.ID, resume.ID, ResumeUpdate{Content: &content})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "new" {
		t.Fatalf("content = %q", updated.Content)
	}
	if !updated.IsPrimary {
		t.Fatalf("primary flag should be unchanged")
	}
}

func TestUpdateResumeRejectsOtherUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")

	resume := Resume{UserID: owner.ID, Title: "cv", Format: FormatText}
	if err := CreateResume(ctx, db, &resume); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := SetPrimaryResume(ctx, db, other.ID, resume.ID)
	if !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected ErrResumeNotFound, got %v", err)
	}
	if _, err := DeleteResume(ctx, db, other.ID, resume.ID); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected ErrResumeNotFound on delete, got %v", err)
	}
}

func TestListResumesPutsPrimaryFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "d@example.com")

	var ids []uint
	for _, title := range []string{"a", "b", "c"} {
		r := Resume{UserID: user.ID, Title: title, Format: FormatText}
		if err := CreateResume(ctx, db, &r); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids = append(ids, r.ID)
	}
	if _, err := SetPrimaryResume(ctx, db, user.ID, ids[0]); err != nil {
		t.Fatalf("set primary: %v", err)
	}

	list, err := ListResumes(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != ids[0] || !list[0].IsPrimary {
		t.Fatalf("first entry = %+v, want primary %d", list[0], ids[0])
	}
}

func TestDeleteResumeIsPermanent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "e@example.com")

	resume := Resume{UserID: user.ID, Title: "cv", Format: FormatText, FileKey: "resumes/1/x.txt"}
	if err := CreateResume(ctx, db, &resume); err != nil {
		t.Fatalf("create: %v", err)
	}
	deleted, err := DeleteResume(ctx, db, user.ID, resume.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.FileKey != "resumes/1/x.txt" {
		t.Fatalf("deleted record should carry file key, got %q", deleted.FileKey)
	}

	var n int64
	db.Unscoped().Model(&Resume{}).Where("id = ?", resume.ID).Count(&n)
	if n != 0 {
		t.Fatalf("resume row still present")
	}
}

func TestConcurrentSetPrimaryKeepsSinglePrimary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := seedUser(t, db, "f@example.com")

	var ids []uint
	for i := 0; i < 6; i++ {
		r := Resume{UserID: user.ID, Title: "cv", Format: FormatText}
		if err := CreateResume(ctx, db, &r); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*3)
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id uint) {
				defer wg.Done()
				if _, err := SetPrimaryResume(ctx, db, user.ID, id); err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("set primary: %v", err)
	}

	if got := countPrimary(t, db, user.ID); got != 1 {
		t.Fatalf("primary count = %d, want 1", got)
	}
}
