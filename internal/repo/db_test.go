package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-notification-actions/internal/domain"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Notification{}, &domain.CommentRecord{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCreateNotification(t *testing.T, db *gorm.DB, userID string, siteID int64, commentID *int64, createdAt time.Time) *domain.Notification {
	t.Helper()
	typ := domain.TypeFollow
	if commentID != nil {
		typ = domain.TypeComment
	}
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		SiteID:    siteID,
		CommentID: commentID,
		Type:      typ,
		CreatedAt: createdAt,
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func mustCreateComment(t *testing.T, db *gorm.DB, siteID, commentID int64, content string, approved bool) *domain.CommentRecord {
	t.Helper()
	rec := &domain.CommentRecord{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		CommentID: commentID,
		Content:   content,
		Approved:  approved,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return rec
}

func int64p(v int64) *int64 { return &v }
