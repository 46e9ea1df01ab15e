package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
)

func TestGrantAndRevoke(t *testing.T) {
	db := newTestDB(t)
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	user, sub := uuid.New(), uuid.New()

	if err := svc.Grant(ctx, nil, user, sub); err != nil {
		t.Fatalf("grant: %v", err)
	}
	has, err := svc.HasAccess(ctx, user)
	if err != nil || !has {
		t.Fatalf("expected access, has=%v err=%v", has, err)
	}

	revoked, err := svc.Revoke(ctx, nil, sub)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 grant revoked, got %d", revoked)
	}
	if revoked, _ = svc.Revoke(ctx, nil, sub); revoked != 0 {
		t.Fatalf("second revoke should be a no-op, got %d", revoked)
	}

	has, err = svc.HasAccess(ctx, user)
	if err != nil || has {
		t.Fatalf("expected no access, has=%v err=%v", has, err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:access_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ContentAccessGrant{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
