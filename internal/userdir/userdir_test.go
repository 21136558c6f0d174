package userdir_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/persist"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

func newTestDirectory(t *testing.T) *userdir.Directory {
	t.Helper()
	gateway, err := persist.New(persist.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	t.Cleanup(func() { gateway.Close() })
	dir, err := userdir.New(userdir.Config{Gateway: gateway})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	if err := dir.Init(context.Background(), false); err != nil {
		t.Fatalf("init: %v", err)
	}
	return dir
}

func TestInitSeedsDemoUsers(t *testing.T) {
	t.Parallel()

	gateway, err := persist.New(persist.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	defer gateway.Close()
	dir, err := userdir.New(userdir.Config{Gateway: gateway})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	if err := dir.Init(context.Background(), true); err != nil {
		t.Fatalf("init: %v", err)
	}
	count, err := dir.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 demo users, got %d", count)
	}
	// Init is idempotent.
	if err := dir.Init(context.Background(), true); err != nil {
		t.Fatalf("repeat init: %v", err)
	}
	if count, _ = dir.Count(context.Background()); count != 2 {
		t.Fatalf("repeat init changed user count to %d", count)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()

	dir := newTestDirectory(t)
	ctx := context.Background()

	user, err := dir.Register(ctx, "Ada", "ada@example.com", "5550001", "KA-03-AA-0001", "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.Status != "active" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := dir.Register(ctx, "Eve", "eve@example.com", "5550002", "KA-03-AA-0001", "x"); !errors.Is(err, userdir.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	authed, err := dir.FindByCredentials(ctx, "KA-03-AA-0001", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.LastLogin == "" {
		t.Fatalf("unexpected authenticated user: %+v", authed)
	}

	if _, err := dir.FindByCredentials(ctx, "KA-03-AA-0001", "wrong"); !errors.Is(err, userdir.ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
}

func TestRecordBookingUpdatesTotals(t *testing.T) {
	t.Parallel()

	dir := newTestDirectory(t)
	ctx := context.Background()
	user, err := dir.Register(ctx, "Ada", "ada@example.com", "5550001", "KA-03-AA-0001", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	booking := &layout.Booking{ID: "BOOK_1", SpotID: "1-01-01", UserID: user.ID, Cost: 120.5, Status: layout.BookingActive}
	if err := dir.RecordBooking(ctx, user.ID, booking); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := dir.RecordBooking(ctx, user.ID, &layout.Booking{ID: "BOOK_2", Cost: 30, Status: layout.BookingActive}); err != nil {
		t.Fatalf("record second: %v", err)
	}

	got, err := dir.Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.TotalBookings != 2 || got.TotalSpent != 150.5 {
		t.Fatalf("totals wrong: %d / %v", got.TotalBookings, got.TotalSpent)
	}
	if len(got.BookingHistory) != 2 {
		t.Fatalf("history length %d", len(got.BookingHistory))
	}

	if err := dir.RecordBooking(ctx, "USER_MISSING", booking); !errors.Is(err, userdir.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	t.Parallel()

	dir := newTestDirectory(t)
	ctx := context.Background()
	user, err := dir.Register(ctx, "Ada", "ada@example.com", "5550001", "KA-03-AA-0001", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := dir.RecordBooking(ctx, user.ID, &layout.Booking{ID: "BOOK_1", Status: layout.BookingActive}); err != nil {
		t.Fatalf("record: %v", err)
	}

	stamp := layout.FormatTime(time.Now(), time.UTC)
	if err := dir.UpdateBookingStatus(ctx, user.ID, "BOOK_1", layout.BookingExpired, stamp); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := dir.Find(ctx, user.ID)
	if got.BookingHistory[0].Status != layout.BookingExpired || got.BookingHistory[0].CompletedAt != stamp {
		t.Fatalf("history not updated: %+v", got.BookingHistory[0])
	}

	// Unknown user or booking is a tolerated no-op.
	if err := dir.UpdateBookingStatus(ctx, "USER_MISSING", "BOOK_1", layout.BookingExpired, stamp); err != nil {
		t.Fatalf("unknown user should be a no-op: %v", err)
	}
	if err := dir.UpdateBookingStatus(ctx, user.ID, "BOOK_MISSING", layout.BookingExpired, stamp); err != nil {
		t.Fatalf("unknown booking should be a no-op: %v", err)
	}
}
