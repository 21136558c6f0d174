package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ishaan2-svg/parkingawssystem/internal/clock"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/persist"
	"github.com/ishaan2-svg/parkingawssystem/internal/spotstore"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

// memGateway keeps documents in memory so tests can fail writes on demand.
type memGateway struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saves   int
	saveErr error
}

func newMemGateway() *memGateway {
	return &memGateway{docs: map[string][]byte{}}
}

func (g *memGateway) Load(_ context.Context, key string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.docs[key]
	if !ok {
		return nil, persist.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (g *memGateway) Save(_ context.Context, key string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.docs[key] = append([]byte(nil), data...)
	g.saves++
	return nil
}

func (g *memGateway) Close() error { return nil }

func (g *memGateway) failWith(err error) {
	g.mu.Lock()
	g.saveErr = err
	g.mu.Unlock()
}

func (g *memGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}

type fixture struct {
	svc      *Service
	store    *spotstore.Store
	layoutGW *memGateway
	userGW   *memGateway
	users    *userdir.Directory
	clk      *clock.Manual
	userID   string
}

func newFixture(t *testing.T, grid layout.GridConfig) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	doc, err := layout.Generate(grid, clk.Now(), time.UTC, nil)
	if err != nil {
		t.Fatalf("generate layout: %v", err)
	}
	store, err := spotstore.New(doc, time.UTC)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	layoutGW := newMemGateway()
	userGW := newMemGateway()
	users, err := userdir.New(userdir.Config{Gateway: userGW, Clock: clk})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	ctx := context.Background()
	if err := users.Init(ctx, false); err != nil {
		t.Fatalf("init users: %v", err)
	}
	u, err := users.Register(ctx, "Test Driver", "driver@example.com", "5550001111", "KA-09-ZZ-0001", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc, err := New(Config{Spots: store, Gateway: layoutGW, Users: users, Clock: clk})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, store: store, layoutGW: layoutGW, userGW: userGW, users: users, clk: clk, userID: u.ID}
}

func (f *fixture) command(spotID string) CreateBookingCommand {
	start := f.clk.Now()
	return CreateBookingCommand{
		SpotID: spotID,
		UserID: f.userID,
		Start:  start,
		End:    start.Add(2 * time.Hour),
		Cost:   100,
	}
}

func TestCreateBookingHappyPath(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 2, DivisionsPerFloor: 2, SpotsPerDivision: 3})
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, f.command("1-01-02"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(booking.ID, "BOOK_") {
		t.Fatalf("booking id %q missing prefix", booking.ID)
	}
	if booking.Status != layout.BookingActive {
		t.Fatalf("status = %q, want active", booking.Status)
	}
	if booking.Duration != 2 {
		t.Fatalf("duration = %v, want 2", booking.Duration)
	}

	spot, err := f.svc.GetSpot(ctx, "1-01-02")
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if spot.Available || spot.BookingID != booking.ID || spot.BookedBy != f.userID {
		t.Fatalf("spot not reserved for booking: %+v", spot)
	}

	if _, ok := f.layoutGW.docs[LayoutKey]; !ok {
		t.Fatalf("layout not persisted under %q", LayoutKey)
	}
	u, err := f.users.Find(ctx, f.userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u.TotalBookings != 1 || u.TotalSpent != 100 {
		t.Fatalf("user totals = %d/%v, want 1/100", u.TotalBookings, u.TotalSpent)
	}
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateBookingCommand)
		code   string
	}{
		{"malformed spot", func(c *CreateBookingCommand) { c.SpotID = "nope" }, "invalid_spot_id"},
		{"unknown spot", func(c *CreateBookingCommand) { c.SpotID = "9-09-09" }, "spot_not_found"},
		{"end before start", func(c *CreateBookingCommand) { c.End = c.Start.Add(-time.Hour) }, "invalid_lease_window"},
		{"zero window", func(c *CreateBookingCommand) { c.End = c.Start }, "invalid_lease_window"},
		{"negative cost", func(c *CreateBookingCommand) { c.Cost = -1 }, "invalid_cost"},
		{"missing user", func(c *CreateBookingCommand) { c.UserID = " " }, "missing_user"},
		{"unknown user", func(c *CreateBookingCommand) { c.UserID = "USER_0_ABCDEF" }, "user_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := f.command("1-01-01")
			tc.mutate(&cmd)
			_, err := f.svc.CreateBooking(ctx, cmd)
			if err == nil {
				t.Fatalf("expected failure")
			}
			if got := FailureCode(err); got != tc.code {
				t.Fatalf("code = %q, want %q (err: %v)", got, tc.code, err)
			}
		})
	}
	if got := f.store.HistoryLen(); got != 0 {
		t.Fatalf("rejected commands left %d ledger entries", got)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	if _, err := f.svc.CreateBooking(ctx, f.command("1-01-01")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if got := FailureCode(err); got != "spot_unavailable" {
		t.Fatalf("code = %q, want spot_unavailable", got)
	}
	if got := f.store.HistoryLen(); got != 1 {
		t.Fatalf("ledger len = %d, want 1", got)
	}
}

func TestCreateBookingConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b, err := f.svc.CreateBooking(ctx, f.command("1-02-01")); err == nil {
				wins <- b.ID
			}
		}()
	}
	wg.Wait()
	close(wins)
	var ids []string
	for id := range wins {
		ids = append(ids, id)
	}
	if len(ids) != 1 {
		t.Fatalf("winners = %d (%v), want exactly 1", len(ids), ids)
	}
	spot, err := f.svc.GetSpot(ctx, "1-02-01")
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if spot.BookingID != ids[0] {
		t.Fatalf("spot held by %q, winner was %q", spot.BookingID, ids[0])
	}
}

// stallGateway parks the first save until released, so a second booking can
// run while the first one is still writing.
type stallGateway struct {
	*memGateway
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *stallGateway) Save(ctx context.Context, key string, data []byte) error {
	stalled := false
	g.once.Do(func() { stalled = true })
	if stalled {
		close(g.entered)
		<-g.release
	}
	return g.memGateway.Save(ctx, key, data)
}

func TestConcurrentBookingsPersistLatestSnapshot(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	gw := &stallGateway{
		memGateway: newMemGateway(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc, err := New(Config{Spots: f.store, Gateway: gw, Users: f.users, Clock: f.clk})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	done := make(chan error, 2)
	go func() {
		_, err := svc.CreateBooking(ctx, f.command("1-01-01"))
		done <- err
	}()
	<-gw.entered
	// The second booking confirms while the first one is still inside its
	// layout write.
	go func() {
		_, err := svc.CreateBooking(ctx, f.command("1-01-02"))
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// Whatever order the writes landed in, the document on disk must hold
	// every confirmed booking: a snapshot taken before the second booking
	// may never overwrite one taken after it.
	data, err := gw.Load(ctx, LayoutKey)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	var doc layout.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode layout: %v", err)
	}
	if got := len(doc.BookingHistory); got != 2 {
		t.Fatalf("durable ledger holds %d bookings, want 2", got)
	}
}

func TestCreateBookingRollsBackWhenSaveFails(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	f.layoutGW.failWith(errors.New("disk full"))
	_, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if got := FailureCode(err); got != "persistence_failed" {
		t.Fatalf("code = %q, want persistence_failed", got)
	}

	spot, err := f.svc.GetSpot(ctx, "1-01-01")
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if !spot.Available || spot.BookingID != "" {
		t.Fatalf("spot still reserved after rollback: %+v", spot)
	}
	if got := f.store.HistoryLen(); got != 0 {
		t.Fatalf("rolled-back booking left %d ledger entries", got)
	}

	// The store must be able to serve the same spot once writes recover.
	f.layoutGW.failWith(nil)
	if _, err := f.svc.CreateBooking(ctx, f.command("1-01-01")); err != nil {
		t.Fatalf("create after recovery: %v", err)
	}
}

func TestCreateBookingRollsBackWhenUserRecordFails(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	f.userGW.failWith(errors.New("disk full"))
	_, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if got := FailureCode(err); got != "persistence_failed" {
		t.Fatalf("code = %q, want persistence_failed", got)
	}

	spot, err := f.svc.GetSpot(ctx, "1-01-01")
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if !spot.Available {
		t.Fatalf("spot still reserved after rollback: %+v", spot)
	}
	if got := f.store.HistoryLen(); got != 0 {
		t.Fatalf("ledger len = %d, want 0", got)
	}
	u, err := f.users.Find(ctx, f.userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u.TotalBookings != 0 {
		t.Fatalf("user credited with %d bookings after rollback", u.TotalBookings)
	}
}

func TestReleaseBooking(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	released, err := f.svc.ReleaseBooking(ctx, booking.ID, layout.BookingCompleted)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != layout.BookingCompleted || released.CompletedAt == "" {
		t.Fatalf("released = %+v", released)
	}
	spot, err := f.svc.GetSpot(ctx, "1-01-01")
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if !spot.Available || spot.BookingID != "" {
		t.Fatalf("spot not freed: %+v", spot)
	}
	u, err := f.users.Find(ctx, f.userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if len(u.BookingHistory) != 1 || u.BookingHistory[0].Status != layout.BookingCompleted {
		t.Fatalf("user mirror not updated: %+v", u.BookingHistory)
	}
}

func TestReleaseBookingIdempotent(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	booking, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.ReleaseBooking(ctx, booking.ID, layout.BookingCancelled); err != nil {
		t.Fatalf("first release: %v", err)
	}
	saves := f.layoutGW.saveCount()

	// A repeat release, even with a different status, keeps the first outcome
	// and does not touch disk.
	again, err := f.svc.ReleaseBooking(ctx, booking.ID, layout.BookingCompleted)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if again.Status != layout.BookingCancelled {
		t.Fatalf("status = %q, want cancelled", again.Status)
	}
	if got := f.layoutGW.saveCount(); got != saves {
		t.Fatalf("no-op release wrote to disk (%d -> %d saves)", saves, got)
	}
}

func TestReleaseBookingErrors(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	_, err := f.svc.ReleaseBooking(ctx, "BOOK_0_FFFFFF", layout.BookingCompleted)
	if got := FailureCode(err); got != "booking_not_found" {
		t.Fatalf("code = %q, want booking_not_found", got)
	}
	booking, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.svc.ReleaseBooking(ctx, booking.ID, layout.BookingActive)
	if got := FailureCode(err); got != "invalid_release_status" {
		t.Fatalf("code = %q, want invalid_release_status", got)
	}
}

func TestUserBookings(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 1, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, f.command("1-01-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.ReleaseBooking(ctx, first.ID, layout.BookingCompleted); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.svc.CreateBooking(ctx, f.command("1-01-02")); err != nil {
		t.Fatalf("create second: %v", err)
	}

	got, err := f.svc.UserBookings(ctx, f.userID)
	if err != nil {
		t.Fatalf("user bookings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != first.ID || got[0].Status != layout.BookingCompleted {
		t.Fatalf("history order or status wrong: %+v", got[0])
	}
	if len(f.svc.ActiveBookings(ctx)) != 1 {
		t.Fatalf("active view out of step with ledger")
	}

	_, err = f.svc.UserBookings(ctx, "USER_0_ABCDEF")
	if got := FailureCode(err); got != "user_not_found" {
		t.Fatalf("code = %q, want user_not_found", got)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, layout.GridConfig{Floors: 2, DivisionsPerFloor: 2, SpotsPerDivision: 2})
	ctx := context.Background()

	if _, err := f.svc.CreateBooking(ctx, f.command("1-01-01")); err != nil {
		t.Fatalf("create: %v", err)
	}
	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSpots != 8 || stats.AvailableSpots != 7 || stats.OccupiedSpots != 1 {
		t.Fatalf("counts = %+v", stats)
	}
	if stats.OccupancyRate != 12.5 {
		t.Fatalf("occupancy = %v, want 12.5", stats.OccupancyRate)
	}
	if stats.ActiveBookings != 1 || stats.TotalBookings != 1 {
		t.Fatalf("bookings = %+v", stats)
	}
	if stats.RegisteredUsers != 1 {
		t.Fatalf("users = %d, want 1", stats.RegisteredUsers)
	}
	if stats.LastUpdated == "" {
		t.Fatalf("missing timestamp")
	}
}
