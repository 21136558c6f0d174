// Package userdir manages the registered-user document: credentials, the
// per-user booking history, and the aggregate spend counters. It persists
// through the same gateway as the parking layout.
package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/clock"
	"github.com/ishaan2-svg/parkingawssystem/internal/ids"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
	"github.com/ishaan2-svg/parkingawssystem/internal/persist"
)

// DocumentKey is the gateway key the user document is stored under.
const DocumentKey = "user_data.json"

// DocumentVersion tags the on-disk user document schema.
const DocumentVersion = "1.0"

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("userdir: user not found")
	// ErrDuplicate indicates a user with the same vehicle id already exists.
	ErrDuplicate = errors.New("userdir: user already exists")
	// ErrBadCredentials indicates the vehicle id / password pair did not match.
	ErrBadCredentials = errors.New("userdir: invalid credentials")
)

// User is one registered account. BookingHistory mirrors the ledger entries
// created on this user's behalf.
type User struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	VehicleID      string            `json:"vehicleId"`
	Password       string            `json:"password"`
	CreatedAt      string            `json:"createdAt"`
	LastLogin      string            `json:"lastLogin,omitempty"`
	TotalBookings  int               `json:"totalBookings"`
	TotalSpent     float64           `json:"totalSpent"`
	Status         string            `json:"status"`
	BookingHistory []*layout.Booking `json:"bookingHistory"`
}

// Clone returns an independent copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	dup := *u
	dup.BookingHistory = make([]*layout.Booking, len(u.BookingHistory))
	for i, b := range u.BookingHistory {
		dup.BookingHistory[i] = b.Clone()
	}
	return &dup
}

// Document is the versioned persisted user store.
type Document struct {
	Version      string  `json:"version"`
	Created      string  `json:"created"`
	LastModified string  `json:"lastModified"`
	Users        []*User `json:"users"`
}

// Config wires a Directory.
type Config struct {
	Gateway  persist.Gateway
	Clock    clock.Clock
	Location *time.Location
	Logger   pslog.Logger
}

// Directory provides synchronised access to the user document. Mutating
// operations read-modify-write the whole document under one mutex, matching
// the single-writer model of the layout store.
type Directory struct {
	mu      sync.Mutex
	gateway persist.Gateway
	clock   clock.Clock
	loc     *time.Location
	logger  pslog.Logger
}

// New constructs a Directory over the supplied gateway.
func New(cfg Config) (*Directory, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("userdir: gateway required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Directory{
		gateway: cfg.Gateway,
		clock:   clk,
		loc:     loc,
		logger:  loggingutil.EnsureLogger(cfg.Logger),
	}, nil
}

// Init ensures the user document exists, creating an empty one when missing.
// With seedDemo set the fresh document carries the two demo accounts the
// original data set ships with.
func (d *Directory) Init(ctx context.Context, seedDemo bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persist.ErrNotFound) {
		return err
	}
	now := d.clock.Now()
	stamp := layout.FormatTime(now, d.loc)
	doc := &Document{Version: DocumentVersion, Created: stamp, LastModified: stamp, Users: []*User{}}
	if seedDemo {
		doc.Users = demoUsers(now, stamp)
	}
	return d.save(ctx, doc)
}

// Register creates a new account. The vehicle id must be unique.
func (d *Directory) Register(ctx context.Context, name, email, phone, vehicleID, password string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range doc.Users {
		if u.VehicleID == vehicleID {
			return nil, fmt.Errorf("%w: vehicle %s", ErrDuplicate, vehicleID)
		}
	}
	now := d.clock.Now()
	stamp := layout.FormatTime(now, d.loc)
	user := &User{
		ID:             ids.NewUserID(now),
		Name:           name,
		Email:          email,
		Phone:          phone,
		VehicleID:      vehicleID,
		Password:       password,
		CreatedAt:      stamp,
		LastLogin:      stamp,
		Status:         "active",
		BookingHistory: []*layout.Booking{},
	}
	doc.Users = append(doc.Users, user)
	if err := d.save(ctx, doc); err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// FindByCredentials authenticates by vehicle id and password, recording the
// login time on success.
func (d *Directory) FindByCredentials(ctx context.Context, vehicleID, password string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range doc.Users {
		if u.VehicleID == vehicleID && u.Password == password {
			u.LastLogin = layout.FormatTime(d.clock.Now(), d.loc)
			if err := d.save(ctx, doc); err != nil {
				return nil, err
			}
			return u.Clone(), nil
		}
	}
	return nil, ErrBadCredentials
}

// Find returns the user with the given id.
func (d *Directory) Find(ctx context.Context, userID string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	user, ok := findUser(doc, userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return user.Clone(), nil
}

// RecordBooking appends the booking to the user's history and increments the
// aggregate counters in one durable write.
func (d *Directory) RecordBooking(ctx context.Context, userID string, booking *layout.Booking) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return err
	}
	user, ok := findUser(doc, userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	user.BookingHistory = append(user.BookingHistory, booking.Clone())
	user.TotalBookings++
	user.TotalSpent += booking.Cost
	return d.save(ctx, doc)
}

// UpdateBookingStatus mirrors a booking's terminal transition into the
// user's history copy. Unknown users or bookings are a no-op: the layout
// ledger remains the authoritative record.
func (d *Directory) UpdateBookingStatus(ctx context.Context, userID, bookingID string, status layout.BookingStatus, completedAt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return err
	}
	user, ok := findUser(doc, userID)
	if !ok {
		return nil
	}
	changed := false
	for _, b := range user.BookingHistory {
		if b.ID == bookingID && b.Status == layout.BookingActive {
			b.Status = status
			b.CompletedAt = completedAt
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.save(ctx, doc)
}

// Users returns copies of every registered user.
func (d *Directory) Users(ctx context.Context) ([]*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*User, len(doc.Users))
	for i, u := range doc.Users {
		out[i] = u.Clone()
	}
	return out, nil
}

// Count returns the number of registered users.
func (d *Directory) Count(ctx context.Context) (int, error) {
	users, err := d.Users(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (d *Directory) load(ctx context.Context) (*Document, error) {
	raw, err := d.gateway.Load(ctx, DocumentKey)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", persist.ErrCorrupt, DocumentKey, err)
	}
	return &doc, nil
}

func (d *Directory) save(ctx context.Context, doc *Document) error {
	doc.LastModified = layout.FormatTime(d.clock.Now(), d.loc)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("userdir: marshal document: %w", err)
	}
	return d.gateway.Save(ctx, DocumentKey, raw)
}

func findUser(doc *Document, userID string) (*User, bool) {
	for _, u := range doc.Users {
		if u.ID == userID {
			return u, true
		}
	}
	return nil, false
}

func demoUsers(now time.Time, stamp string) []*User {
	return []*User{
		{
			ID: ids.NewUserID(now), Name: "John Doe", Email: "john@example.com",
			Phone: "9876543210", VehicleID: "KA-01-HH-1234", Password: "demo123",
			CreatedAt: stamp, Status: "active", BookingHistory: []*layout.Booking{},
		},
		{
			ID: ids.NewUserID(now), Name: "Jane Smith", Email: "jane@example.com",
			Phone: "9876543211", VehicleID: "KA-02-BB-5678", Password: "demo123",
			CreatedAt: stamp, Status: "active", BookingHistory: []*layout.Booking{},
		},
	}
}
