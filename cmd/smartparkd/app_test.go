package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
	"github.com/ishaan2-svg/parkingawssystem/internal/userdir"
)

func runCommand(t *testing.T, args ...string) []byte {
	t.Helper()
	root := newRootCommand(loggingutil.NoopLogger())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v failed: %v\noutput: %s", args, err, out.String())
	}
	return out.Bytes()
}

func TestCLIBookingLifecycle(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--data-dir", dir, "--timezone", "UTC", "--floors", "2", "--divisions", "2", "--spots", "3"}

	out := runCommand(t, append([]string{"init", "--seed-demo-users"}, base...)...)
	var health struct {
		Status     string `json:"status"`
		TotalSpots int    `json:"totalSpots"`
	}
	if err := json.Unmarshal(out, &health); err != nil {
		t.Fatalf("parse init output: %v\n%s", err, out)
	}
	if health.Status != "ok" || health.TotalSpots != 12 {
		t.Fatalf("init health = %+v", health)
	}

	out = runCommand(t, append([]string{"register",
		"--name", "Test Driver", "--vehicle", "KA-05-MN-4321", "--password", "pw",
		"--email", "driver@example.com"}, base...)...)
	var user userdir.User
	if err := json.Unmarshal(out, &user); err != nil {
		t.Fatalf("parse register output: %v\n%s", err, out)
	}
	if user.ID == "" {
		t.Fatalf("register returned no id: %s", out)
	}
	if user.Password != "" {
		t.Fatalf("register echoed the password")
	}

	out = runCommand(t, append([]string{"book", "--user", user.ID, "--duration", "2h", "--cost", "40"}, base...)...)
	var booking layout.Booking
	if err := json.Unmarshal(out, &booking); err != nil {
		t.Fatalf("parse book output: %v\n%s", err, out)
	}
	if booking.Status != layout.BookingActive {
		t.Fatalf("booking = %+v", booking)
	}
	// No --spot given: the closest spot to the entrance must have been taken.
	if booking.SpotID == "" {
		t.Fatalf("booking has no spot: %+v", booking)
	}

	out = runCommand(t, append([]string{"spot", booking.SpotID}, base...)...)
	var spot layout.Spot
	if err := json.Unmarshal(out, &spot); err != nil {
		t.Fatalf("parse spot output: %v\n%s", err, out)
	}
	if spot.Available || spot.BookingID != booking.ID {
		t.Fatalf("spot = %+v", spot)
	}

	out = runCommand(t, append([]string{"release", "--booking", booking.ID, "--status", "completed"}, base...)...)
	var released layout.Booking
	if err := json.Unmarshal(out, &released); err != nil {
		t.Fatalf("parse release output: %v\n%s", err, out)
	}
	if released.Status != layout.BookingCompleted {
		t.Fatalf("released = %+v", released)
	}

	out = runCommand(t, append([]string{"stats", "--json"}, base...)...)
	var stats struct {
		TotalSpots    int `json:"totalSpots"`
		TotalBookings int `json:"totalBookings"`
	}
	if err := json.Unmarshal(out, &stats); err != nil {
		t.Fatalf("parse stats output: %v\n%s", err, out)
	}
	if stats.TotalSpots != 12 || stats.TotalBookings != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCLIVersion(t *testing.T) {
	out := runCommand(t, "version")
	if len(out) == 0 {
		t.Fatalf("version printed nothing")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand(loggingutil.NoopLogger())
	want := []string{"serve", "init", "book", "release", "closest", "spot", "bookings", "register", "login", "stats", "version"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}
