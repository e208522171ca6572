package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/FluidXR/mirrordeck/internal/session"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if db.Path() != filepath.Join(dir, "history.db") {
		t.Errorf("Path = %q", db.Path())
	}

	// Reopening runs the migration again without error.
	again, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestRecordSeenKeepsFirstSeen(t *testing.T) {
	db := openTest(t)
	t0 := time.UnixMilli(1_700_000_000_000)
	t1 := t0.Add(time.Hour)

	if err := db.RecordSeen(t0, "ABC123", "XYZ"); err != nil {
		t.Fatalf("RecordSeen: %v", err)
	}
	if err := db.RecordSeen(t1, "ABC123"); err != nil {
		t.Fatalf("RecordSeen: %v", err)
	}

	devices, err := db.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 || devices[0].Serial != "ABC123" {
		t.Fatalf("devices = %+v", devices)
	}
	if !devices[0].FirstSeen.Equal(t0) || !devices[0].LastSeen.Equal(t1) {
		t.Errorf("ABC123 seen = %v..%v, want %v..%v", devices[0].FirstSeen, devices[0].LastSeen, t0, t1)
	}
}

func TestRecordWireless(t *testing.T) {
	db := openTest(t)
	now := time.Now()
	if err := db.RecordSeen(now, "ABC123"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordWireless("ABC123", "10.0.0.5:5555", now); err != nil {
		t.Fatalf("RecordWireless: %v", err)
	}
	d, ok, err := db.Device("ABC123")
	if err != nil || !ok {
		t.Fatalf("Device: %v, %v", ok, err)
	}
	if d.WiFiAddr != "10.0.0.5:5555" {
		t.Errorf("WiFiAddr = %q", d.WiFiAddr)
	}
	if _, ok, err := db.Device("missing"); ok || err != nil {
		t.Errorf("Device(missing) = %v, %v", ok, err)
	}
}

func TestRecentFiltersAndLimits(t *testing.T) {
	db := openTest(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, e := range []EventRecord{
		{Device: "ABC123", Kind: "connected", Message: "Connected to ABC123"},
		{Device: "XYZ", Kind: "connected", Message: "Connected to XYZ"},
		{Device: "ABC123", Kind: "mirroring_started", Message: "scrcpy started"},
		{Device: "ABC123", Kind: "disconnected", Message: "Device disconnected."},
	} {
		e.At = base.Add(time.Duration(i) * time.Second)
		if err := db.RecordEvent(e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	all, err := db.Recent("", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 4 || all[0].Kind != "disconnected" {
		t.Fatalf("all = %+v", all)
	}

	got, err := db.Recent("ABC123", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Kind != "disconnected" || got[1].Kind != "mirroring_started" {
		t.Errorf("recent ABC123 = %+v", got)
	}
}

func TestRecorder(t *testing.T) {
	db := openTest(t)
	r := NewRecorder(db, nil)
	now := time.Now()

	r.Observe(session.Event{Kind: session.EventDevices, Time: now, Devices: []string{"ABC123"}})
	r.Observe(session.Event{Kind: session.EventConnected, Time: now, Device: "ABC123", Message: "Connected to ABC123"})
	r.Observe(session.Event{Kind: session.EventBattery, Time: now, Device: "ABC123", Battery: 80})
	r.Observe(session.Event{Kind: session.EventOutput, Time: now, Device: "ABC123", Message: "INFO: texture"})
	r.Observe(session.Event{
		Kind:     session.EventWirelessReady,
		Time:     now,
		Device:   "10.0.0.5:5555",
		Previous: "ABC123",
		Message:  "Wireless ready",
	})
	r.Close()
	r.Close()

	events, err := db.Recent("ABC123", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v, want connected and wireless_ready only", events)
	}
	d, ok, err := db.Device("ABC123")
	if err != nil || !ok {
		t.Fatalf("Device: %v, %v", ok, err)
	}
	if d.WiFiAddr != "10.0.0.5:5555" {
		t.Errorf("WiFiAddr = %q", d.WiFiAddr)
	}
	if _, ok, _ := db.Device("10.0.0.5:5555"); !ok {
		t.Error("wireless identifier not recorded as seen")
	}
}
