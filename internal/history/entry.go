package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultLimit is the number of events Recent returns for a non-positive limit.
const DefaultLimit = 50

// DeviceRecord is a device that has been listed at least once.
type DeviceRecord struct {
	Serial    string
	WiFiAddr  string
	FirstSeen time.Time
	LastSeen  time.Time
}

// EventRecord is one stored session event.
type EventRecord struct {
	ID      int64
	Device  string
	Kind    string
	Message string
	At      time.Time
}

// RecordSeen marks serials as seen at the given time.
func (h *DB) RecordSeen(at time.Time, serials ...string) error {
	if len(serials) == 0 {
		return nil
	}
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("record seen: %w", err)
	}
	defer tx.Rollback()

	ms := at.UnixMilli()
	for _, serial := range serials {
		_, err := tx.Exec(
			`INSERT INTO devices (serial, first_seen, last_seen) VALUES (?, ?, ?)
			 ON CONFLICT(serial) DO UPDATE SET last_seen = excluded.last_seen`,
			serial, ms, ms,
		)
		if err != nil {
			return fmt.Errorf("record seen %s: %w", serial, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record seen: %w", err)
	}
	return nil
}

// RecordWireless stores the wireless address serial was switched to.
func (h *DB) RecordWireless(serial, addr string, at time.Time) error {
	ms := at.UnixMilli()
	_, err := h.db.Exec(
		`INSERT INTO devices (serial, wifi_addr, first_seen, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET wifi_addr = excluded.wifi_addr, last_seen = excluded.last_seen`,
		serial, addr, ms, ms,
	)
	if err != nil {
		return fmt.Errorf("record wireless: %w", err)
	}
	return nil
}

// Device returns the record for serial, or false if it was never seen.
func (h *DB) Device(serial string) (DeviceRecord, bool, error) {
	var (
		d           DeviceRecord
		first, last int64
	)
	err := h.db.QueryRow(
		`SELECT serial, wifi_addr, first_seen, last_seen FROM devices WHERE serial = ?`, serial,
	).Scan(&d.Serial, &d.WiFiAddr, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceRecord{}, false, nil
	}
	if err != nil {
		return DeviceRecord{}, false, fmt.Errorf("get device: %w", err)
	}
	d.FirstSeen, d.LastSeen = time.UnixMilli(first), time.UnixMilli(last)
	return d, true, nil
}

// Devices returns every known device, most recently seen first.
func (h *DB) Devices() ([]DeviceRecord, error) {
	rows, err := h.db.Query(
		`SELECT serial, wifi_addr, first_seen, last_seen FROM devices ORDER BY last_seen DESC, serial`,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var (
			d           DeviceRecord
			first, last int64
		)
		if err := rows.Scan(&d.Serial, &d.WiFiAddr, &first, &last); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.FirstSeen, d.LastSeen = time.UnixMilli(first), time.UnixMilli(last)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordEvent appends one event.
func (h *DB) RecordEvent(e EventRecord) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := h.db.Exec(
		`INSERT INTO events (device, kind, message, at) VALUES (?, ?, ?, ?)`,
		e.Device, e.Kind, e.Message, e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. An empty device selects
// events of every device.
func (h *DB) Recent(device string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `SELECT id, device, kind, message, at FROM events`
	args := []any{}
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			e  EventRecord
			at int64
		)
		if err := rows.Scan(&e.ID, &e.Device, &e.Kind, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
