package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ConfigRow is the persisted shape of a SlotConfig. It intentionally
// mirrors slot.SlotConfig field-for-field so callers can convert between
// the two without any lossy mapping; it lives here (rather than importing
// the slot package) so that package can depend on store without a cycle.
type ConfigRow struct {
	SlotID          int
	NDISourceName   string
	AES67StreamName string
	McastIP         string
	McastPort       int
	SSRC            uint32
}

// ConfigStore persists SlotConfig rows keyed by slot id.
type ConfigStore struct {
	db *DB
}

// NewConfigStore wraps an open DB for slot config persistence.
func NewConfigStore(db *DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// LoadAll returns every persisted slot config row, ordered by slot id.
func (s *ConfigStore) LoadAll() ([]ConfigRow, error) {
	rows, err := s.db.Query(`SELECT slot_id, ndi_source_name, aes67_stream_name, mcast_ip, mcast_port, ssrc
		FROM slot_configs ORDER BY slot_id`)
	if err != nil {
		return nil, fmt.Errorf("querying slot configs: %w", err)
	}
	defer rows.Close()

	var out []ConfigRow
	for rows.Next() {
		var r ConfigRow
		var ssrc int64
		if err := rows.Scan(&r.SlotID, &r.NDISourceName, &r.AES67StreamName, &r.McastIP, &r.McastPort, &ssrc); err != nil {
			return nil, fmt.Errorf("scanning slot config row: %w", err)
		}
		r.SSRC = uint32(ssrc)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert persists a single slot config row in one transaction, giving the
// same atomicity a temp-file-plus-rename scheme would provide for a flat
// file: either the whole row lands or none of it does.
func (s *ConfigStore) Upsert(row ConfigRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`INSERT INTO slot_configs (slot_id, ndi_source_name, aes67_stream_name, mcast_ip, mcast_port, ssrc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot_id) DO UPDATE SET
			ndi_source_name = excluded.ndi_source_name,
			aes67_stream_name = excluded.aes67_stream_name,
			mcast_ip = excluded.mcast_ip,
			mcast_port = excluded.mcast_port,
			ssrc = excluded.ssrc`,
		row.SlotID, row.NDISourceName, row.AES67StreamName, row.McastIP, row.McastPort, int64(row.SSRC))
	if err != nil {
		return fmt.Errorf("upserting slot config %d: %w", row.SlotID, err)
	}

	return tx.Commit()
}

// Get returns the persisted row for a slot id, or sql.ErrNoRows if absent.
func (s *ConfigStore) Get(slotID int) (ConfigRow, error) {
	var r ConfigRow
	var ssrc int64
	err := s.db.QueryRow(`SELECT slot_id, ndi_source_name, aes67_stream_name, mcast_ip, mcast_port, ssrc
		FROM slot_configs WHERE slot_id = ?`, slotID).
		Scan(&r.SlotID, &r.NDISourceName, &r.AES67StreamName, &r.McastIP, &r.McastPort, &ssrc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConfigRow{}, err
		}
		return ConfigRow{}, fmt.Errorf("getting slot config %d: %w", slotID, err)
	}
	r.SSRC = uint32(ssrc)
	return r, nil
}
