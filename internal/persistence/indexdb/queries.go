package indexdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Reader is a read-only view over a mailcraft index database, for the
// admin tool and any ad-hoc inspection.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type RoomInfo struct {
	Code      string
	CreatedAt string
	Events    int
	Incidents int
}

func (r *Reader) ListRooms() ([]RoomInfo, error) {
	rows, err := r.db.Query(`
		SELECT rm.code, rm.created_at,
			(SELECT COUNT(*) FROM events e WHERE e.room = rm.code),
			(SELECT COUNT(*) FROM incidents i WHERE i.room = rm.code)
		FROM rooms rm ORDER BY rm.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoomInfo
	for rows.Next() {
		var ri RoomInfo
		if err := rows.Scan(&ri.Code, &ri.CreatedAt, &ri.Events, &ri.Incidents); err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

type RoundSummary struct {
	Round         int
	Team          string
	Volume        float64
	DeliveryRate  float64
	Zone          string
	Revenue       int
	ComplaintRate float64
}

func (r *Reader) RoundSummaries(room string) ([]RoundSummary, error) {
	rows, err := r.db.Query(`
		SELECT round, team, volume, delivery_rate, zone, revenue, complaint_rate
		FROM resolutions WHERE room = ? ORDER BY round, team`, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		var rs RoundSummary
		if err := rows.Scan(&rs.Round, &rs.Team, &rs.Volume, &rs.DeliveryRate, &rs.Zone, &rs.Revenue, &rs.ComplaintRate); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

type IncidentInfo struct {
	IncidentID     string
	Name           string
	Category       string
	RoundTriggered int
	Team           string
	SelectedClient string
	At             string
}

func (r *Reader) Incidents(room string) ([]IncidentInfo, error) {
	rows, err := r.db.Query(`
		SELECT incident_id, name, category, round_triggered,
			COALESCE(team, ''), COALESCE(selected_client, ''), at
		FROM incidents WHERE room = ? ORDER BY round_triggered, at`, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncidentInfo
	for rows.Next() {
		var ii IncidentInfo
		if err := rows.Scan(&ii.IncidentID, &ii.Name, &ii.Category, &ii.RoundTriggered, &ii.Team, &ii.SelectedClient, &ii.At); err != nil {
			return nil, err
		}
		out = append(out, ii)
	}
	return out, rows.Err()
}
