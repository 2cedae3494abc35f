package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
	"mailcraft.ai/internal/sim/tuning"
)

// SQLiteIndex mirrors game activity into a queryable secondary index.
// Writes go through a buffered channel into a single writer goroutine;
// the engine never blocks on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqResolution
	reqIncident
	reqRoom
)

type req struct {
	kind reqKind

	event      game.GameEvent
	resolution resolutionRow
	incident   incidentRow
	room       roomRow
}

type resolutionRow struct {
	Room          string
	Round         int
	Team          string
	Volume        float64
	DeliveryRate  float64
	Zone          string
	Revenue       int
	ComplaintRate float64
	RawJSON       string
}

type incidentRow struct {
	Room           string
	IncidentID     string
	Name           string
	Category       string
	RoundTriggered int
	Team           string
	SelectedClient string
	At             string
}

type roomRow struct {
	Code      string
	CreatedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Roomy buffer: lock-in bursts from a full table of teams must
		// not stall the session lock.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			code TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			room TEXT NOT NULL,
			seq INTEGER NOT NULL,
			round INTEGER NOT NULL,
			phase TEXT NOT NULL,
			type TEXT NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (room, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_room_round ON events(room, round);`,
		`CREATE TABLE IF NOT EXISTS resolutions (
			room TEXT NOT NULL,
			round INTEGER NOT NULL,
			team TEXT NOT NULL,
			volume REAL NOT NULL,
			delivery_rate REAL NOT NULL,
			zone TEXT NOT NULL,
			revenue INTEGER NOT NULL,
			complaint_rate REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (room, round, team)
		);`,
		`CREATE TABLE IF NOT EXISTS incidents (
			room TEXT NOT NULL,
			incident_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			round_triggered INTEGER NOT NULL,
			team TEXT,
			selected_client TEXT,
			at TEXT NOT NULL,
			PRIMARY KEY (room, incident_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_room_round ON incidents(room, round_triggered);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEvent satisfies game.EventLogger.
func (s *SQLiteIndex) WriteEvent(e game.GameEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
	return nil
}

// RecordRoom registers a freshly created room.
func (s *SQLiteIndex) RecordRoom(code string) {
	if s == nil || s.closed.Load() {
		return
	}
	r := roomRow{Code: code, CreatedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	select {
	case s.ch <- req{kind: reqRoom, room: r}:
	default:
	}
}

// RecordResolution indexes one team's settled round.
func (s *SQLiteIndex) RecordResolution(room string, results *game.ResolutionResults) {
	if s == nil || s.closed.Load() || results == nil {
		return
	}
	for team, er := range results.ESPResults {
		raw, _ := json.Marshal(er)
		r := resolutionRow{
			Room:          room,
			Round:         results.Round,
			Team:          team,
			Volume:        er.Volume.Total,
			DeliveryRate:  er.Delivery.FinalRate,
			Zone:          er.Delivery.Zone,
			Revenue:       er.Revenue.Actual,
			ComplaintRate: er.Complaints.Rate,
			RawJSON:       string(raw),
		}
		select {
		case s.ch <- req{kind: reqResolution, resolution: r}:
		default:
		}
	}
}

// RecordIncident indexes a triggered incident card.
func (s *SQLiteIndex) RecordIncident(room string, rec game.IncidentRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	r := incidentRow{
		Room:           room,
		IncidentID:     rec.IncidentID,
		Name:           rec.Name,
		Category:       rec.Category,
		RoundTriggered: rec.RoundTriggered,
		Team:           rec.TeamName,
		SelectedClient: rec.SelectedClient,
		At:             rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqIncident, incident: r}:
	default:
	}
}

// UpsertCatalogs stores the loaded catalogs and tuning with their
// digests so an operator can always see exactly what a room ran with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	add := func(name, digest string, v any) {
		b, _ := json.Marshal(v)
		if len(b) > 0 {
			rows = append(rows, kv{name: name, digest: digest, json: b})
		}
	}
	add("clients", cats.Clients.Digest, cats.Clients.Order)
	add("tech_upgrades", cats.Upgrades.Digest, cats.Upgrades.Order)
	add("destination_tools", cats.Tools.Digest, cats.Tools.Order)
	add("incidents", cats.Incidents.Digest, cats.Incidents.Order)
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRoom, _ := s.db.Prepare(`INSERT OR REPLACE INTO rooms(code,created_at) VALUES(?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(room,seq,round,phase,type,at,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertResolution, _ := s.db.Prepare(`INSERT OR REPLACE INTO resolutions(room,round,team,volume,delivery_rate,zone,revenue,complaint_rate,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertIncident, _ := s.db.Prepare(`INSERT OR REPLACE INTO incidents(room,incident_id,name,category,round_triggered,team,selected_client,at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRoom != nil {
			_ = insertRoom.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertResolution != nil {
			_ = insertResolution.Close()
		}
		if insertIncident != nil {
			_ = insertIncident.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		eventSeq = map[string]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRoom:
			if insertRoom != nil {
				if _, err := tx.Stmt(insertRoom).Exec(r.room.Code, r.room.CreatedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqEvent:
			e := r.event
			seq := eventSeq[e.Room]
			eventSeq[e.Room] = seq + 1
			raw, _ := json.Marshal(e)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					e.Room,
					seq,
					e.Round,
					e.Phase,
					e.Type,
					e.At.UTC().Format(time.RFC3339Nano),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqResolution:
			row := r.resolution
			if insertResolution != nil {
				if _, err := tx.Stmt(insertResolution).Exec(
					row.Room,
					row.Round,
					row.Team,
					row.Volume,
					row.DeliveryRate,
					row.Zone,
					row.Revenue,
					row.ComplaintRate,
					row.RawJSON,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqIncident:
			row := r.incident
			if insertIncident != nil {
				if _, err := tx.Stmt(insertIncident).Exec(
					row.Room,
					row.IncidentID,
					row.Name,
					row.Category,
					row.RoundTriggered,
					row.Team,
					row.SelectedClient,
					row.At,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
