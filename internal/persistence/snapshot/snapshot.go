package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
)

// Header is written as a plain JSON line before the gob body so a
// snapshot file can be identified without decoding it.
type Header struct {
	Version int    `json:"version"`
	Room    string `json:"room"`
	Round   int    `json:"round"`
	SavedAt string `json:"saved_at"`
}

// SnapshotV1 captures everything needed to resume a room. Engine
// configuration and catalogs are not embedded: a restore runs against
// the server's loaded config, and the catalog digests let the caller
// refuse a snapshot taken under different data files.
type SnapshotV1 struct {
	Header Header

	CurrentPhase string
	Paused       bool

	ClientsDigest   string
	UpgradesDigest  string
	ToolsDigest     string
	IncidentsDigest string

	Teams        []*game.ESPTeam
	Destinations []*game.Destination

	IncidentHistory   []game.IncidentRecord
	ResolutionHistory []*game.ResolutionResults
}

// Capture builds a snapshot from a live session. The caller holds the
// room lock; the snapshot shares no memory with the session afterwards
// only if the caller writes it out before releasing the lock.
func Capture(sess *game.GameSession, savedAt string) SnapshotV1 {
	cats := sess.Catalogs()
	return SnapshotV1{
		Header: Header{
			Version: 1,
			Room:    sess.RoomCode,
			Round:   sess.CurrentRound,
			SavedAt: savedAt,
		},
		CurrentPhase:      string(sess.CurrentPhase),
		Paused:            sess.Paused,
		ClientsDigest:     cats.Clients.Digest,
		UpgradesDigest:    cats.Upgrades.Digest,
		ToolsDigest:       cats.Tools.Digest,
		IncidentsDigest:   cats.Incidents.Digest,
		Teams:             sess.Teams,
		Destinations:      sess.Destinations,
		IncidentHistory:   sess.IncidentHistory,
		ResolutionHistory: sess.ResolutionHistory,
	}
}

// Restore rebuilds a session from a snapshot against the currently
// loaded config and catalogs. Catalog digests must match: effects and
// modifiers in flight reference catalog entries by ID.
func Restore(snap SnapshotV1, cfg game.Config, cats *catalogs.Catalogs) (*game.GameSession, error) {
	if snap.Header.Version != 1 {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.ClientsDigest != cats.Clients.Digest ||
		snap.UpgradesDigest != cats.Upgrades.Digest ||
		snap.ToolsDigest != cats.Tools.Digest ||
		snap.IncidentsDigest != cats.Incidents.Digest {
		return nil, fmt.Errorf("catalog digest mismatch for room %s", snap.Header.Room)
	}

	sess := game.NewSession(snap.Header.Room, cfg, cats)
	sess.CurrentRound = snap.Header.Round
	sess.CurrentPhase = game.Phase(snap.CurrentPhase)
	sess.Paused = snap.Paused
	sess.Teams = snap.Teams
	sess.Destinations = snap.Destinations
	sess.IncidentHistory = snap.IncidentHistory
	sess.ResolutionHistory = snap.ResolutionHistory
	return sess, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; gob carries it again.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
