package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"mailcraft.ai/internal/persistence/indexdb"
	gamelog "mailcraft.ai/internal/persistence/log"
	"mailcraft.ai/internal/persistence/snapshot"
	"mailcraft.ai/internal/sim/arena"
	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
	"mailcraft.ai/internal/sim/tuning"
	"mailcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	cfg := game.ConfigFromTuning(tune)

	_ = os.MkdirAll(*dataDir, 0o755)

	run(runtimeConfig{
		Addr:      *addr,
		DataDir:   *dataDir,
		DisableDB: *disableDB,
	}, cfg, tune, cats, logger)
}

type runtimeConfig struct {
	Addr      string
	DataDir   string
	DisableDB bool
}

func run(rc runtimeConfig, cfg game.Config, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) {
	ctx, cancel := signalContext()
	defer cancel()

	eventLog, idx := openSinks(rc, tune, cats, logger)
	defer eventLog.Close()
	if idx != nil {
		defer idx.Close()
	}

	mins := tune.RoomInactivityMinutes
	if mins <= 0 {
		mins = 60
	}
	expiry := time.Duration(mins) * time.Minute
	mgr := arena.NewManager(cfg, cats, eventLog, expiry)
	mgr.Start()
	defer mgr.Close()

	wsSrv := ws.NewServer(mgr, cats, logger)
	if idx != nil {
		wsSrv.SetIndex(idx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP mailcraft_rooms Live room count.\n")
		fmt.Fprintf(rw, "# TYPE mailcraft_rooms gauge\n")
		fmt.Fprintf(rw, "mailcraft_rooms %d\n", mgr.RoomCount())
	})
	mux.HandleFunc("/v1/rooms", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		code := mgr.CreateRoom()
		if idx != nil {
			idx.RecordRoom(code)
		}
		logger.Printf("room created code=%s", code)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"room_code": code})
	})
	mux.HandleFunc("/admin/v1/rooms", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"rooms": mgr.Codes()})
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room")))
		savedAt := time.Now().UTC().Format(time.RFC3339)
		var snap snapshot.SnapshotV1
		err := mgr.With(code, func(sess *game.GameSession) error {
			snap = snapshot.Capture(sess, savedAt)
			path := filepath.Join(rc.DataDir, "snapshots", fmt.Sprintf("%s-%d.snap.zst", code, sess.CurrentRound))
			return snapshot.WriteSnapshot(path, snap)
		})
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "room": code, "round": snap.Header.Round})
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              rc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", rc.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// eventSink is an EventLogger we also have to close on shutdown.
type eventSink interface {
	game.EventLogger
	Close() error
}

func openSinks(rc runtimeConfig, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (eventSink, *indexdb.SQLiteIndex) {
	jl := gamelog.NewGameEventLogger(rc.DataDir)

	if rc.DisableDB {
		return jl, nil
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(rc.DataDir, "index.db"))
	if err != nil {
		logger.Fatalf("open index db: %v", err)
	}
	if err := idx.UpsertCatalogs(cats, tune); err != nil {
		logger.Printf("index db: upsert catalogs: %v", err)
	}
	return multiEventLogger{a: jl, b: idx}, idx
}

// multiEventLogger fans one engine event into both sinks.
type multiEventLogger struct {
	a eventSink
	b game.EventLogger
}

func (m multiEventLogger) WriteEvent(e game.GameEvent) error {
	err := m.a.WriteEvent(e)
	_ = m.b.WriteEvent(e)
	return err
}

func (m multiEventLogger) Close() error { return m.a.Close() }

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
