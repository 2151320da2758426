package db

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/config"
	"github.com/banshee-data/usprobe/internal/monitoring"
	"github.com/banshee-data/usprobe/internal/probe"
	"github.com/banshee-data/usprobe/internal/transport"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func localHostRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestNewDBAppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	migrations, err := Migrations()
	if err != nil {
		t.Fatal(err)
	}
	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	for _, table := range []string{"presets", "command_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// reopening an up-to-date database is a no-op
	if err := db.MigrateUp(migrations); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	migrations, _ := Migrations()

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	version, _, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='command_log'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("command_log still present after rolling back")
	}
}

func TestPresetLifecycle(t *testing.T) {
	db := setupTestDB(t)

	cfg := config.DefaultAcquisitionConfig()
	cfg.Mode = config.String("M")
	cfg.ScanDepthMm = config.Float64(45)
	cfg.TimeGainCompensation = []float64{1, 2, 3, 4, 5, 6, 7, 8}

	saved, err := db.SavePreset("carotid", cfg)
	if err != nil {
		t.Fatalf("SavePreset: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Fatal("preset was not given an id")
	}
	if saved.Config.SerialPort != nil {
		t.Error("host settings should not be stored")
	}

	got, err := db.GetPreset(saved.ID)
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Errorf("GetPreset mismatch (-want +got):\n%s", diff)
	}

	// saving the same name again updates in place
	cfg.ScanDepthMm = config.Float64(60)
	updated, err := db.SavePreset("carotid", cfg)
	if err != nil {
		t.Fatalf("SavePreset update: %v", err)
	}
	if updated.ID != saved.ID {
		t.Errorf("update changed id from %s to %s", saved.ID, updated.ID)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("update changed created_at")
	}
	byName, err := db.GetPresetByName("carotid")
	if err != nil {
		t.Fatalf("GetPresetByName: %v", err)
	}
	if *byName.Config.ScanDepthMm != 60 {
		t.Errorf("scan depth = %v, want 60", *byName.Config.ScanDepthMm)
	}

	if _, err := db.SavePreset("abdomen", nil); err != nil {
		t.Fatalf("SavePreset empty config: %v", err)
	}
	list, err := db.ListPresets()
	if err != nil {
		t.Fatalf("ListPresets: %v", err)
	}
	if len(list) != 2 || list[0].Name != "abdomen" || list[1].Name != "carotid" {
		t.Errorf("ListPresets = %+v", list)
	}

	if err := db.DeletePreset(saved.ID); err != nil {
		t.Fatalf("DeletePreset: %v", err)
	}
	if _, err := db.GetPreset(saved.ID); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("GetPreset after delete err = %v, want ErrPresetNotFound", err)
	}
	if err := db.DeletePreset(saved.ID); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("second DeletePreset err = %v, want ErrPresetNotFound", err)
	}
}

func TestSavePresetRequiresName(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.SavePreset("", config.EmptyAcquisitionConfig()); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestPresetRestoresDevice(t *testing.T) {
	db := setupTestDB(t)

	src := probe.NewDevice(probe.DeviceConfig{Transport: transport.NewSimulator()})
	if err := src.SetMode(probe.ModeCFD); err != nil {
		t.Fatal(err)
	}
	if err := src.SetScanDepthMm(70); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SavePreset("cfd-deep", src.ExportConfig()); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetPresetByName("cfd-deep")
	if err != nil {
		t.Fatal(err)
	}
	dst := probe.NewDevice(probe.DeviceConfig{Transport: transport.NewSimulator()})
	if err := dst.Configure(p.Config); err != nil {
		t.Fatalf("Configure from preset: %v", err)
	}
	if diff := cmp.Diff(src.Parameters(), dst.Parameters()); diff != "" {
		t.Errorf("restored parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordCommand(t *testing.T) {
	db := setupTestDB(t)
	session := uuid.New()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	entries := []probe.CommandEntry{
		{SessionID: session, Time: at, Command: "PING", Reply: "OK PONG"},
		{SessionID: session, Time: at.Add(time.Second), Command: "BOGUS", Err: errors.New("rejected")},
		{Time: at.Add(2 * time.Second), Command: "ARFI_PUSH"},
	}
	for _, e := range entries {
		if err := db.RecordCommand(e); err != nil {
			t.Fatalf("RecordCommand(%q): %v", e.Command, err)
		}
	}

	got, err := db.RecentCommands(2)
	if err != nil {
		t.Fatalf("RecentCommands: %v", err)
	}
	want := []CommandRecord{
		{ID: 3, SessionID: uuid.Nil, Command: "ARFI_PUSH", SentAt: at.Add(2 * time.Second)},
		{ID: 2, SessionID: session, Command: "BOGUS", Error: "rejected", SentAt: at.Add(time.Second)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RecentCommands mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	if _, err := db.SavePreset("default", config.EmptyAcquisitionConfig()); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordCommand(probe.CommandEntry{Time: time.Now(), Command: "PING"}); err != nil {
		t.Fatal(err)
	}

	t.Run("presets", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest("GET", "/debug/presets"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var presets []Preset
		if err := json.Unmarshal(rec.Body.Bytes(), &presets); err != nil {
			t.Fatal(err)
		}
		if len(presets) != 1 || presets[0].Name != "default" {
			t.Errorf("presets = %+v", presets)
		}
	})

	t.Run("commands", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest("GET", "/debug/commands?limit=5"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var cmds []CommandRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &cmds); err != nil {
			t.Fatal(err)
		}
		if len(cmds) != 1 || cmds[0].Command != "PING" {
			t.Errorf("commands = %+v", cmds)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest("GET", "/debug/commands?limit=zero"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("backup", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest("GET", "/debug/backup"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		gz, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatalf("backup is not gzip: %v", err)
		}
		data, err := io.ReadAll(gz)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(data, []byte("SQLite format 3\x00")) {
			t.Errorf("backup does not look like an sqlite file")
		}
	})
}
