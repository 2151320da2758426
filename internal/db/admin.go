package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/usprobe/internal/httputil"
	"github.com/banshee-data/usprobe/internal/monitoring"
)

// AttachAdminRoutes mounts the database debug pages: a live SQL console,
// the preset and command log listings, and an on-demand backup.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://usprobe.db", db.DB, &tailsql.DBOptions{
		Label: "Probe presets",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("presets", "Saved acquisition presets (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presets, err := db.ListPresets()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list presets: %v", err))
			return
		}
		httputil.WriteJSONOK(w, presets)
	}))

	debug.Handle("commands", "Raw command log, newest first (JSON, ?limit=N)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httputil.BadRequest(w, "limit must be a positive integer")
				return
			}
			limit = n
		}
		cmds, err := db.RecentCommands(limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read command log: %v", err))
			return
		}
		httputil.WriteJSONOK(w, cmds)
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("usprobe-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("backup download interrupted: %v", err)
	}
}
