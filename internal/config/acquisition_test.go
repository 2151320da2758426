package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultAcquisitionConfig(t *testing.T) {
	cfg := DefaultAcquisitionConfig()

	if cfg.ScanDepthMm != nil || cfg.Mode != nil {
		t.Errorf("acquisition parameters should be nil by default")
	}
	if got := cfg.GetSerialPort(); got != DefaultSerialPort {
		t.Errorf("GetSerialPort() = %q, want %q", got, DefaultSerialPort)
	}
	if got := cfg.GetCommandTimeout(); got != 2*time.Second {
		t.Errorf("GetCommandTimeout() = %v, want 2s", got)
	}
	if got := cfg.GetFrameInterval(); got != 33*time.Millisecond {
		t.Errorf("GetFrameInterval() = %v, want 33ms", got)
	}
	if got := cfg.GetSinkQueueLen(); got != DefaultSinkQueueLen {
		t.Errorf("GetSinkQueueLen() = %d, want %d", got, DefaultSinkQueueLen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyAcquisitionConfig()
	if cfg.GetListenAddr() != DefaultListenAddr {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}
	if cfg.GetDBPath() != DefaultDBPath {
		t.Errorf("GetDBPath() = %q", cfg.GetDBPath())
	}
	if cfg.GetDataAddr() != "" {
		t.Errorf("GetDataAddr() = %q", cfg.GetDataAddr())
	}
	if cfg.GetBaudRate() != 0 {
		t.Errorf("GetBaudRate() = %d", cfg.GetBaudRate())
	}

	cfg.CommandTimeout = String("not-a-duration")
	if cfg.GetCommandTimeout() != 2*time.Second {
		t.Errorf("bad duration should fall back to default")
	}
}

func TestLoadAcquisitionConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.json")
	data := `{
  "mode": "BRF",
  "scan_depth_mm": 50,
  "ss_decimation": 4,
  "time_gain_compensation": [10, 12, 14, 16, 18, 20, 22, 24],
  "m_prf": 200,
  "arfi_push_configuration": "1,40,48;1,48,56",
  "command_timeout": "500ms"
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAcquisitionConfig(path)
	if err != nil {
		t.Fatalf("LoadAcquisitionConfig: %v", err)
	}
	if cfg.Mode == nil || *cfg.Mode != "BRF" {
		t.Errorf("Mode = %v", cfg.Mode)
	}
	if cfg.ScanDepthMm == nil || *cfg.ScanDepthMm != 50 {
		t.Errorf("ScanDepthMm = %v", cfg.ScanDepthMm)
	}
	if len(cfg.TimeGainCompensation) != 8 || cfg.TimeGainCompensation[7] != 24 {
		t.Errorf("TimeGainCompensation = %v", cfg.TimeGainCompensation)
	}
	if cfg.GetCommandTimeout() != 500*time.Millisecond {
		t.Errorf("GetCommandTimeout() = %v", cfg.GetCommandTimeout())
	}
	if cfg.Voltage != nil {
		t.Errorf("omitted fields must stay nil")
	}
}

func TestLoadAcquisitionConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.yaml")
	data := "mode: M\nm_line_index: 30\nm_revolving_enabled: true\nserial_port: /dev/ttyACM0\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAcquisitionConfig(path)
	if err != nil {
		t.Fatalf("LoadAcquisitionConfig: %v", err)
	}
	if cfg.MLineIndex == nil || *cfg.MLineIndex != 30 {
		t.Errorf("MLineIndex = %v", cfg.MLineIndex)
	}
	if cfg.MRevolvingEnabled == nil || !*cfg.MRevolvingEnabled {
		t.Errorf("MRevolvingEnabled = %v", cfg.MRevolvingEnabled)
	}
	if cfg.GetSerialPort() != "/dev/ttyACM0" {
		t.Errorf("GetSerialPort() = %q", cfg.GetSerialPort())
	}
}

func TestLoadAcquisitionConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"extension", write("probe.txt", "{}"), "extension"},
		{"missing", filepath.Join(dir, "missing.json"), "stat"},
		{"bad json", write("bad.json", "{"), "parse"},
		{"bad yaml", write("bad.yaml", "mode: [1"), "parse"},
		{"too many tgc", write("tgc.json", `{"time_gain_compensation":[1,2,3,4,5,6,7,8,9]}`), "time_gain_compensation"},
		{"bad timeout", write("timeout.json", `{"command_timeout":"soon"}`), "command_timeout"},
		{"zero queue", write("queue.json", `{"sink_queue_len":0}`), "sink_queue_len"},
		{"too large", write("large.json", `{"mode":"`+strings.Repeat("B", maxFileSize)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAcquisitionConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := DefaultAcquisitionConfig()
	cfg.Mode = String("ARFI")
	cfg.ScanDepthMm = Float64(40)
	cfg.ARFIFocalPointDepth = []float64{15, 10, 12.5, 15, 17.5, 20}
	cfg.MRevolvingEnabled = Bool(true)
	cfg.Voltage = Int(60)

	for _, name := range []string{"probe.json", "probe.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := LoadAcquisitionConfig(path)
			if err != nil {
				t.Fatalf("LoadAcquisitionConfig: %v", err)
			}
			if diff := cmp.Diff(cfg, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			entries, err := os.ReadDir(filepath.Dir(path))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("temp files left behind: %v", entries)
			}
		})
	}
}

func TestSave_RejectsUnknownExtension(t *testing.T) {
	if err := DefaultAcquisitionConfig().Save(filepath.Join(t.TempDir(), "probe.xml")); err == nil {
		t.Error("expected error for .xml")
	}
}

func TestAcquisitionOnly(t *testing.T) {
	cfg := DefaultAcquisitionConfig()
	cfg.Mode = String("M")
	cfg.ScanDepthMm = Float64(42)

	got := cfg.AcquisitionOnly()
	want := &AcquisitionConfig{Mode: String("M"), ScanDepthMm: Float64(42)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AcquisitionOnly mismatch (-want +got):\n%s", diff)
	}
	if cfg.SerialPort == nil {
		t.Error("AcquisitionOnly modified the receiver")
	}
}
