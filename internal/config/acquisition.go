package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where cmd/usprobe looks for acquisition settings when
// no -config flag is given.
const DefaultConfigPath = "config/acquisition.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Table sizes of the indexed acquisition parameters.
const (
	TGCPoints           = 8
	BFocalZones         = 4
	ARFIFocalZones      = 6
	DefaultSerialPort   = "/dev/ttyUSB0"
	DefaultListenAddr   = "localhost:8080"
	DefaultDBPath       = "usprobe.db"
	DefaultSinkQueueLen = 8
)

// AcquisitionConfig is the persisted form of the probe's acquisition
// parameters plus the host settings needed to reach the probe. Every field is
// optional: nil means "keep the device's current value" when applied, and the
// Get* methods fall back to defaults for the host settings.
//
// Range checks belong to the device; Validate only rejects values that can
// never be applied (bad durations, oversized tables, negative counts).
type AcquisitionConfig struct {
	// Mode
	Mode            *string `json:"mode,omitempty" yaml:"mode,omitempty"`
	ExtraSourceMode *string `json:"extra_source_mode,omitempty" yaml:"extra_source_mode,omitempty"`

	// Shared acquisition parameters
	TransmitFrequencyMHz         *float64  `json:"transmit_frequency_mhz,omitempty" yaml:"transmit_frequency_mhz,omitempty"`
	Voltage                      *int      `json:"voltage,omitempty" yaml:"voltage,omitempty"`
	ScanDepthMm                  *float64  `json:"scan_depth_mm,omitempty" yaml:"scan_depth_mm,omitempty"`
	SSDecimation                 *int      `json:"ss_decimation,omitempty" yaml:"ss_decimation,omitempty"`
	TimeGainCompensation         []float64 `json:"time_gain_compensation,omitempty" yaml:"time_gain_compensation,omitempty"`
	FirstGainValue               *float64  `json:"first_gain_value,omitempty" yaml:"first_gain_value,omitempty"`
	FocalPointDepth              []float64 `json:"focal_point_depth,omitempty" yaml:"focal_point_depth,omitempty"`
	BMultiFocalZoneCount         *int      `json:"b_multi_focal_zone_count,omitempty" yaml:"b_multi_focal_zone_count,omitempty"`
	BFrameRateLimit              *int      `json:"b_frame_rate_limit,omitempty" yaml:"b_frame_rate_limit,omitempty"`
	BHarmonicEnabled             *bool     `json:"b_harmonic_enabled,omitempty" yaml:"b_harmonic_enabled,omitempty"`
	BRFEnabled                   *bool     `json:"brf_enabled,omitempty" yaml:"brf_enabled,omitempty"`
	SpatialCompoundEnabled       *bool     `json:"spatial_compound_enabled,omitempty" yaml:"spatial_compound_enabled,omitempty"`
	SpatialCompoundAngle         *float64  `json:"spatial_compound_angle,omitempty" yaml:"spatial_compound_angle,omitempty"`
	SpatialCompoundCount         *int      `json:"spatial_compound_count,omitempty" yaml:"spatial_compound_count,omitempty"`
	TransducerID                 *string   `json:"transducer_id,omitempty" yaml:"transducer_id,omitempty"`
	UseDeviceFrameReconstruction *bool     `json:"use_device_frame_reconstruction,omitempty" yaml:"use_device_frame_reconstruction,omitempty"`

	// Host-side intensity compression
	CompressionMin        *int `json:"compression_min,omitempty" yaml:"compression_min,omitempty"`
	CompressionMax        *int `json:"compression_max,omitempty" yaml:"compression_max,omitempty"`
	CompressionKnee       *int `json:"compression_knee,omitempty" yaml:"compression_knee,omitempty"`
	CompressionOutputKnee *int `json:"compression_output_knee,omitempty" yaml:"compression_output_knee,omitempty"`

	// M mode
	MModeEnabled       *bool `json:"m_mode_enabled,omitempty" yaml:"m_mode_enabled,omitempty"`
	MRevolvingEnabled  *bool `json:"m_revolving_enabled,omitempty" yaml:"m_revolving_enabled,omitempty"`
	MPRF               *int  `json:"m_prf,omitempty" yaml:"m_prf,omitempty"`
	MLineIndex         *int  `json:"m_line_index,omitempty" yaml:"m_line_index,omitempty"`
	MWidth             *int  `json:"m_width,omitempty" yaml:"m_width,omitempty"`
	MWidthLines        *int  `json:"m_width_lines,omitempty" yaml:"m_width_lines,omitempty"`
	MAcousticLineCount *int  `json:"m_acoustic_line_count,omitempty" yaml:"m_acoustic_line_count,omitempty"`
	MDepth             *int  `json:"m_depth,omitempty" yaml:"m_depth,omitempty"`

	// ARFI
	ARFIEnabled             *bool     `json:"arfi_enabled,omitempty" yaml:"arfi_enabled,omitempty"`
	ARFIFocalPointDepth     []float64 `json:"arfi_focal_point_depth,omitempty" yaml:"arfi_focal_point_depth,omitempty"`
	ARFIMultiFocalZoneCount *int      `json:"arfi_multi_focal_zone_count,omitempty" yaml:"arfi_multi_focal_zone_count,omitempty"`
	ARFITxTxCycleCount      *int      `json:"arfi_tx_tx_cycle_count,omitempty" yaml:"arfi_tx_tx_cycle_count,omitempty"`
	ARFITxTxCycleWidth      *int      `json:"arfi_tx_tx_cycle_width,omitempty" yaml:"arfi_tx_tx_cycle_width,omitempty"`
	ARFITxCycleCount        *int      `json:"arfi_tx_cycle_count,omitempty" yaml:"arfi_tx_cycle_count,omitempty"`
	ARFITxCycleWidth        *int      `json:"arfi_tx_cycle_width,omitempty" yaml:"arfi_tx_cycle_width,omitempty"`
	ARFIPushOffset          *int      `json:"arfi_push_offset,omitempty" yaml:"arfi_push_offset,omitempty"`
	ARFIStartSample         *int      `json:"arfi_start_sample,omitempty" yaml:"arfi_start_sample,omitempty"`
	ARFIStopSample          *int      `json:"arfi_stop_sample,omitempty" yaml:"arfi_stop_sample,omitempty"`
	ARFIPushConfiguration   *string   `json:"arfi_push_configuration,omitempty" yaml:"arfi_push_configuration,omitempty"`

	// Host settings
	SerialPort     *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataAddr       *string `json:"data_addr,omitempty" yaml:"data_addr,omitempty"`
	CommandTimeout *string `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"` // duration string like "2s"
	FrameInterval  *string `json:"frame_interval,omitempty" yaml:"frame_interval,omitempty"`   // simulator cadence, e.g. "33ms"
	ListenAddr     *string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	DBPath         *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	SinkQueueLen   *int    `json:"sink_queue_len,omitempty" yaml:"sink_queue_len,omitempty"`
}

// Helper functions to create pointers
func Float64(v float64) *float64 { return &v }
func Bool(v bool) *bool          { return &v }
func String(v string) *string    { return &v }
func Int(v int) *int             { return &v }

// EmptyAcquisitionConfig returns a config with every field nil.
func EmptyAcquisitionConfig() *AcquisitionConfig {
	return &AcquisitionConfig{}
}

// DefaultAcquisitionConfig returns the host settings populated with their
// defaults. Acquisition parameters stay nil so applying it leaves the device
// untouched.
func DefaultAcquisitionConfig() *AcquisitionConfig {
	return &AcquisitionConfig{
		SerialPort:     String(DefaultSerialPort),
		BaudRate:       Int(115200),
		DataAddr:       String(""),
		CommandTimeout: String("2s"),
		FrameInterval:  String("33ms"),
		ListenAddr:     String(DefaultListenAddr),
		DBPath:         String(DefaultDBPath),
		SinkQueueLen:   Int(DefaultSinkQueueLen),
	}
}

// AcquisitionOnly returns a copy with the host settings cleared, which is
// what a preset stores.
func (c *AcquisitionConfig) AcquisitionOnly() *AcquisitionConfig {
	out := *c
	out.SerialPort = nil
	out.BaudRate = nil
	out.DataAddr = nil
	out.CommandTimeout = nil
	out.FrameInterval = nil
	out.ListenAddr = nil
	out.DBPath = nil
	out.SinkQueueLen = nil
	return &out
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) (format, error) {
	switch ext := filepath.Ext(path); ext {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}
}

// LoadAcquisitionConfig loads a config from a JSON or YAML file, chosen by
// extension. Omitted fields stay nil, so partial configs are safe.
func LoadAcquisitionConfig(path string) (*AcquisitionConfig, error) {
	cleanPath := filepath.Clean(path)
	f, err := formatFor(cleanPath)
	if err != nil {
		return nil, err
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAcquisitionConfig()
	switch f {
	case formatJSON:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path, JSON or YAML by extension. The file is
// replaced atomically so a crash never leaves a truncated config behind.
func (c *AcquisitionConfig) Save(path string) error {
	cleanPath := filepath.Clean(path)
	f, err := formatFor(cleanPath)
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case formatJSON:
		data, err = json.MarshalIndent(c, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case formatYAML:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cleanPath), ".acquisition-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpName, cleanPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration values can be applied.
func (c *AcquisitionConfig) Validate() error {
	if len(c.TimeGainCompensation) > TGCPoints {
		return fmt.Errorf("time_gain_compensation has %d entries (max %d)", len(c.TimeGainCompensation), TGCPoints)
	}
	if len(c.FocalPointDepth) > BFocalZones {
		return fmt.Errorf("focal_point_depth has %d entries (max %d)", len(c.FocalPointDepth), BFocalZones)
	}
	if len(c.ARFIFocalPointDepth) > ARFIFocalZones {
		return fmt.Errorf("arfi_focal_point_depth has %d entries (max %d)", len(c.ARFIFocalPointDepth), ARFIFocalZones)
	}

	for name, v := range map[string]*string{
		"command_timeout": c.CommandTimeout,
		"frame_interval":  c.FrameInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	if c.SinkQueueLen != nil && *c.SinkQueueLen < 1 {
		return fmt.Errorf("sink_queue_len must be at least 1, got %d", *c.SinkQueueLen)
	}
	return nil
}

// GetSerialPort returns the serial_port value or the default.
func (c *AcquisitionConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or 0, which lets the transport
// apply its own default.
func (c *AcquisitionConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 0
	}
	return *c.BaudRate
}

// GetDataAddr returns the data_addr value or "" (no data channel).
func (c *AcquisitionConfig) GetDataAddr() string {
	if c.DataAddr == nil {
		return ""
	}
	return *c.DataAddr
}

// GetCommandTimeout parses and returns CommandTimeout.
func (c *AcquisitionConfig) GetCommandTimeout() time.Duration {
	return parseDurationOr(c.CommandTimeout, 2*time.Second)
}

// GetFrameInterval parses and returns FrameInterval.
func (c *AcquisitionConfig) GetFrameInterval() time.Duration {
	return parseDurationOr(c.FrameInterval, 33*time.Millisecond)
}

// GetListenAddr returns the listen_addr value or the default.
func (c *AcquisitionConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}

// GetDBPath returns the db_path value or the default.
func (c *AcquisitionConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetSinkQueueLen returns the sink_queue_len value or the default.
func (c *AcquisitionConfig) GetSinkQueueLen() int {
	if c.SinkQueueLen == nil {
		return DefaultSinkQueueLen
	}
	return *c.SinkQueueLen
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}
