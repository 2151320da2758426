package probe

import (
	"fmt"

	"github.com/banshee-data/usprobe/internal/config"
)

// Configure applies the acquisition fields set in cfg on top of the current
// parameters. The result is validated as a whole and committed atomically, so
// a bad config leaves the device untouched.
func (d *Device) Configure(cfg *config.AcquisitionConfig) error {
	if cfg == nil {
		return nil
	}
	p := d.Parameters()
	if err := mergeConfig(&p, cfg); err != nil {
		return err
	}
	return d.ApplyParameters(p)
}

func mergeConfig(p *Parameters, c *config.AcquisitionConfig) error {
	if c.Mode != nil {
		m, err := StringToMode(*c.Mode)
		if err != nil {
			return err
		}
		p.Mode = m
	}
	if c.ExtraSourceMode != nil {
		var m Mode
		if err := m.UnmarshalText([]byte(*c.ExtraSourceMode)); err != nil {
			return err
		}
		p.ExtraSourceMode = m
	}

	s := &p.Shared
	setFloat(&s.TransmitFrequencyMHz, c.TransmitFrequencyMHz)
	if err := setUint8("voltage", &s.Voltage, c.Voltage); err != nil {
		return err
	}
	setFloat(&s.ScanDepthMm, c.ScanDepthMm)
	if err := setUint8("ss_decimation", &s.SSDecimation, c.SSDecimation); err != nil {
		return err
	}
	copy(s.TimeGainCompensation[:], c.TimeGainCompensation)
	setFloat(&s.FirstGainValue, c.FirstGainValue)
	copy(s.FocalPointDepth[:], c.FocalPointDepth)
	setInt32(&s.BMultiFocalZoneCount, c.BMultiFocalZoneCount)
	setInt32(&s.BFrameRateLimit, c.BFrameRateLimit)
	setBool(&s.BHarmonicEnabled, c.BHarmonicEnabled)
	setBool(&s.BRFEnabled, c.BRFEnabled)
	setBool(&s.SpatialCompoundEnabled, c.SpatialCompoundEnabled)
	setFloat(&s.SpatialCompoundAngle, c.SpatialCompoundAngle)
	setInt32(&s.SpatialCompoundCount, c.SpatialCompoundCount)
	if c.TransducerID != nil {
		s.TransducerID = *c.TransducerID
	}
	setBool(&s.UseDeviceFrameReconstruction, c.UseDeviceFrameReconstruction)
	if err := setUint16("compression_min", &s.Compression.MinValue, c.CompressionMin); err != nil {
		return err
	}
	if err := setUint16("compression_max", &s.Compression.MaxValue, c.CompressionMax); err != nil {
		return err
	}
	if err := setUint16("compression_knee", &s.Compression.Knee, c.CompressionKnee); err != nil {
		return err
	}
	if err := setUint8("compression_output_knee", &s.Compression.OutputKnee, c.CompressionOutputKnee); err != nil {
		return err
	}

	m := &p.M
	setBool(&m.Enabled, c.MModeEnabled)
	setBool(&m.RevolvingEnabled, c.MRevolvingEnabled)
	setInt32(&m.PRF, c.MPRF)
	setInt32(&m.LineIndex, c.MLineIndex)
	setInt32(&m.Width, c.MWidth)
	setInt32(&m.WidthLines, c.MWidthLines)
	setInt32(&m.AcousticLineCount, c.MAcousticLineCount)
	setInt32(&m.Depth, c.MDepth)

	a := &p.ARFI
	setBool(&a.Enabled, c.ARFIEnabled)
	copy(a.FocalPointDepth[:], c.ARFIFocalPointDepth)
	setInt32(&a.MultiFocalZoneCount, c.ARFIMultiFocalZoneCount)
	if err := setUint16("arfi_tx_tx_cycle_count", &a.TxTxCycleCount, c.ARFITxTxCycleCount); err != nil {
		return err
	}
	if err := setUint8("arfi_tx_tx_cycle_width", &a.TxTxCycleWidth, c.ARFITxTxCycleWidth); err != nil {
		return err
	}
	if err := setUint16("arfi_tx_cycle_count", &a.TxCycleCount, c.ARFITxCycleCount); err != nil {
		return err
	}
	if err := setUint8("arfi_tx_cycle_width", &a.TxCycleWidth, c.ARFITxCycleWidth); err != nil {
		return err
	}
	setInt32(&a.PushOffset, c.ARFIPushOffset)
	setInt32(&a.StartSample, c.ARFIStartSample)
	setInt32(&a.StopSample, c.ARFIStopSample)
	if c.ARFIPushConfiguration != nil {
		pushes, err := ParsePushConfiguration(*c.ARFIPushConfiguration)
		if err != nil {
			return err
		}
		a.PushConfiguration = pushes
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt32(dst *int32, v *int) {
	if v != nil {
		*dst = int32(*v)
	}
}

func setUint8(name string, dst *uint8, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 255 {
		return fmt.Errorf("%w: %s %d outside [0, 255]", ErrValidation, name, *v)
	}
	*dst = uint8(*v)
	return nil
}

func setUint16(name string, dst *uint16, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 65535 {
		return fmt.Errorf("%w: %s %d outside [0, 65535]", ErrValidation, name, *v)
	}
	*dst = uint16(*v)
	return nil
}

// ExportConfig returns the current acquisition parameters as a config with
// every acquisition field set. Host settings are left nil.
func (d *Device) ExportConfig() *config.AcquisitionConfig {
	p := d.Parameters()
	s, m, a := &p.Shared, &p.M, &p.ARFI
	return &config.AcquisitionConfig{
		Mode:                         config.String(p.Mode.String()),
		ExtraSourceMode:              config.String(p.ExtraSourceMode.String()),
		TransmitFrequencyMHz:         config.Float64(s.TransmitFrequencyMHz),
		Voltage:                      config.Int(int(s.Voltage)),
		ScanDepthMm:                  config.Float64(s.ScanDepthMm),
		SSDecimation:                 config.Int(int(s.SSDecimation)),
		TimeGainCompensation:         append([]float64(nil), s.TimeGainCompensation[:]...),
		FirstGainValue:               config.Float64(s.FirstGainValue),
		FocalPointDepth:              append([]float64(nil), s.FocalPointDepth[:]...),
		BMultiFocalZoneCount:         config.Int(int(s.BMultiFocalZoneCount)),
		BFrameRateLimit:              config.Int(int(s.BFrameRateLimit)),
		BHarmonicEnabled:             config.Bool(s.BHarmonicEnabled),
		BRFEnabled:                   config.Bool(s.BRFEnabled),
		SpatialCompoundEnabled:       config.Bool(s.SpatialCompoundEnabled),
		SpatialCompoundAngle:         config.Float64(s.SpatialCompoundAngle),
		SpatialCompoundCount:         config.Int(int(s.SpatialCompoundCount)),
		TransducerID:                 config.String(s.TransducerID),
		UseDeviceFrameReconstruction: config.Bool(s.UseDeviceFrameReconstruction),
		CompressionMin:               config.Int(int(s.Compression.MinValue)),
		CompressionMax:               config.Int(int(s.Compression.MaxValue)),
		CompressionKnee:              config.Int(int(s.Compression.Knee)),
		CompressionOutputKnee:        config.Int(int(s.Compression.OutputKnee)),
		MModeEnabled:                 config.Bool(m.Enabled),
		MRevolvingEnabled:            config.Bool(m.RevolvingEnabled),
		MPRF:                         config.Int(int(m.PRF)),
		MLineIndex:                   config.Int(int(m.LineIndex)),
		MWidth:                       config.Int(int(m.Width)),
		MWidthLines:                  config.Int(int(m.WidthLines)),
		MAcousticLineCount:           config.Int(int(m.AcousticLineCount)),
		MDepth:                       config.Int(int(m.Depth)),
		ARFIEnabled:                  config.Bool(a.Enabled),
		ARFIFocalPointDepth:          append([]float64(nil), a.FocalPointDepth[:]...),
		ARFIMultiFocalZoneCount:      config.Int(int(a.MultiFocalZoneCount)),
		ARFITxTxCycleCount:           config.Int(int(a.TxTxCycleCount)),
		ARFITxTxCycleWidth:           config.Int(int(a.TxTxCycleWidth)),
		ARFITxCycleCount:             config.Int(int(a.TxCycleCount)),
		ARFITxCycleWidth:             config.Int(int(a.TxCycleWidth)),
		ARFIPushOffset:               config.Int(int(a.PushOffset)),
		ARFIStartSample:              config.Int(int(a.StartSample)),
		ARFIStopSample:               config.Int(int(a.StopSample)),
		ARFIPushConfiguration:        config.String(FormatPushConfiguration(a.PushConfiguration)),
	}
}
