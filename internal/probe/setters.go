package probe

import (
	"fmt"
	"math"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

// update applies change to a copy of the parameters, validates the whole set
// and commits it. With recompute set, geometry and spacing are refreshed in
// the same critical section so a reader never sees new parameters with old
// geometry. The named parameters are then pushed to the transport outside
// the lock if a session is open; on a transport error the committed value
// stays and is re-sent at the next Connect.
func (d *Device) update(recompute bool, change func(p *Parameters) error, names ...string) error {
	d.mu.Lock()
	next := d.params.Clone()
	if err := change(&next); err != nil {
		d.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.params = next
	if recompute {
		d.recomputeLocked()
	}
	connected := d.connected
	values := next.lookup(names...)
	d.mu.Unlock()

	if !connected {
		return nil
	}
	return d.push(values)
}

func (d *Device) push(values []paramValue) error {
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if err := d.transport.SetParameter(v.name, v.value); err != nil {
			return fmt.Errorf("set %s=%s: %w", v.name, v.value, err)
		}
	}
	return nil
}

// read runs f under the lock.
func read[T any](d *Device, f func(p *Parameters) T) T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return f(&d.params)
}

// ApplyParameters validates a complete parameter set and commits it in one
// step, pushing everything to the transport when connected.
func (d *Device) ApplyParameters(p Parameters) error {
	p = p.Clone()
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.params = p
	d.recomputeLocked()
	connected := d.connected
	values := p.values()
	d.mu.Unlock()
	if !connected {
		return nil
	}
	return d.push(values)
}

// Mode

// SetMode changes the primary mode. Every valid mode is accepted; frame
// geometry is recomputed.
func (d *Device) SetMode(m Mode) error {
	return d.update(true, func(p *Parameters) error {
		p.Mode = m
		return nil
	}, ParamMode)
}

func (d *Device) GetMode() Mode {
	return read(d, func(p *Parameters) Mode { return p.Mode })
}

// SetExtraSourceMode selects the mode of the extra output, or ModeNone to
// follow the primary mode.
func (d *Device) SetExtraSourceMode(m Mode) error {
	return d.update(true, func(p *Parameters) error {
		p.ExtraSourceMode = m
		return nil
	}, ParamExtraSourceMode)
}

func (d *Device) GetExtraSourceMode() Mode {
	return read(d, func(p *Parameters) Mode { return p.ExtraSourceMode })
}

// Shared parameters

func (d *Device) SetTransmitFrequencyMHz(v float64) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.TransmitFrequencyMHz = v
		return nil
	}, ParamTransmitFrequency)
}

func (d *Device) GetTransmitFrequencyMHz() float64 {
	return read(d, func(p *Parameters) float64 { return p.Shared.TransmitFrequencyMHz })
}

func (d *Device) SetVoltage(v uint8) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.Voltage = v
		return nil
	}, ParamVoltage)
}

func (d *Device) GetVoltage() uint8 {
	return read(d, func(p *Parameters) uint8 { return p.Shared.Voltage })
}

// SetScanDepthMm sets the imaging depth, 1-300 mm.
func (d *Device) SetScanDepthMm(v float64) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.ScanDepthMm = v
		return nil
	}, ParamScanDepth)
}

func (d *Device) GetScanDepthMm() float64 {
	return read(d, func(p *Parameters) float64 { return p.Shared.ScanDepthMm })
}

// SetSSDecimation sets the axial decimation factor, 1-16.
func (d *Device) SetSSDecimation(v uint8) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.SSDecimation = v
		return nil
	}, ParamDecimation)
}

func (d *Device) GetSSDecimation() uint8 {
	return read(d, func(p *Parameters) uint8 { return p.Shared.SSDecimation })
}

// SetTimeGainCompensation sets TGC point index (0-7) to value dB (0-40).
func (d *Device) SetTimeGainCompensation(index int, value float64) error {
	return d.update(false, func(p *Parameters) error {
		if err := checkIndex("tgc", index, TGCPoints); err != nil {
			return err
		}
		p.Shared.TimeGainCompensation[index] = value
		return nil
	}, indexed(ParamTGCPrefix, index))
}

func (d *Device) GetTimeGainCompensation(index int) (float64, error) {
	if err := checkIndex("tgc", index, TGCPoints); err != nil {
		return 0, err
	}
	return read(d, func(p *Parameters) float64 { return p.Shared.TimeGainCompensation[index] }), nil
}

// SetFirstGainValue sets the gain near the transducer face, 0-40 dB.
func (d *Device) SetFirstGainValue(v float64) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.FirstGainValue = v
		return nil
	}, ParamFirstGain)
}

func (d *Device) GetFirstGainValue() float64 {
	return read(d, func(p *Parameters) float64 { return p.Shared.FirstGainValue })
}

// SetFocalPointDepth sets B-mode focal zone index (0-3) to depth mm. Active
// zones must stay ordered shallow to deep.
func (d *Device) SetFocalPointDepth(index int, depth float64) error {
	return d.update(false, func(p *Parameters) error {
		if err := checkIndex("focal depth", index, BFocalZones); err != nil {
			return err
		}
		p.Shared.FocalPointDepth[index] = depth
		return nil
	}, indexed(ParamFocalDepthPrefix, index))
}

func (d *Device) GetFocalPointDepth(index int) (float64, error) {
	if err := checkIndex("focal depth", index, BFocalZones); err != nil {
		return 0, err
	}
	return read(d, func(p *Parameters) float64 { return p.Shared.FocalPointDepth[index] }), nil
}

func (d *Device) SetBMultiFocalZoneCount(n int32) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.BMultiFocalZoneCount = n
		return nil
	}, ParamBFocalZoneCount)
}

func (d *Device) GetBMultiFocalZoneCount() int32 {
	return read(d, func(p *Parameters) int32 { return p.Shared.BMultiFocalZoneCount })
}

// SetBFrameRateLimit caps the B frame rate; 0 is unlimited.
func (d *Device) SetBFrameRateLimit(fps int32) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.BFrameRateLimit = fps
		return nil
	}, ParamBFrameRateLimit)
}

func (d *Device) GetBFrameRateLimit() int32 {
	return read(d, func(p *Parameters) int32 { return p.Shared.BFrameRateLimit })
}

func (d *Device) SetBHarmonicEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.BHarmonicEnabled = v
		return nil
	}, ParamBHarmonic)
}

func (d *Device) GetBHarmonicEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.Shared.BHarmonicEnabled })
}

func (d *Device) SetBRFEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.BRFEnabled = v
		return nil
	}, ParamBRF)
}

func (d *Device) GetBRFEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.Shared.BRFEnabled })
}

func (d *Device) SetSpatialCompoundEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.SpatialCompoundEnabled = v
		return nil
	}, ParamSCEnabled)
}

func (d *Device) GetSpatialCompoundEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.Shared.SpatialCompoundEnabled })
}

func (d *Device) SetSpatialCompoundAngle(deg float64) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.SpatialCompoundAngle = deg
		return nil
	}, ParamSCAngle)
}

func (d *Device) GetSpatialCompoundAngle() float64 {
	return read(d, func(p *Parameters) float64 { return p.Shared.SpatialCompoundAngle })
}

func (d *Device) SetSpatialCompoundCount(n int32) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.SpatialCompoundCount = n
		return nil
	}, ParamSCCount)
}

func (d *Device) GetSpatialCompoundCount() int32 {
	return read(d, func(p *Parameters) int32 { return p.Shared.SpatialCompoundCount })
}

// SetTransducerID selects the probe head by GUID. The transducer's width and
// element count drive geometry.
func (d *Device) SetTransducerID(guid string) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.TransducerID = guid
		return nil
	}, ParamTransducerID)
}

func (d *Device) GetTransducerID() string {
	return read(d, func(p *Parameters) string { return p.Shared.TransducerID })
}

// GetTransducerInternalID is the transducer's index in the transducer table:
// 0 when none is configured, -1 for an unknown GUID.
func (d *Device) GetTransducerInternalID() int {
	id := d.GetTransducerID()
	td, err := LookupTransducer(id)
	if err != nil {
		return -1
	}
	return td.InternalID
}

func (d *Device) SetUseDeviceFrameReconstruction(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.Shared.UseDeviceFrameReconstruction = v
		return nil
	}, ParamDeviceReconstruction)
}

func (d *Device) GetUseDeviceFrameReconstruction() bool {
	return read(d, func(p *Parameters) bool { return p.Shared.UseDeviceFrameReconstruction })
}

// Intensity compression. These are host-side only and never sent to the
// transport.

// SetCompression replaces all compression parameters at once, which is the
// only way to move the knee past the old min or max.
func (d *Device) SetCompression(c Compression) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.Compression = c
		return nil
	})
}

func (d *Device) GetCompression() Compression {
	return read(d, func(p *Parameters) Compression { return p.Shared.Compression })
}

func (d *Device) SetMinValue(v uint16) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.Compression.MinValue = v
		return nil
	})
}

func (d *Device) GetMinValue() uint16 { return d.GetCompression().MinValue }

func (d *Device) SetMaxValue(v uint16) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.Compression.MaxValue = v
		return nil
	})
}

func (d *Device) GetMaxValue() uint16 { return d.GetCompression().MaxValue }

func (d *Device) SetLogLinearKnee(v uint16) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.Compression.Knee = v
		return nil
	})
}

func (d *Device) GetLogLinearKnee() uint16 { return d.GetCompression().Knee }

func (d *Device) SetLogMax(v uint8) error {
	return d.update(true, func(p *Parameters) error {
		p.Shared.Compression.OutputKnee = v
		return nil
	})
}

func (d *Device) GetLogMax() uint8 { return d.GetCompression().OutputKnee }

// M mode

func (d *Device) SetMModeEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.M.Enabled = v
		return nil
	}, ParamMMode)
}

func (d *Device) GetMModeEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.M.Enabled })
}

// SetMRevolvingEnabled selects revolving (wrap in place) instead of
// scrolling M display.
func (d *Device) SetMRevolvingEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.M.RevolvingEnabled = v
		return nil
	}, ParamMRevolving)
}

func (d *Device) GetMRevolvingEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.M.RevolvingEnabled })
}

func (d *Device) SetMPRFrequency(hz int32) error {
	return d.update(true, func(p *Parameters) error {
		p.M.PRF = hz
		return nil
	}, ParamMPRF)
}

func (d *Device) GetMPRFrequency() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.PRF })
}

func (d *Device) SetMLineIndex(v int32) error {
	return d.update(false, func(p *Parameters) error {
		p.M.LineIndex = v
		return nil
	}, ParamMLineIndex)
}

func (d *Device) GetMLineIndex() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.LineIndex })
}

func (d *Device) SetMWidth(v int32) error {
	return d.update(true, func(p *Parameters) error {
		p.M.Width = v
		return nil
	}, ParamMWidth)
}

func (d *Device) GetMWidth() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.Width })
}

func (d *Device) SetMWidthLines(v int32) error {
	return d.update(false, func(p *Parameters) error {
		p.M.WidthLines = v
		return nil
	}, ParamMWidthLines)
}

func (d *Device) GetMWidthLines() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.WidthLines })
}

func (d *Device) SetMAcousticLineCount(v int32) error {
	return d.update(true, func(p *Parameters) error {
		p.M.AcousticLineCount = v
		return nil
	}, ParamMAcousticLineCount)
}

func (d *Device) GetMAcousticLineCount() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.AcousticLineCount })
}

// SetMDepth sets the M-mode depth in mm; 0 follows the scan depth.
func (d *Device) SetMDepth(v int32) error {
	return d.update(true, func(p *Parameters) error {
		p.M.Depth = v
		return nil
	}, ParamMDepth)
}

func (d *Device) GetMDepth() int32 {
	return read(d, func(p *Parameters) int32 { return p.M.Depth })
}

// mColumnRate is how many M columns are acquired per second: the PRF shared
// between the acoustic lines interleaved with M acquisition.
func mColumnRate(m *MModeParams) float64 {
	lines := m.AcousticLineCount
	if lines < 1 {
		lines = 1
	}
	return float64(m.PRF) / float64(lines)
}

// MWidthFromSeconds converts a display duration to an M width in columns.
func (d *Device) MWidthFromSeconds(seconds float64) int32 {
	rate := read(d, func(p *Parameters) float64 { return mColumnRate(&p.M) })
	return int32(math.Round(seconds * rate))
}

// MSecondsFromWidth converts an M width in columns to a display duration.
func (d *Device) MSecondsFromWidth(width int32) float64 {
	rate := read(d, func(p *Parameters) float64 { return mColumnRate(&p.M) })
	return float64(width) / rate
}

// ARFI

func (d *Device) SetARFIEnabled(v bool) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.Enabled = v
		return nil
	}, ParamARFI)
}

func (d *Device) GetARFIEnabled() bool {
	return read(d, func(p *Parameters) bool { return p.ARFI.Enabled })
}

// SetARFIFocalPointDepth sets ARFI focal depth index (0 tracking, 1-5 push).
func (d *Device) SetARFIFocalPointDepth(index int, depth float64) error {
	return d.update(false, func(p *Parameters) error {
		if err := checkIndex("arfi focal depth", index, ARFIFocalZones); err != nil {
			return err
		}
		p.ARFI.FocalPointDepth[index] = depth
		return nil
	}, indexed(ParamARFIFocalDepthPrefix, index))
}

func (d *Device) GetARFIFocalPointDepth(index int) (float64, error) {
	if err := checkIndex("arfi focal depth", index, ARFIFocalZones); err != nil {
		return 0, err
	}
	return read(d, func(p *Parameters) float64 { return p.ARFI.FocalPointDepth[index] }), nil
}

func (d *Device) SetARFIMultiFocalZoneCount(n int32) error {
	return d.update(true, func(p *Parameters) error {
		p.ARFI.MultiFocalZoneCount = n
		return nil
	}, ParamARFIFocalZoneCount)
}

func (d *Device) GetARFIMultiFocalZoneCount() int32 {
	return read(d, func(p *Parameters) int32 { return p.ARFI.MultiFocalZoneCount })
}

// SetARFITxTxCycleCount sets the number of states in the transmit pulse.
func (d *Device) SetARFITxTxCycleCount(v uint16) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.TxTxCycleCount = v
		return nil
	}, ParamARFITxTxCycleCount)
}

func (d *Device) GetARFITxTxCycleCount() uint16 {
	return read(d, func(p *Parameters) uint16 { return p.ARFI.TxTxCycleCount })
}

func (d *Device) SetARFITxTxCycleWidth(v uint8) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.TxTxCycleWidth = v
		return nil
	}, ParamARFITxTxCycleWidth)
}

func (d *Device) GetARFITxTxCycleWidth() uint8 {
	return read(d, func(p *Parameters) uint8 { return p.ARFI.TxTxCycleWidth })
}

// SetARFITxCycleCount sets the number of cycles in the push pulse.
func (d *Device) SetARFITxCycleCount(v uint16) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.TxCycleCount = v
		return nil
	}, ParamARFITxCycleCount)
}

func (d *Device) GetARFITxCycleCount() uint16 {
	return read(d, func(p *Parameters) uint16 { return p.ARFI.TxCycleCount })
}

func (d *Device) SetARFITxCycleWidth(v uint8) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.TxCycleWidth = v
		return nil
	}, ParamARFITxCycleWidth)
}

func (d *Device) GetARFITxCycleWidth() uint8 {
	return read(d, func(p *Parameters) uint8 { return p.ARFI.TxCycleWidth })
}

func (d *Device) SetARFIPushOffset(v int32) error {
	return d.update(false, func(p *Parameters) error {
		p.ARFI.PushOffset = v
		return nil
	}, ParamARFIPushOffset)
}

func (d *Device) GetARFIPushOffset() int32 {
	return read(d, func(p *Parameters) int32 { return p.ARFI.PushOffset })
}

func (d *Device) SetARFIStartSample(v int32) error {
	return d.update(true, func(p *Parameters) error {
		p.ARFI.StartSample = v
		return nil
	}, ParamARFIStartSample)
}

func (d *Device) GetARFIStartSample() int32 {
	return read(d, func(p *Parameters) int32 { return p.ARFI.StartSample })
}

func (d *Device) SetARFIStopSample(v int32) error {
	return d.update(true, func(p *Parameters) error {
		p.ARFI.StopSample = v
		return nil
	}, ParamARFIStopSample)
}

func (d *Device) GetARFIStopSample() int32 {
	return read(d, func(p *Parameters) int32 { return p.ARFI.StopSample })
}

// SetARFIPushConfigurationString sets the push sequence, e.g.
// "1,40,48;1,48,56". Each push is focus index, push line, tracking line.
func (d *Device) SetARFIPushConfigurationString(s string) error {
	pushes, err := ParsePushConfiguration(s)
	if err != nil {
		return err
	}
	if err := d.update(true, func(p *Parameters) error {
		p.ARFI.PushConfiguration = pushes
		return nil
	}, ParamARFIPushConfig); err != nil {
		return err
	}
	monitoring.Debugf("arfi push configuration: %d pushes", len(pushes))
	return nil
}

func (d *Device) GetARFIPushConfigurationString() string {
	return read(d, func(p *Parameters) string { return FormatPushConfiguration(p.ARFI.PushConfiguration) })
}
