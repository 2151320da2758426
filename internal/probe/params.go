package probe

import (
	"fmt"
	"strconv"
)

// Table sizes of the indexed parameters.
const (
	TGCPoints      = 8
	BFocalZones    = 4
	ARFIFocalZones = 6
)

// Compression maps raw envelope values to 8-bit intensity: log below Knee,
// linear above it.
type Compression struct {
	MinValue   uint16 // noise floor
	MaxValue   uint16 // typical high value
	Knee       uint16 // log/linear threshold
	OutputKnee uint8  // output value at Knee
}

// SharedParams are meaningful in every mode.
type SharedParams struct {
	TransmitFrequencyMHz         float64
	Voltage                      uint8
	ScanDepthMm                  float64
	SSDecimation                 uint8
	TimeGainCompensation         [TGCPoints]float64
	FirstGainValue               float64
	FocalPointDepth              [BFocalZones]float64
	BMultiFocalZoneCount         int32
	BFrameRateLimit              int32
	BHarmonicEnabled             bool
	BRFEnabled                   bool
	SpatialCompoundEnabled       bool
	SpatialCompoundAngle         float64
	SpatialCompoundCount         int32
	TransducerID                 string
	UseDeviceFrameReconstruction bool
	Compression                  Compression
}

// MModeParams only take effect in M mode.
type MModeParams struct {
	Enabled           bool
	RevolvingEnabled  bool
	PRF               int32 // Hz
	LineIndex         int32
	Width             int32 // columns
	WidthLines        int32
	AcousticLineCount int32
	Depth             int32 // mm, 0 follows the scan depth
}

// ARFIParams only take effect in ARFI mode.
type ARFIParams struct {
	Enabled bool
	// index 0 is the tracking depth, 1-5 the push depths
	FocalPointDepth     [ARFIFocalZones]float64
	MultiFocalZoneCount int32
	TxTxCycleCount      uint16
	TxTxCycleWidth      uint8
	TxCycleCount        uint16
	TxCycleWidth        uint8
	PushOffset          int32
	StartSample         int32
	StopSample          int32
	PushConfiguration   []PushTriple
}

// Parameters is the complete acquisition state.
type Parameters struct {
	Mode            Mode
	ExtraSourceMode Mode
	Shared          SharedParams
	M               MModeParams
	ARFI            ARFIParams
}

// DefaultParameters returns the power-on parameter set.
func DefaultParameters() Parameters {
	pushes, _ := ParsePushConfiguration(DefaultPushConfiguration)
	p := Parameters{
		Mode:            ModeB,
		ExtraSourceMode: ModeNone,
		Shared: SharedParams{
			TransmitFrequencyMHz:         10.9,
			Voltage:                      40,
			ScanDepthMm:                  26,
			SSDecimation:                 2,
			FirstGainValue:               15,
			FocalPointDepth:              [BFocalZones]float64{5, 10, 15, 20},
			BMultiFocalZoneCount:         1,
			SpatialCompoundAngle:         10,
			UseDeviceFrameReconstruction: true,
			Compression: Compression{
				MinValue:   16,
				MaxValue:   16384,
				Knee:       4096,
				OutputKnee: 64,
			},
		},
		M: MModeParams{
			PRF:        100,
			LineIndex:  60,
			Width:      256,
			WidthLines: 256,
		},
		ARFI: ARFIParams{
			FocalPointDepth:     [ARFIFocalZones]float64{15, 10, 15, 20, 25, 30},
			MultiFocalZoneCount: 1,
			TxTxCycleCount:      2,
			TxTxCycleWidth:      10,
			TxCycleCount:        4096,
			TxCycleWidth:        15,
			PushOffset:          -12,
			StartSample:         0,
			StopSample:          256,
			PushConfiguration:   pushes,
		},
	}
	for i := range p.Shared.TimeGainCompensation {
		p.Shared.TimeGainCompensation[i] = 20
	}
	return p
}

// Clone returns a deep copy.
func (p Parameters) Clone() Parameters {
	p.ARFI.PushConfiguration = append([]PushTriple(nil), p.ARFI.PushConfiguration...)
	return p
}

// checkRange rejects v outside [lo, hi]. NaN fails every comparison, so it
// is rejected too.
func checkRange[T int | int32 | float64](name string, v, lo, hi T) error {
	if !(v >= lo && v <= hi) {
		return fmt.Errorf("%w: %s %v outside [%v, %v]", ErrValidation, name, v, lo, hi)
	}
	return nil
}

func checkIndex(name string, i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %s index %d outside [0, %d]", ErrValidation, name, i, n-1)
	}
	return nil
}

// Validate checks every field and the cross-field invariants.
func (p *Parameters) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: mode %v", ErrValidation, p.Mode)
	}
	if p.ExtraSourceMode != ModeNone && !p.ExtraSourceMode.Valid() {
		return fmt.Errorf("%w: extra source mode %v", ErrValidation, p.ExtraSourceMode)
	}

	s := &p.Shared
	if !(s.TransmitFrequencyMHz > 0 && s.TransmitFrequencyMHz <= 40) {
		return fmt.Errorf("%w: transmit frequency %v MHz outside (0, 40]", ErrValidation, s.TransmitFrequencyMHz)
	}
	if err := checkRange("scan depth mm", s.ScanDepthMm, 1, 300); err != nil {
		return err
	}
	if err := checkRange("decimation", int(s.SSDecimation), 1, 16); err != nil {
		return err
	}
	for i, v := range s.TimeGainCompensation {
		if err := checkRange(fmt.Sprintf("tgc[%d]", i), v, 0, 40); err != nil {
			return err
		}
	}
	if err := checkRange("first gain", s.FirstGainValue, 0, 40); err != nil {
		return err
	}
	if err := checkRange("b focal zone count", s.BMultiFocalZoneCount, 1, BFocalZones); err != nil {
		return err
	}
	for i, v := range s.FocalPointDepth {
		if err := checkRange(fmt.Sprintf("focal depth[%d]", i), v, 0, 300); err != nil {
			return err
		}
		if i > 0 && i < int(s.BMultiFocalZoneCount) && v < s.FocalPointDepth[i-1] {
			return fmt.Errorf("%w: focal depth[%d] %v shallower than focal depth[%d] %v",
				ErrValidation, i, v, i-1, s.FocalPointDepth[i-1])
		}
	}
	if err := checkRange("b frame rate limit", s.BFrameRateLimit, 0, 1000); err != nil {
		return err
	}
	if err := checkRange("spatial compound angle", s.SpatialCompoundAngle, 0, 45); err != nil {
		return err
	}
	if err := checkRange("spatial compound count", s.SpatialCompoundCount, 0, 16); err != nil {
		return err
	}
	c := s.Compression
	if c.MinValue < 1 {
		return fmt.Errorf("%w: compression min %d below 1", ErrValidation, c.MinValue)
	}
	if !(c.MinValue < c.Knee && c.Knee < c.MaxValue) {
		return fmt.Errorf("%w: compression needs min < knee < max, got %d/%d/%d",
			ErrValidation, c.MinValue, c.Knee, c.MaxValue)
	}
	if c.OutputKnee < 1 || c.OutputKnee > 254 {
		return fmt.Errorf("%w: compression output knee %d outside [1, 254]", ErrValidation, c.OutputKnee)
	}
	td, err := LookupTransducer(s.TransducerID)
	if err != nil {
		return err
	}
	lines := int32(td.Elements)

	m := &p.M
	if err := checkRange("m prf", m.PRF, 1, 10000); err != nil {
		return err
	}
	if err := checkRange("m line index", m.LineIndex, 0, lines-1); err != nil {
		return err
	}
	if err := checkRange("m width", m.Width, 16, 4096); err != nil {
		return err
	}
	if err := checkRange("m width lines", m.WidthLines, 1, 4096); err != nil {
		return err
	}
	if err := checkRange("m acoustic line count", m.AcousticLineCount, 0, 512); err != nil {
		return err
	}
	if err := checkRange("m depth", m.Depth, 0, 300); err != nil {
		return err
	}

	a := &p.ARFI
	for i, v := range a.FocalPointDepth {
		if err := checkRange(fmt.Sprintf("arfi focal depth[%d]", i), v, 0, 300); err != nil {
			return err
		}
	}
	if err := checkRange("arfi focal zone count", a.MultiFocalZoneCount, 1, ARFIFocalZones); err != nil {
		return err
	}
	if err := checkRange("arfi tx tx cycle count", int(a.TxTxCycleCount), 1, 16); err != nil {
		return err
	}
	if err := checkRange("arfi tx tx cycle width", int(a.TxTxCycleWidth), 1, 255); err != nil {
		return err
	}
	if err := checkRange("arfi tx cycle count", int(a.TxCycleCount), 1, 65535); err != nil {
		return err
	}
	if err := checkRange("arfi tx cycle width", int(a.TxCycleWidth), 1, 255); err != nil {
		return err
	}
	if err := checkRange("arfi push offset", a.PushOffset, -64, 64); err != nil {
		return err
	}
	if err := checkRange("arfi start sample", a.StartSample, 0, 4095); err != nil {
		return err
	}
	if err := checkRange("arfi stop sample", a.StopSample, a.StartSample+1, 4096); err != nil {
		return err
	}
	return validatePushes(a.PushConfiguration, int(lines))
}

// Transport parameter names.
const (
	ParamMode                 = "Mode"
	ParamExtraSourceMode      = "ExtraSourceMode"
	ParamTransmitFrequency    = "TxFrequency"
	ParamVoltage              = "Voltage"
	ParamScanDepth            = "ScanDepth"
	ParamDecimation           = "SSDecimation"
	ParamTGCPrefix            = "TGC"
	ParamFirstGain            = "FirstGain"
	ParamFocalDepthPrefix     = "FocalDepth"
	ParamBFocalZoneCount      = "BMultiFocalZoneCount"
	ParamBFrameRateLimit      = "BFrameRateLimit"
	ParamBHarmonic            = "BHarmonic"
	ParamBRF                  = "BRF"
	ParamSCEnabled            = "SCEnabled"
	ParamSCAngle              = "SCAngle"
	ParamSCCount              = "SCCount"
	ParamTransducerID         = "TransducerID"
	ParamDeviceReconstruction = "DeviceReconstruction"
	ParamMMode                = "MMode"
	ParamMRevolving           = "MRevolving"
	ParamMPRF                 = "MPRF"
	ParamMLineIndex           = "MLineIndex"
	ParamMWidth               = "MWidth"
	ParamMWidthLines          = "MWidthLines"
	ParamMAcousticLineCount   = "MAcousticLineCount"
	ParamMDepth               = "MDepth"
	ParamARFI                 = "ARFI"
	ParamARFIFocalDepthPrefix = "ARFIFocalDepth"
	ParamARFIFocalZoneCount   = "ARFIMultiFocalZoneCount"
	ParamARFITxTxCycleCount   = "ARFITxTxCycleCount"
	ParamARFITxTxCycleWidth   = "ARFITxTxCycleWidth"
	ParamARFITxCycleCount     = "ARFITxCycleCount"
	ParamARFITxCycleWidth     = "ARFITxCycleWidth"
	ParamARFIPushOffset       = "ARFIPushOffset"
	ParamARFIStartSample      = "ARFIStartSample"
	ParamARFIStopSample       = "ARFIStopSample"
	ParamARFIPushConfig       = "ARFIPushConfig"

	// read-only, queried at connect
	ParamFPGARev    = "FPGARev"
	ParamARFIIsX8BF = "ARFIIsX8BF"
)

type paramValue struct {
	name  string
	value string
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
func formatInt[T int | int32 | uint8 | uint16](v T) string {
	return strconv.FormatInt(int64(v), 10)
}

func indexed(prefix string, i int) string { return prefix + strconv.Itoa(i) }

// values lists every device-side parameter in the order it is pushed at
// connect. Host-only settings (compression) are not included.
func (p *Parameters) values() []paramValue {
	s, m, a := &p.Shared, &p.M, &p.ARFI
	v := []paramValue{
		{ParamMode, p.Mode.String()},
		{ParamExtraSourceMode, p.ExtraSourceMode.String()},
		{ParamTransducerID, s.TransducerID},
		{ParamTransmitFrequency, formatFloat(s.TransmitFrequencyMHz)},
		{ParamVoltage, formatInt(s.Voltage)},
		{ParamScanDepth, formatFloat(s.ScanDepthMm)},
		{ParamDecimation, formatInt(s.SSDecimation)},
		{ParamFirstGain, formatFloat(s.FirstGainValue)},
	}
	for i, g := range s.TimeGainCompensation {
		v = append(v, paramValue{indexed(ParamTGCPrefix, i), formatFloat(g)})
	}
	for i, d := range s.FocalPointDepth {
		v = append(v, paramValue{indexed(ParamFocalDepthPrefix, i), formatFloat(d)})
	}
	v = append(v,
		paramValue{ParamBFocalZoneCount, formatInt(s.BMultiFocalZoneCount)},
		paramValue{ParamBFrameRateLimit, formatInt(s.BFrameRateLimit)},
		paramValue{ParamBHarmonic, strconv.FormatBool(s.BHarmonicEnabled)},
		paramValue{ParamBRF, strconv.FormatBool(s.BRFEnabled)},
		paramValue{ParamSCEnabled, strconv.FormatBool(s.SpatialCompoundEnabled)},
		paramValue{ParamSCAngle, formatFloat(s.SpatialCompoundAngle)},
		paramValue{ParamSCCount, formatInt(s.SpatialCompoundCount)},
		paramValue{ParamDeviceReconstruction, strconv.FormatBool(s.UseDeviceFrameReconstruction)},
		paramValue{ParamMMode, strconv.FormatBool(m.Enabled)},
		paramValue{ParamMRevolving, strconv.FormatBool(m.RevolvingEnabled)},
		paramValue{ParamMPRF, formatInt(m.PRF)},
		paramValue{ParamMLineIndex, formatInt(m.LineIndex)},
		paramValue{ParamMWidth, formatInt(m.Width)},
		paramValue{ParamMWidthLines, formatInt(m.WidthLines)},
		paramValue{ParamMAcousticLineCount, formatInt(m.AcousticLineCount)},
		paramValue{ParamMDepth, formatInt(m.Depth)},
		paramValue{ParamARFI, strconv.FormatBool(a.Enabled)},
	)
	for i, d := range a.FocalPointDepth {
		v = append(v, paramValue{indexed(ParamARFIFocalDepthPrefix, i), formatFloat(d)})
	}
	v = append(v,
		paramValue{ParamARFIFocalZoneCount, formatInt(a.MultiFocalZoneCount)},
		paramValue{ParamARFITxTxCycleCount, formatInt(a.TxTxCycleCount)},
		paramValue{ParamARFITxTxCycleWidth, formatInt(a.TxTxCycleWidth)},
		paramValue{ParamARFITxCycleCount, formatInt(a.TxCycleCount)},
		paramValue{ParamARFITxCycleWidth, formatInt(a.TxCycleWidth)},
		paramValue{ParamARFIPushOffset, formatInt(a.PushOffset)},
		paramValue{ParamARFIStartSample, formatInt(a.StartSample)},
		paramValue{ParamARFIStopSample, formatInt(a.StopSample)},
		paramValue{ParamARFIPushConfig, FormatPushConfiguration(a.PushConfiguration)},
	)
	return v
}

// lookup returns the named values, in the order given.
func (p *Parameters) lookup(names ...string) []paramValue {
	if len(names) == 0 {
		return nil
	}
	all := p.values()
	out := make([]paramValue, 0, len(names))
	for _, n := range names {
		for _, pv := range all {
			if pv.name == n {
				out = append(out, pv)
				break
			}
		}
	}
	return out
}
