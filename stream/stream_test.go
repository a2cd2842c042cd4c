package stream

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hevctools/dovi/nal"
	"github.com/hevctools/dovi/rpu"
)

// testRecord builds a profile 7 FEL record whose level 1 block and DM
// payload carry the given max PQ, so per-picture payloads are
// distinguishable.
func testRecord(maxPQ uint16) *rpu.RPU {
	r := &rpu.RPU{
		RPUType:                   2,
		VDRRPUProfile:             1,
		SeqInfoPresent:            true,
		CoefficientLog2Denom:      23,
		BLBitDepthMinus8:          2,
		ELBitDepthMinus8:          2,
		VDRBitDepthMinus8:         4,
		ELSpatialResamplingFilter: true,
		DMMetadataPresent:         true,
	}
	for c := 0; c < 3; c++ {
		r.PredPivotValue[c] = []uint64{0, 1023}
	}

	m := &rpu.MappingData{}
	for c := 0; c < 3; c++ {
		m.MappingIDC[c] = []uint64{rpu.MappingPolynomial}
		m.MappingParamPredFlag[c] = []bool{false}
		m.NumMappingParamPredictors[c] = []uint64{0}
		m.DiffPredPartIdxMappingMinus1[c] = []uint64{0}
		m.PolyOrderMinus1[c] = []uint64{0}
		m.LinearInterpFlag[c] = []bool{false}
		m.PredLinearInterpValueInt[c] = make([]uint64, 2)
		m.PredLinearInterpValue[c] = make([]uint64, 2)
		m.PolyCoefInt[c] = [][]int64{{0, 1}}
		m.PolyCoef[c] = [][]uint64{{0, 1 << 10}}
		m.MMROrderMinus1[c] = []uint8{0}
		m.MMRConstantInt[c] = []int64{0}
		m.MMRConstant[c] = []uint64{0}
		m.MMRCoefInt[c] = make([][][]int64, 1)
		m.MMRCoef[c] = make([][][]uint64, 1)
	}
	r.Mapping = m

	r.NLQ = &rpu.NLQData{
		NLQParamPredFlag:           make([][3]bool, 1),
		NumNLQParamPredictors:      make([][3]uint64, 1),
		DiffPredPartIdxNLQMinus1:   make([][3]uint64, 1),
		NLQOffset:                  [][3]uint64{{512, 512, 512}},
		VDRInMaxInt:                [][3]uint64{{1, 1, 1}},
		VDRInMax:                   make([][3]uint64, 1),
		LinearDeadzoneSlopeInt:     make([][3]uint64, 1),
		LinearDeadzoneSlope:        make([][3]uint64, 1),
		LinearDeadzoneThresholdInt: make([][3]uint64, 1),
		LinearDeadzoneThreshold:    make([][3]uint64, 1),
	}

	r.DM = &rpu.DMData{
		SceneRefreshFlag: 1,
		SignalEOTF:       65535,
		SignalBitDepth:   12,
		SourceMaxPQ:      maxPQ,
		ExtBlocks: []rpu.ExtMetadataBlock{
			&rpu.Level1Block{MaxPQ: maxPQ, AvgPQ: maxPQ / 4},
			&rpu.Level5Block{ActiveAreaTopOffset: 276, ActiveAreaBottomOffset: 276},
		},
	}
	return r
}

func testPayload(t *testing.T, maxPQ uint16) []byte {
	t.Helper()
	b, err := testRecord(maxPQ).MarshalBinary()
	require.NoError(t, err)
	return b
}

// buildDualLayerStream assembles a single-track dual-layer Annex B stream
// with one access unit per RPU payload: AUD, first slice, continuation
// slice, a wrapped enhancement-layer unit, and the RPU.
func buildDualLayerStream(payloads [][]byte) []byte {
	var buf bytes.Buffer
	for _, p := range payloads {
		buf.Write([]byte{0, 0, 0, 1, 0x46, 0x01, 0x10})                    // AUD
		buf.Write([]byte{0, 0, 0, 1, 0x26, 0x01, 0x80, 0x55})              // first slice
		buf.Write([]byte{0, 0, 1, 0x02, 0x01, 0x40, 0x99})                 // continuation slice
		buf.Write([]byte{0, 0, 0, 1, 0x7E, 0x01, 0x26, 0x01, 0x80, 0x11}) // wrapped EL slice
		buf.Write([]byte{0, 0, 0, 1, 0x7C, 0x01})                          // RPU
		buf.Write(p)
	}
	return buf.Bytes()
}

// buildBaseStream assembles a base-layer-only stream with the given
// number of access units.
func buildBaseStream(pictures int) []byte {
	var buf bytes.Buffer
	for i := 0; i < pictures; i++ {
		buf.Write([]byte{0, 0, 0, 1, 0x46, 0x01, 0x10})
		buf.Write([]byte{0, 0, 0, 1, 0x26, 0x01, 0x80, byte(i)})
		buf.Write([]byte{0, 0, 1, 0x02, 0x01, 0x40, byte(i)})
	}
	return buf.Bytes()
}

// corruptCRC returns a copy of the payload with a stored CRC32 byte
// flipped, verified to parse as a checksum mismatch rather than a
// structural error.
func corruptCRC(t *testing.T, p []byte) []byte {
	t.Helper()
	for i := len(p) - 2; i >= len(p)-6 && i > 0; i-- {
		for _, mask := range []byte{0x01, 0x40, 0xA5} {
			c := append([]byte(nil), p...)
			c[i] ^= mask
			if _, err := rpu.Parse(c); errors.Is(err, rpu.ErrCRCMismatch) {
				return c
			}
		}
	}
	t.Fatal("could not corrupt payload checksum")
	return nil
}

func rpuPayloads(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var payloads [][]byte
	for _, u := range nal.Parse(data) {
		if u.Class() == nal.ClassRPU {
			payloads = append(payloads, u.Data[nal.ELWrapperLen:])
		}
	}
	return payloads
}

func TestExtract(t *testing.T) {
	t.Parallel()
	p0 := testPayload(t, 3079)
	p1 := testPayload(t, 2048)
	input := buildDualLayerStream([][]byte{p0, p1})

	var out bytes.Buffer
	res, err := Extract(context.Background(), input, &out, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pictures)
	assert.Empty(t, res.Warnings)

	var want bytes.Buffer
	want.Write(nal.StartCode(4))
	want.Write(p0)
	want.Write(nal.StartCode(4))
	want.Write(p1)
	assert.Equal(t, want.Bytes(), out.Bytes())
}

func TestExtractNoRPUs(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	res, err := Extract(context.Background(), buildBaseStream(3), &out, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pictures)
	assert.Zero(t, out.Len())
}

func TestConvertCopyIsPassthrough(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079), testPayload(t, 2048)})

	var out bytes.Buffer
	res, err := Convert(context.Background(), input, &out, Options{Mode: ModeCopy})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pictures)
	assert.Equal(t, input, out.Bytes(), "copy mode must reproduce the stream byte-exactly")
}

func TestConvertMEL(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079), testPayload(t, 2048)})

	var out bytes.Buffer
	res, err := Convert(context.Background(), input, &out, Options{Mode: ModeMEL})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pictures)
	assert.Empty(t, res.Warnings)

	inUnits := nal.Parse(input)
	outUnits := nal.Parse(out.Bytes())
	require.Len(t, outUnits, len(inUnits))

	for i, p := range rpuPayloads(t, out.Bytes()) {
		rec, err := rpu.Parse(p)
		require.NoError(t, err, "picture %d", i)
		assert.True(t, rec.MELCompatible(), "picture %d still carries NLQ data", i)
		assert.Equal(t, rpu.Profile7MEL, rec.Profile(), "picture %d", i)
	}

	// Non-RPU units pass through untouched.
	for i := range outUnits {
		if outUnits[i].Class() != nal.ClassRPU {
			assert.Equal(t, inUnits[i].Data, outUnits[i].Data, "unit %d", i)
		}
	}
}

func TestConvertMELWarnsWhenAlreadyMEL(t *testing.T) {
	t.Parallel()
	rec := testRecord(3079)
	rec.StripNLQ()
	p, err := rec.MarshalBinary()
	require.NoError(t, err)

	var out bytes.Buffer
	res, cerr := Convert(context.Background(), buildDualLayerStream([][]byte{p}), &out, Options{Mode: ModeMEL})
	require.NoError(t, cerr)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], rpu.ErrUnsupportedProfile)
	assert.Equal(t, 0, res.Warnings[0].Frame)
}

func TestConvertDropEL(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079)})

	var out bytes.Buffer
	_, err := Convert(context.Background(), input, &out, Options{Mode: ModeProfile81, DropEL: true})
	require.NoError(t, err)

	for _, u := range nal.Parse(out.Bytes()) {
		assert.NotEqual(t, nal.ClassEL, u.Class(), "enhancement-layer unit survived DropEL")
	}

	p := rpuPayloads(t, out.Bytes())
	require.Len(t, p, 1)
	rec, err := rpu.Parse(p[0])
	require.NoError(t, err)
	assert.Equal(t, rpu.Profile8, rec.Profile())
}

func TestConvertCrop(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079)})

	var out bytes.Buffer
	_, err := Convert(context.Background(), input, &out, Options{Crop: true})
	require.NoError(t, err)

	p := rpuPayloads(t, out.Bytes())
	require.Len(t, p, 1)
	rec, err := rpu.Parse(p[0])
	require.NoError(t, err)
	area := rec.DM.ActiveArea()
	require.NotNil(t, area)
	assert.True(t, area.FullFrame())
}

func TestConvertEdits(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079), testPayload(t, 3079)})
	opts := Options{
		Edits: []rpu.Edit{
			{Field: rpu.FieldMaxPQ, Range: rpu.FrameRange{Start: 1, End: 1}, Value: 1000},
		},
	}

	var out bytes.Buffer
	_, err := Convert(context.Background(), input, &out, opts)
	require.NoError(t, err)

	payloads := rpuPayloads(t, out.Bytes())
	require.Len(t, payloads, 2)

	rec0, err := rpu.Parse(payloads[0])
	require.NoError(t, err)
	rec1, err := rpu.Parse(payloads[1])
	require.NoError(t, err)

	l1 := rec0.DM.FirstLevel(rpu.ExtBlockLevel1).(*rpu.Level1Block)
	assert.Equal(t, uint16(3079), l1.MaxPQ, "frame 0 must be untouched")
	l1 = rec1.DM.FirstLevel(rpu.ExtBlockLevel1).(*rpu.Level1Block)
	assert.Equal(t, uint16(1000), l1.MaxPQ)
}

func TestConvertStrictCRC(t *testing.T) {
	t.Parallel()
	bad := corruptCRC(t, testPayload(t, 3079))
	input := buildDualLayerStream([][]byte{bad})

	var out bytes.Buffer
	_, err := Convert(context.Background(), input, &out, Options{StrictCRC: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, rpu.ErrCRCMismatch)

	// Without strict checking the mismatch is a warning and the stream
	// still converts.
	out.Reset()
	res, err := Convert(context.Background(), input, &out, Options{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], rpu.ErrCRCMismatch)
	assert.Equal(t, input, out.Bytes())
}

func TestConvertMalformedPayloadPassesThrough(t *testing.T) {
	t.Parallel()
	// A garbage RPU payload: parse fails structurally, the original bytes
	// survive, and the failure is reported as a warning.
	bad := []byte{0x19, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x80}
	input := buildDualLayerStream([][]byte{bad})

	var out bytes.Buffer
	res, err := Convert(context.Background(), input, &out, Options{Mode: ModeRewrite})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)

	payloads := rpuPayloads(t, out.Bytes())
	require.Len(t, payloads, 1)
	assert.Equal(t, bad, payloads[0])
}

func TestDemux(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079), testPayload(t, 2048)})

	var base, enh bytes.Buffer
	res, err := Demux(context.Background(), input, &base, &enh, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pictures)

	baseUnits := nal.Parse(base.Bytes())
	enhUnits := nal.Parse(enh.Bytes())

	// Every input unit lands in exactly one substream.
	assert.Len(t, baseUnits, 6)
	assert.Len(t, enhUnits, 4)

	for _, u := range baseUnits {
		c := u.Class()
		assert.NotEqual(t, nal.ClassRPU, c)
		assert.NotEqual(t, nal.ClassEL, c)
	}

	// Wrapped EL units come out unwrapped as plain slices.
	var rpuCount, sliceCount int
	for _, u := range enhUnits {
		switch u.Class() {
		case nal.ClassRPU:
			rpuCount++
		case nal.ClassSlice:
			sliceCount++
			assert.Equal(t, []byte{0x26, 0x01, 0x80, 0x11}, u.Data)
		}
	}
	assert.Equal(t, 2, rpuCount)
	assert.Equal(t, 2, sliceCount)
}

func TestInject(t *testing.T) {
	t.Parallel()
	p0 := testPayload(t, 3079)
	p1 := testPayload(t, 2048)

	var rpus bytes.Buffer
	_, err := Extract(context.Background(), buildDualLayerStream([][]byte{p0, p1}), &rpus, Options{})
	require.NoError(t, err)

	base := buildBaseStream(2)
	var out bytes.Buffer
	res, err := Inject(context.Background(), base, rpus.Bytes(), &out, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pictures)

	units := nal.Parse(out.Bytes())
	require.Len(t, units, 8)

	// Each RPU sits immediately before the first slice of its picture.
	for i, u := range units {
		if u.Class() == nal.ClassRPU {
			require.Less(t, i+1, len(units))
			assert.True(t, units[i+1].FirstSliceInPic(), "RPU at %d not followed by a picture-opening slice", i)
		}
	}

	// Extracting from the injected stream recovers the same payloads.
	var again bytes.Buffer
	_, err = Extract(context.Background(), out.Bytes(), &again, Options{})
	require.NoError(t, err)
	assert.Equal(t, rpus.Bytes(), again.Bytes())
}

func TestInjectCountMismatch(t *testing.T) {
	t.Parallel()
	var rpus bytes.Buffer
	_, err := Extract(context.Background(), buildDualLayerStream([][]byte{testPayload(t, 3079)}), &rpus, Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = Inject(context.Background(), buildBaseStream(2), rpus.Bytes(), &out, Options{})
	require.ErrorIs(t, err, ErrCountMismatch)
	assert.Zero(t, out.Len(), "nothing may be written on a count mismatch")
}

func TestParallelMatchesSequential(t *testing.T) {
	t.Parallel()
	var payloads [][]byte
	for i := 0; i < 8; i++ {
		payloads = append(payloads, testPayload(t, uint16(1000+i*100)))
	}
	input := buildDualLayerStream(payloads)

	var seq, par bytes.Buffer
	_, err := Convert(context.Background(), input, &seq, Options{Mode: ModeRewrite, Workers: 1})
	require.NoError(t, err)
	_, err = Convert(context.Background(), input, &par, Options{Mode: ModeRewrite, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, seq.Bytes(), par.Bytes())
}

func TestInfo(t *testing.T) {
	t.Parallel()
	input := buildDualLayerStream([][]byte{testPayload(t, 3079), testPayload(t, 2048)})

	s, err := Info(input, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Frame)
	assert.Equal(t, "7 (FEL)", s.Profile)
	assert.Equal(t, uint16(2048), s.SourceMaxPQ)
	require.NotNil(t, s.Brightness)
	assert.Equal(t, uint16(2048), s.Brightness.MaxPQ)

	_, err = Info(input, 5, Options{})
	require.Error(t, err)

	_, err = Info(input, -1, Options{})
	require.Error(t, err)
}

func TestModeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "copy", ModeCopy.String())
	assert.Equal(t, "parse-and-rewrite", ModeRewrite.String())
	assert.Equal(t, "mel-compatible", ModeMEL.String())
	assert.Equal(t, "profile-81-compatible", ModeProfile81.String())
}
