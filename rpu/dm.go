package rpu

import "fmt"

// Extension block levels modeled by this package. Any other level is
// round-tripped opaquely.
const (
	ExtBlockLevel1 uint8 = 1 // content brightness range
	ExtBlockLevel2 uint8 = 2 // per-target trim pass
	ExtBlockLevel5 uint8 = 5 // active area window
	ExtBlockLevel6 uint8 = 6 // mastering display / content light
)

// ExtMetadataBlock is the interface for display-management extension
// blocks. Each block decodes and encodes its own payload; the container
// handles the length/level framing and declared-length padding.
type ExtMetadataBlock interface {
	Level() uint8
	payloadBits() int
	decodePayload(br *bitReader) error
	encodePayload(bw *bitWriter)
}

// DMData holds the display-management metadata payload (vdr_dm_data).
type DMData struct {
	AffectedDMMetadataID uint64
	CurrentDMMetadataID  uint64
	SceneRefreshFlag     uint64

	YCCToRGBCoef   [9]int16
	YCCToRGBOffset [3]uint32
	RGBToLMSCoef   [9]int16

	SignalEOTF          uint16
	SignalEOTFParam0    uint16
	SignalEOTFParam1    uint16
	SignalEOTFParam2    uint32
	SignalBitDepth      uint8
	SignalColorSpace    uint8
	SignalChromaFormat  uint8
	SignalFullRangeFlag uint8
	SourceMinPQ         uint16
	SourceMaxPQ         uint16
	SourceDiagonal      uint16

	ExtBlocks []ExtMetadataBlock

	// alignBits preserves the padding between num_ext_blocks and the
	// byte-aligned first block.
	alignBits bitString
}

// Level1Block carries min/max/avg content brightness in 12-bit PQ.
type Level1Block struct {
	MinPQ uint16
	MaxPQ uint16
	AvgPQ uint16

	pad bitString
}

func (b *Level1Block) Level() uint8     { return ExtBlockLevel1 }
func (b *Level1Block) payloadBits() int { return 36 }

func (b *Level1Block) decodePayload(br *bitReader) error {
	fields := []*uint16{&b.MinPQ, &b.MaxPQ, &b.AvgPQ}
	for _, f := range fields {
		v, err := br.readBits(12)
		if err != nil {
			return err
		}
		*f = uint16(v)
	}
	return nil
}

func (b *Level1Block) encodePayload(bw *bitWriter) {
	bw.writeBits(uint64(b.MinPQ), 12)
	bw.writeBits(uint64(b.MaxPQ), 12)
	bw.writeBits(uint64(b.AvgPQ), 12)
}

// Level2Block carries a trim pass for one target display.
type Level2Block struct {
	TargetMaxPQ        uint16
	TrimSlope          uint16
	TrimOffset         uint16
	TrimPower          uint16
	TrimChromaWeight   uint16
	TrimSaturationGain uint16
	MSWeight           int16

	pad bitString
}

func (b *Level2Block) Level() uint8     { return ExtBlockLevel2 }
func (b *Level2Block) payloadBits() int { return 85 }

func (b *Level2Block) decodePayload(br *bitReader) error {
	fields := []*uint16{
		&b.TargetMaxPQ, &b.TrimSlope, &b.TrimOffset,
		&b.TrimPower, &b.TrimChromaWeight, &b.TrimSaturationGain,
	}
	for _, f := range fields {
		v, err := br.readBits(12)
		if err != nil {
			return err
		}
		*f = uint16(v)
	}
	v, err := br.readBits(13)
	if err != nil {
		return err
	}
	// ms_weight is a 13-bit signed value.
	b.MSWeight = int16(v<<3) >> 3
	return nil
}

func (b *Level2Block) encodePayload(bw *bitWriter) {
	bw.writeBits(uint64(b.TargetMaxPQ), 12)
	bw.writeBits(uint64(b.TrimSlope), 12)
	bw.writeBits(uint64(b.TrimOffset), 12)
	bw.writeBits(uint64(b.TrimPower), 12)
	bw.writeBits(uint64(b.TrimChromaWeight), 12)
	bw.writeBits(uint64(b.TrimSaturationGain), 12)
	bw.writeBits(uint64(uint16(b.MSWeight))&0x1FFF, 13)
}

// Level5Block carries the active-area window as offsets from the frame
// edges. All-zero offsets mean the whole frame is active.
type Level5Block struct {
	ActiveAreaLeftOffset   uint16
	ActiveAreaRightOffset  uint16
	ActiveAreaTopOffset    uint16
	ActiveAreaBottomOffset uint16

	pad bitString
}

func (b *Level5Block) Level() uint8     { return ExtBlockLevel5 }
func (b *Level5Block) payloadBits() int { return 52 }

func (b *Level5Block) decodePayload(br *bitReader) error {
	fields := []*uint16{
		&b.ActiveAreaLeftOffset, &b.ActiveAreaRightOffset,
		&b.ActiveAreaTopOffset, &b.ActiveAreaBottomOffset,
	}
	for _, f := range fields {
		v, err := br.readBits(13)
		if err != nil {
			return err
		}
		*f = uint16(v)
	}
	return nil
}

func (b *Level5Block) encodePayload(bw *bitWriter) {
	bw.writeBits(uint64(b.ActiveAreaLeftOffset), 13)
	bw.writeBits(uint64(b.ActiveAreaRightOffset), 13)
	bw.writeBits(uint64(b.ActiveAreaTopOffset), 13)
	bw.writeBits(uint64(b.ActiveAreaBottomOffset), 13)
}

// FullFrame reports whether the window covers the whole frame.
func (b *Level5Block) FullFrame() bool {
	return b.ActiveAreaLeftOffset == 0 && b.ActiveAreaRightOffset == 0 &&
		b.ActiveAreaTopOffset == 0 && b.ActiveAreaBottomOffset == 0
}

// Level6Block carries ST 2086 mastering display and content light levels.
type Level6Block struct {
	MaxDisplayMasteringLuminance uint16
	MinDisplayMasteringLuminance uint16
	MaxContentLightLevel         uint16
	MaxFrameAverageLightLevel    uint16

	pad bitString
}

func (b *Level6Block) Level() uint8     { return ExtBlockLevel6 }
func (b *Level6Block) payloadBits() int { return 64 }

func (b *Level6Block) decodePayload(br *bitReader) error {
	fields := []*uint16{
		&b.MaxDisplayMasteringLuminance, &b.MinDisplayMasteringLuminance,
		&b.MaxContentLightLevel, &b.MaxFrameAverageLightLevel,
	}
	for _, f := range fields {
		v, err := br.readBits(16)
		if err != nil {
			return err
		}
		*f = uint16(v)
	}
	return nil
}

func (b *Level6Block) encodePayload(bw *bitWriter) {
	bw.writeBits(uint64(b.MaxDisplayMasteringLuminance), 16)
	bw.writeBits(uint64(b.MinDisplayMasteringLuminance), 16)
	bw.writeBits(uint64(b.MaxContentLightLevel), 16)
	bw.writeBits(uint64(b.MaxFrameAverageLightLevel), 16)
}

// OpaqueBlock preserves an extension block of an unmodeled level as its
// raw payload bits. The tool must not silently destroy metadata it does
// not understand.
type OpaqueBlock struct {
	BlockLevel uint8
	Raw        bitString
}

func (b *OpaqueBlock) Level() uint8     { return b.BlockLevel }
func (b *OpaqueBlock) payloadBits() int { return b.Raw.n }

func (b *OpaqueBlock) decodePayload(br *bitReader) error { return nil }

func (b *OpaqueBlock) encodePayload(bw *bitWriter) {
	b.Raw.write(bw)
}

func newExtMetadataBlock(level uint8) ExtMetadataBlock {
	switch level {
	case ExtBlockLevel1:
		return &Level1Block{}
	case ExtBlockLevel2:
		return &Level2Block{}
	case ExtBlockLevel5:
		return &Level5Block{}
	case ExtBlockLevel6:
		return &Level6Block{}
	default:
		return &OpaqueBlock{BlockLevel: level}
	}
}

func parseDM(br *bitReader) (*DMData, error) {
	d := &DMData{}
	var err error

	if d.AffectedDMMetadataID, err = br.readUE(); err != nil {
		return nil, err
	}
	if d.CurrentDMMetadataID, err = br.readUE(); err != nil {
		return nil, err
	}
	if d.SceneRefreshFlag, err = br.readUE(); err != nil {
		return nil, err
	}

	for i := range d.YCCToRGBCoef {
		v, err := br.readBits(16)
		if err != nil {
			return nil, err
		}
		d.YCCToRGBCoef[i] = int16(v)
	}
	for i := range d.YCCToRGBOffset {
		v, err := br.readBits(32)
		if err != nil {
			return nil, err
		}
		d.YCCToRGBOffset[i] = uint32(v)
	}
	for i := range d.RGBToLMSCoef {
		v, err := br.readBits(16)
		if err != nil {
			return nil, err
		}
		d.RGBToLMSCoef[i] = int16(v)
	}

	fixed := []struct {
		bits int
		set  func(uint64)
	}{
		{16, func(v uint64) { d.SignalEOTF = uint16(v) }},
		{16, func(v uint64) { d.SignalEOTFParam0 = uint16(v) }},
		{16, func(v uint64) { d.SignalEOTFParam1 = uint16(v) }},
		{32, func(v uint64) { d.SignalEOTFParam2 = uint32(v) }},
		{5, func(v uint64) { d.SignalBitDepth = uint8(v) }},
		{2, func(v uint64) { d.SignalColorSpace = uint8(v) }},
		{2, func(v uint64) { d.SignalChromaFormat = uint8(v) }},
		{2, func(v uint64) { d.SignalFullRangeFlag = uint8(v) }},
		{12, func(v uint64) { d.SourceMinPQ = uint16(v) }},
		{12, func(v uint64) { d.SourceMaxPQ = uint16(v) }},
		{10, func(v uint64) { d.SourceDiagonal = uint16(v) }},
	}
	for _, f := range fixed {
		v, err := br.readBits(f.bits)
		if err != nil {
			return nil, err
		}
		f.set(v)
	}

	numBlocks, err := br.readUE()
	if err != nil {
		return nil, err
	}
	if numBlocks > maxExtBlocks {
		return nil, fmt.Errorf("%w: num_ext_blocks %d", ErrMalformedCode, numBlocks)
	}
	if numBlocks == 0 {
		return d, nil
	}

	// Blocks start byte-aligned.
	pad := (8 - br.bitsRead()%8) % 8
	if d.alignBits, err = readBitString(br, pad); err != nil {
		return nil, err
	}

	for i := uint64(0); i < numBlocks; i++ {
		blk, err := parseExtBlock(br)
		if err != nil {
			return nil, fmt.Errorf("rpu: extension block %d: %w", i, err)
		}
		d.ExtBlocks = append(d.ExtBlocks, blk)
	}
	return d, nil
}

func parseExtBlock(br *bitReader) (ExtMetadataBlock, error) {
	length, err := br.readUE()
	if err != nil {
		return nil, err
	}
	if length > maxExtBlockLength {
		return nil, fmt.Errorf("%w: ext_block_length %d", ErrMalformedCode, length)
	}
	level, err := br.readBits(8)
	if err != nil {
		return nil, err
	}

	blk := newExtMetadataBlock(uint8(level))
	limit := int(length) * 8

	if op, ok := blk.(*OpaqueBlock); ok {
		if op.Raw, err = readBitString(br, limit); err != nil {
			return nil, err
		}
		return blk, nil
	}

	if blk.payloadBits() > limit {
		return nil, fmt.Errorf("%w: level %d block declares %d bytes", ErrMalformedCode, level, length)
	}
	if err := blk.decodePayload(br); err != nil {
		return nil, err
	}

	pad, err := readBitString(br, limit-blk.payloadBits())
	if err != nil {
		return nil, err
	}
	switch b := blk.(type) {
	case *Level1Block:
		b.pad = pad
	case *Level2Block:
		b.pad = pad
	case *Level5Block:
		b.pad = pad
	case *Level6Block:
		b.pad = pad
	}
	return blk, nil
}

func (d *DMData) write(bw *bitWriter) error {
	bw.writeUE(d.AffectedDMMetadataID)
	bw.writeUE(d.CurrentDMMetadataID)
	bw.writeUE(d.SceneRefreshFlag)

	for _, v := range d.YCCToRGBCoef {
		bw.writeBits(uint64(uint16(v)), 16)
	}
	for _, v := range d.YCCToRGBOffset {
		bw.writeBits(uint64(v), 32)
	}
	for _, v := range d.RGBToLMSCoef {
		bw.writeBits(uint64(uint16(v)), 16)
	}

	bw.writeBits(uint64(d.SignalEOTF), 16)
	bw.writeBits(uint64(d.SignalEOTFParam0), 16)
	bw.writeBits(uint64(d.SignalEOTFParam1), 16)
	bw.writeBits(uint64(d.SignalEOTFParam2), 32)
	bw.writeBits(uint64(d.SignalBitDepth), 5)
	bw.writeBits(uint64(d.SignalColorSpace), 2)
	bw.writeBits(uint64(d.SignalChromaFormat), 2)
	bw.writeBits(uint64(d.SignalFullRangeFlag), 2)
	bw.writeBits(uint64(d.SourceMinPQ), 12)
	bw.writeBits(uint64(d.SourceMaxPQ), 12)
	bw.writeBits(uint64(d.SourceDiagonal), 10)

	// num_ext_blocks is always recomputed; a stale count would desync the
	// block loop on the next parse.
	bw.writeUE(uint64(len(d.ExtBlocks)))
	if len(d.ExtBlocks) == 0 {
		return nil
	}

	pad := (8 - bw.bitLen()%8) % 8
	if pad == d.alignBits.n {
		d.alignBits.write(bw)
	} else {
		bw.writeBits(0, pad)
	}

	for _, blk := range d.ExtBlocks {
		writeExtBlock(bw, blk)
	}
	return nil
}

func writeExtBlock(bw *bitWriter, blk ExtMetadataBlock) {
	pad := blockPad(blk)
	length := (blk.payloadBits() + pad.n + 7) / 8

	bw.writeUE(uint64(length))
	bw.writeBits(uint64(blk.Level()), 8)

	start := bw.bitLen()
	blk.encodePayload(bw)
	pad.write(bw)

	// Fill to the declared length for blocks built in memory, whose pad
	// string is empty.
	for bw.bitLen()-start < length*8 {
		bw.writeBit(0)
	}
}

func blockPad(blk ExtMetadataBlock) bitString {
	switch b := blk.(type) {
	case *Level1Block:
		return b.pad
	case *Level2Block:
		return b.pad
	case *Level5Block:
		return b.pad
	case *Level6Block:
		return b.pad
	default:
		return bitString{}
	}
}

// ActiveArea returns the first level 5 block, or nil if the record
// carries none.
func (d *DMData) ActiveArea() *Level5Block {
	for _, blk := range d.ExtBlocks {
		if b, ok := blk.(*Level5Block); ok {
			return b
		}
	}
	return nil
}

// FirstLevel returns the first block of the given level, or nil.
func (d *DMData) FirstLevel(level uint8) ExtMetadataBlock {
	for _, blk := range d.ExtBlocks {
		if blk.Level() == level {
			return blk
		}
	}
	return nil
}
