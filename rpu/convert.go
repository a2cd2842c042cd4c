package rpu

// Profile is the Dolby Vision profile inferred from a parsed record. It is
// not stored verbatim in the bitstream; presence of NLQ data and the
// residual flags determine it.
type Profile int

const (
	ProfileUnknown Profile = iota
	Profile5               // single layer, IPT colorspace
	Profile7FEL            // dual layer, full enhancement
	Profile7MEL            // dual layer, minimal enhancement
	Profile8               // single layer, RPU only
)

func (p Profile) String() string {
	switch p {
	case Profile5:
		return "5"
	case Profile7FEL:
		return "7 (FEL)"
	case Profile7MEL:
		return "7 (MEL)"
	case Profile8:
		return "8"
	default:
		return "unknown"
	}
}

// Profile infers the record's profile.
func (r *RPU) Profile() Profile {
	if r.RPUType != 2 {
		return ProfileUnknown
	}
	if r.VDRRPUProfile == 0 {
		return Profile5
	}
	if r.NLQ != nil {
		return Profile7FEL
	}
	if r.DisableResidual && !r.ELSpatialResamplingFilter {
		return Profile8
	}
	return Profile7MEL
}

// MELCompatible reports whether the record carries no FEL-only data.
func (r *RPU) MELCompatible() bool {
	return r.NLQ == nil
}

// StripNLQ removes the FEL-only NLQ data and flips the residual flag so
// the record serializes as MEL-compatible. Returns false if the record has
// no NLQ data (the conversion is a no-op the caller may warn about).
func (r *RPU) StripNLQ() bool {
	if r.NLQ == nil {
		return false
	}
	r.NLQ = nil
	r.DisableResidual = true
	r.NLQMethodIDC = 0
	return true
}

// ToProfile81 rewrites the record as single-layer profile 8.1: FEL-only
// data is dropped, the enhancement-layer resampling flags are cleared, and
// an active-area block with no-crop offsets is ensured when the record
// carries display-management metadata. Idempotent.
func (r *RPU) ToProfile81() {
	r.NLQ = nil
	r.NLQMethodIDC = 0
	r.ELSpatialResamplingFilter = false
	r.DisableResidual = true

	if r.DM != nil && r.DM.ActiveArea() == nil {
		r.DM.ExtBlocks = append(r.DM.ExtBlocks, &Level5Block{})
	}
}

// SetActiveAreaOffsets locates or inserts the active-area extension block
// and overwrites its offsets. All-zero offsets declare the whole frame
// active (no letterbox). A record without display-management metadata has
// nowhere to carry the block; the call is then a no-op returning false.
func (r *RPU) SetActiveAreaOffsets(left, right, top, bottom uint16) bool {
	if r.DM == nil {
		return false
	}
	area := r.DM.ActiveArea()
	if area == nil {
		area = &Level5Block{}
		r.DM.ExtBlocks = append(r.DM.ExtBlocks, area)
	}
	area.ActiveAreaLeftOffset = left
	area.ActiveAreaRightOffset = right
	area.ActiveAreaTopOffset = top
	area.ActiveAreaBottomOffset = bottom
	return true
}
