package rpu

import "fmt"

// ActiveAreaInfo reports the level 5 window in a summary.
type ActiveAreaInfo struct {
	Left   uint16 `json:"left"`
	Right  uint16 `json:"right"`
	Top    uint16 `json:"top"`
	Bottom uint16 `json:"bottom"`
}

// BrightnessInfo reports the level 1 content range in a summary.
type BrightnessInfo struct {
	MinPQ uint16 `json:"min_pq"`
	MaxPQ uint16 `json:"max_pq"`
	AvgPQ uint16 `json:"avg_pq"`
}

// Summary is a human-readable, JSON-serializable view of a parsed record
// for the per-picture info query. It is read-only; building one never
// mutates the record.
type Summary struct {
	Frame                int             `json:"frame"`
	Profile              string          `json:"profile"`
	RPUType              uint8           `json:"rpu_type"`
	RPUFormat            uint16          `json:"rpu_format"`
	CoefficientLog2Denom uint64          `json:"coefficient_log2_denom"`
	MappingEnabled       bool            `json:"mapping_enabled"`
	NLQPresent           bool            `json:"nlq_present"`
	DMPresent            bool            `json:"dm_present"`
	SceneRefresh         bool            `json:"scene_refresh"`
	SourceMinPQ          uint16          `json:"source_min_pq,omitempty"`
	SourceMaxPQ          uint16          `json:"source_max_pq,omitempty"`
	ExtBlockLevels       []uint8         `json:"ext_block_levels,omitempty"`
	ActiveArea           *ActiveAreaInfo `json:"active_area,omitempty"`
	Brightness           *BrightnessInfo `json:"brightness,omitempty"`
	CRC32                string          `json:"crc32"`
}

// Summarize builds the diagnostic summary for the record at the given
// frame index.
func (r *RPU) Summarize(frame int) Summary {
	s := Summary{
		Frame:                frame,
		Profile:              r.Profile().String(),
		RPUType:              r.RPUType,
		RPUFormat:            r.RPUFormat,
		CoefficientLog2Denom: r.CoefficientLog2Denom,
		MappingEnabled:       r.Mapping != nil,
		NLQPresent:           r.NLQ != nil,
		DMPresent:            r.DM != nil,
		CRC32:                fmt.Sprintf("0x%08X", r.CRC32),
	}

	if r.DM != nil {
		s.SceneRefresh = r.DM.SceneRefreshFlag == 1
		s.SourceMinPQ = r.DM.SourceMinPQ
		s.SourceMaxPQ = r.DM.SourceMaxPQ
		for _, blk := range r.DM.ExtBlocks {
			s.ExtBlockLevels = append(s.ExtBlockLevels, blk.Level())
		}
		if area := r.DM.ActiveArea(); area != nil {
			s.ActiveArea = &ActiveAreaInfo{
				Left:   area.ActiveAreaLeftOffset,
				Right:  area.ActiveAreaRightOffset,
				Top:    area.ActiveAreaTopOffset,
				Bottom: area.ActiveAreaBottomOffset,
			}
		}
		if blk, ok := r.DM.FirstLevel(ExtBlockLevel1).(*Level1Block); ok {
			s.Brightness = &BrightnessInfo{MinPQ: blk.MinPQ, MaxPQ: blk.MaxPQ, AvgPQ: blk.AvgPQ}
		}
	}
	return s
}
