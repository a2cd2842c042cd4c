package rpu

import "fmt"

// Editable field selectors. Each names a single scalar field of the
// record or one of its extension blocks; editing a block field inserts
// the block if absent.
const (
	FieldActiveAreaLeft   = "active_area_left_offset"
	FieldActiveAreaRight  = "active_area_right_offset"
	FieldActiveAreaTop    = "active_area_top_offset"
	FieldActiveAreaBottom = "active_area_bottom_offset"
	FieldMinPQ            = "min_pq"
	FieldMaxPQ            = "max_pq"
	FieldAvgPQ            = "avg_pq"
	FieldTargetMaxPQ      = "target_max_pq"
	FieldSourceMinPQ      = "source_min_pq"
	FieldSourceMaxPQ      = "source_max_pq"
	FieldMaxCLL           = "max_content_light_level"
	FieldMaxFALL          = "max_frame_average_light_level"
	FieldSceneRefreshFlag = "scene_refresh_flag"
)

// FrameRange selects the frames an edit applies to, inclusive on both
// ends. The zero value with All set matches every frame.
type FrameRange struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	All   bool `json:"all,omitempty"`
}

// Contains reports whether the range includes the given frame index.
func (fr FrameRange) Contains(frame int) bool {
	return fr.All || (frame >= fr.Start && frame <= fr.End)
}

// Edit overwrites one named field with a new value on every frame its
// range includes.
type Edit struct {
	Field string     `json:"field"`
	Range FrameRange `json:"range"`
	Value int64      `json:"value"`
}

// ApplyEdits applies, in list order, every edit whose range includes the
// given frame index. Later edits to the same field win. Fields that live
// in extension blocks or the DM payload require the record to carry
// display-management metadata.
func (r *RPU) ApplyEdits(frame int, edits []Edit) error {
	for _, e := range edits {
		if !e.Range.Contains(frame) {
			continue
		}
		if err := r.applyEdit(e); err != nil {
			return fmt.Errorf("rpu: edit %q: %w", e.Field, err)
		}
	}
	return nil
}

func (r *RPU) applyEdit(e Edit) error {
	switch e.Field {
	case FieldActiveAreaLeft, FieldActiveAreaRight, FieldActiveAreaTop, FieldActiveAreaBottom:
		area, err := r.editBlock5()
		if err != nil {
			return err
		}
		v := uint16(e.Value)
		switch e.Field {
		case FieldActiveAreaLeft:
			area.ActiveAreaLeftOffset = v
		case FieldActiveAreaRight:
			area.ActiveAreaRightOffset = v
		case FieldActiveAreaTop:
			area.ActiveAreaTopOffset = v
		case FieldActiveAreaBottom:
			area.ActiveAreaBottomOffset = v
		}

	case FieldMinPQ, FieldMaxPQ, FieldAvgPQ:
		blk, err := r.editBlock1()
		if err != nil {
			return err
		}
		v := uint16(e.Value)
		switch e.Field {
		case FieldMinPQ:
			blk.MinPQ = v
		case FieldMaxPQ:
			blk.MaxPQ = v
		case FieldAvgPQ:
			blk.AvgPQ = v
		}

	case FieldTargetMaxPQ:
		blk, ok := r.firstLevel2()
		if !ok {
			return fmt.Errorf("record has no level 2 block")
		}
		blk.TargetMaxPQ = uint16(e.Value)

	case FieldMaxCLL, FieldMaxFALL:
		blk, err := r.editBlock6()
		if err != nil {
			return err
		}
		if e.Field == FieldMaxCLL {
			blk.MaxContentLightLevel = uint16(e.Value)
		} else {
			blk.MaxFrameAverageLightLevel = uint16(e.Value)
		}

	case FieldSourceMinPQ:
		if r.DM == nil {
			return errNoDM
		}
		r.DM.SourceMinPQ = uint16(e.Value)
	case FieldSourceMaxPQ:
		if r.DM == nil {
			return errNoDM
		}
		r.DM.SourceMaxPQ = uint16(e.Value)
	case FieldSceneRefreshFlag:
		if r.DM == nil {
			return errNoDM
		}
		r.DM.SceneRefreshFlag = uint64(e.Value)

	default:
		return fmt.Errorf("unknown field")
	}
	return nil
}

var errNoDM = fmt.Errorf("record has no display-management metadata")

func (r *RPU) editBlock5() (*Level5Block, error) {
	if r.DM == nil {
		return nil, errNoDM
	}
	if area := r.DM.ActiveArea(); area != nil {
		return area, nil
	}
	area := &Level5Block{}
	r.DM.ExtBlocks = append(r.DM.ExtBlocks, area)
	return area, nil
}

func (r *RPU) editBlock1() (*Level1Block, error) {
	if r.DM == nil {
		return nil, errNoDM
	}
	if blk, ok := r.DM.FirstLevel(ExtBlockLevel1).(*Level1Block); ok {
		return blk, nil
	}
	blk := &Level1Block{}
	r.DM.ExtBlocks = append(r.DM.ExtBlocks, blk)
	return blk, nil
}

func (r *RPU) editBlock6() (*Level6Block, error) {
	if r.DM == nil {
		return nil, errNoDM
	}
	if blk, ok := r.DM.FirstLevel(ExtBlockLevel6).(*Level6Block); ok {
		return blk, nil
	}
	blk := &Level6Block{}
	r.DM.ExtBlocks = append(r.DM.ExtBlocks, blk)
	return blk, nil
}

func (r *RPU) firstLevel2() (*Level2Block, bool) {
	if r.DM == nil {
		return nil, false
	}
	blk, ok := r.DM.FirstLevel(ExtBlockLevel2).(*Level2Block)
	return blk, ok
}
