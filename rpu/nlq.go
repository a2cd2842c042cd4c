package rpu

import "fmt"

// NLQData holds the non-linear quantization parameters (rpu_data_nlq)
// present only in full-enhancement-layer (FEL) streams. Outer dimension is
// the NLQ pivot segment, inner the component. Absence of NLQData marks a
// record as MEL/profile-8 compatible.
type NLQData struct {
	NLQParamPredFlag         [][3]bool
	NumNLQParamPredictors    [][3]uint64
	DiffPredPartIdxNLQMinus1 [][3]uint64

	NLQOffset   [][3]uint64
	VDRInMaxInt [][3]uint64
	VDRInMax    [][3]uint64

	LinearDeadzoneSlopeInt     [][3]uint64
	LinearDeadzoneSlope        [][3]uint64
	LinearDeadzoneThresholdInt [][3]uint64
	LinearDeadzoneThreshold    [][3]uint64
}

func parseNLQ(br *bitReader, r *RPU) (*NLQData, error) {
	coefLen, err := r.coefficientLength()
	if err != nil {
		return nil, err
	}

	count := int(r.NLQNumPivotsMinus2) + 1
	n := &NLQData{
		NLQParamPredFlag:           make([][3]bool, count),
		NumNLQParamPredictors:      make([][3]uint64, count),
		DiffPredPartIdxNLQMinus1:   make([][3]uint64, count),
		NLQOffset:                  make([][3]uint64, count),
		VDRInMaxInt:                make([][3]uint64, count),
		VDRInMax:                   make([][3]uint64, count),
		LinearDeadzoneSlopeInt:     make([][3]uint64, count),
		LinearDeadzoneSlope:        make([][3]uint64, count),
		LinearDeadzoneThresholdInt: make([][3]uint64, count),
		LinearDeadzoneThreshold:    make([][3]uint64, count),
	}

	for p := 0; p < count; p++ {
		predictors := uint64(0)
		for cmp := 0; cmp < 3; cmp++ {
			if predictors > 0 {
				if n.NLQParamPredFlag[p][cmp], err = br.readFlag(); err != nil {
					return nil, err
				}
			}
			n.NumNLQParamPredictors[p][cmp] = predictors

			if !n.NLQParamPredFlag[p][cmp] {
				predictors++

				// rpu_data_nlq_param()
				if n.NLQOffset[p][cmp], err = br.readBits(int(r.ELBitDepthMinus8) + 8); err != nil {
					return nil, err
				}
				if r.CoefficientDataType == 0 {
					if n.VDRInMaxInt[p][cmp], err = br.readUE(); err != nil {
						return nil, err
					}
				}
				if n.VDRInMax[p][cmp], err = br.readBits(coefLen); err != nil {
					return nil, err
				}

				// NLQ_LINEAR_DZ
				if r.NLQMethodIDC == 0 {
					if r.CoefficientDataType == 0 {
						if n.LinearDeadzoneSlopeInt[p][cmp], err = br.readUE(); err != nil {
							return nil, err
						}
					}
					if n.LinearDeadzoneSlope[p][cmp], err = br.readBits(coefLen); err != nil {
						return nil, err
					}
					if r.CoefficientDataType == 0 {
						if n.LinearDeadzoneThresholdInt[p][cmp], err = br.readUE(); err != nil {
							return nil, err
						}
					}
					if n.LinearDeadzoneThreshold[p][cmp], err = br.readBits(coefLen); err != nil {
						return nil, err
					}
				}
			} else if predictors > 1 {
				if n.DiffPredPartIdxNLQMinus1[p][cmp], err = br.readUE(); err != nil {
					return nil, err
				}
			}
		}
	}
	return n, nil
}

func (n *NLQData) write(bw *bitWriter, r *RPU) error {
	coefLen, err := r.coefficientLength()
	if err != nil {
		return err
	}

	count := int(r.NLQNumPivotsMinus2) + 1
	if len(n.NLQOffset) < count {
		return fmt.Errorf("rpu: NLQ data has %d segments, need %d", len(n.NLQOffset), count)
	}

	for p := 0; p < count; p++ {
		predictors := uint64(0)
		for cmp := 0; cmp < 3; cmp++ {
			if predictors > 0 {
				bw.writeFlag(n.NLQParamPredFlag[p][cmp])
			}

			if !n.NLQParamPredFlag[p][cmp] {
				predictors++

				bw.writeBits(n.NLQOffset[p][cmp], int(r.ELBitDepthMinus8)+8)
				if r.CoefficientDataType == 0 {
					bw.writeUE(n.VDRInMaxInt[p][cmp])
				}
				bw.writeBits(n.VDRInMax[p][cmp], coefLen)

				if r.NLQMethodIDC == 0 {
					if r.CoefficientDataType == 0 {
						bw.writeUE(n.LinearDeadzoneSlopeInt[p][cmp])
					}
					bw.writeBits(n.LinearDeadzoneSlope[p][cmp], coefLen)
					if r.CoefficientDataType == 0 {
						bw.writeUE(n.LinearDeadzoneThresholdInt[p][cmp])
					}
					bw.writeBits(n.LinearDeadzoneThreshold[p][cmp], coefLen)
				}
			} else if predictors > 1 {
				bw.writeUE(n.DiffPredPartIdxNLQMinus1[p][cmp])
			}
		}
	}
	return nil
}
