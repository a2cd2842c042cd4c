package rpu

import "fmt"

// Mapping method identifiers for mapping_idc.
const (
	MappingPolynomial = 0
	MappingMMR        = 1
)

// MappingData holds the per-component piecewise reshaping curves
// (rpu_data_mapping). Outer dimension is the component, inner the pivot
// segment. The per-segment coefficient counts and widths are themselves
// encoded fields, so decode order is load-bearing.
type MappingData struct {
	MappingIDC                   [3][]uint64
	MappingParamPredFlag         [3][]bool
	NumMappingParamPredictors    [3][]uint64
	DiffPredPartIdxMappingMinus1 [3][]uint64

	PolyOrderMinus1          [3][]uint64
	LinearInterpFlag         [3][]bool
	PredLinearInterpValueInt [3][]uint64
	PredLinearInterpValue    [3][]uint64
	PolyCoefInt              [3][][]int64
	PolyCoef                 [3][][]uint64

	MMROrderMinus1 [3][]uint8
	MMRConstantInt [3][]int64
	MMRConstant    [3][]uint64
	MMRCoefInt     [3][][][]int64
	MMRCoef        [3][][][]uint64
}

func parseMapping(br *bitReader, r *RPU) (*MappingData, error) {
	coefLen, err := r.coefficientLength()
	if err != nil {
		return nil, err
	}

	m := &MappingData{}
	for cmp := 0; cmp < 3; cmp++ {
		count := int(r.NumPivotsMinus2[cmp]) + 1

		m.MappingIDC[cmp] = make([]uint64, count)
		m.MappingParamPredFlag[cmp] = make([]bool, count)
		m.NumMappingParamPredictors[cmp] = make([]uint64, count)
		m.DiffPredPartIdxMappingMinus1[cmp] = make([]uint64, count)
		m.PolyOrderMinus1[cmp] = make([]uint64, count)
		m.LinearInterpFlag[cmp] = make([]bool, count)
		// Linear interpolation on the final segment writes one slot past it.
		m.PredLinearInterpValueInt[cmp] = make([]uint64, count+1)
		m.PredLinearInterpValue[cmp] = make([]uint64, count+1)
		m.PolyCoefInt[cmp] = make([][]int64, count)
		m.PolyCoef[cmp] = make([][]uint64, count)
		m.MMROrderMinus1[cmp] = make([]uint8, count)
		m.MMRConstantInt[cmp] = make([]int64, count)
		m.MMRConstant[cmp] = make([]uint64, count)
		m.MMRCoefInt[cmp] = make([][][]int64, count)
		m.MMRCoef[cmp] = make([][][]uint64, count)

		predictors := uint64(0)
		for p := 0; p < count; p++ {
			if m.MappingIDC[cmp][p], err = br.readUE(); err != nil {
				return nil, err
			}

			if predictors > 0 {
				if m.MappingParamPredFlag[cmp][p], err = br.readFlag(); err != nil {
					return nil, err
				}
			}
			m.NumMappingParamPredictors[cmp][p] = predictors

			if !m.MappingParamPredFlag[cmp][p] {
				predictors++
				if err = m.parseParam(br, r, coefLen, cmp, p); err != nil {
					return nil, err
				}
			} else if predictors > 1 {
				if m.DiffPredPartIdxMappingMinus1[cmp][p], err = br.readUE(); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

// parseParam decodes one rpu_data_mapping_param() for component cmp,
// segment p.
func (m *MappingData) parseParam(br *bitReader, r *RPU, coefLen, cmp, p int) error {
	var err error
	switch m.MappingIDC[cmp][p] {
	case MappingPolynomial:
		if m.PolyOrderMinus1[cmp][p], err = br.readUE(); err != nil {
			return err
		}
		if m.PolyOrderMinus1[cmp][p] > maxPolyOrderMinus1 {
			return fmt.Errorf("%w: poly_order_minus1 %d", ErrMalformedCode, m.PolyOrderMinus1[cmp][p])
		}
		if m.PolyOrderMinus1[cmp][p] == 0 {
			if m.LinearInterpFlag[cmp][p], err = br.readFlag(); err != nil {
				return err
			}
		}

		if m.PolyOrderMinus1[cmp][p] == 0 && m.LinearInterpFlag[cmp][p] {
			if r.CoefficientDataType == 0 {
				if m.PredLinearInterpValueInt[cmp][p], err = br.readUE(); err != nil {
					return err
				}
			}
			if m.PredLinearInterpValue[cmp][p], err = br.readBits(coefLen); err != nil {
				return err
			}
			if uint64(p) == r.NumPivotsMinus2[cmp] {
				if r.CoefficientDataType == 0 {
					if m.PredLinearInterpValueInt[cmp][p+1], err = br.readUE(); err != nil {
						return err
					}
				}
				if m.PredLinearInterpValue[cmp][p+1], err = br.readBits(coefLen); err != nil {
					return err
				}
			}
			return nil
		}

		n := int(m.PolyOrderMinus1[cmp][p]) + 2
		m.PolyCoefInt[cmp][p] = make([]int64, n)
		m.PolyCoef[cmp][p] = make([]uint64, n)
		for i := 0; i < n; i++ {
			if r.CoefficientDataType == 0 {
				if m.PolyCoefInt[cmp][p][i], err = br.readSE(); err != nil {
					return err
				}
			}
			if m.PolyCoef[cmp][p][i], err = br.readBits(coefLen); err != nil {
				return err
			}
		}

	case MappingMMR:
		v, err := br.readBits(2)
		if err != nil {
			return err
		}
		if v > maxMMROrderMinus1 {
			return fmt.Errorf("%w: mmr_order_minus1 %d", ErrMalformedCode, v)
		}
		m.MMROrderMinus1[cmp][p] = uint8(v)

		if r.CoefficientDataType == 0 {
			if m.MMRConstantInt[cmp][p], err = br.readSE(); err != nil {
				return err
			}
		}
		if m.MMRConstant[cmp][p], err = br.readBits(coefLen); err != nil {
			return err
		}

		rows := int(m.MMROrderMinus1[cmp][p]) + 1
		m.MMRCoefInt[cmp][p] = make([][]int64, rows)
		m.MMRCoef[cmp][p] = make([][]uint64, rows)
		for i := 0; i < rows; i++ {
			m.MMRCoefInt[cmp][p][i] = make([]int64, 7)
			m.MMRCoef[cmp][p][i] = make([]uint64, 7)
			for j := 0; j < 7; j++ {
				if r.CoefficientDataType == 0 {
					if m.MMRCoefInt[cmp][p][i][j], err = br.readSE(); err != nil {
						return err
					}
				}
				if m.MMRCoef[cmp][p][i][j], err = br.readBits(coefLen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *MappingData) write(bw *bitWriter, r *RPU) error {
	coefLen, err := r.coefficientLength()
	if err != nil {
		return err
	}

	for cmp := 0; cmp < 3; cmp++ {
		count := int(r.NumPivotsMinus2[cmp]) + 1
		if len(m.MappingIDC[cmp]) < count {
			return fmt.Errorf("rpu: mapping component %d has %d segments, need %d", cmp, len(m.MappingIDC[cmp]), count)
		}

		predictors := uint64(0)
		for p := 0; p < count; p++ {
			bw.writeUE(m.MappingIDC[cmp][p])

			if predictors > 0 {
				bw.writeFlag(m.MappingParamPredFlag[cmp][p])
			}

			if !m.MappingParamPredFlag[cmp][p] {
				predictors++
				if err = m.writeParam(bw, r, coefLen, cmp, p); err != nil {
					return err
				}
			} else if predictors > 1 {
				bw.writeUE(m.DiffPredPartIdxMappingMinus1[cmp][p])
			}
		}
	}
	return nil
}

func (m *MappingData) writeParam(bw *bitWriter, r *RPU, coefLen, cmp, p int) error {
	switch m.MappingIDC[cmp][p] {
	case MappingPolynomial:
		bw.writeUE(m.PolyOrderMinus1[cmp][p])
		if m.PolyOrderMinus1[cmp][p] == 0 {
			bw.writeFlag(m.LinearInterpFlag[cmp][p])
		}

		if m.PolyOrderMinus1[cmp][p] == 0 && m.LinearInterpFlag[cmp][p] {
			if r.CoefficientDataType == 0 {
				bw.writeUE(m.PredLinearInterpValueInt[cmp][p])
			}
			bw.writeBits(m.PredLinearInterpValue[cmp][p], coefLen)
			if uint64(p) == r.NumPivotsMinus2[cmp] {
				if r.CoefficientDataType == 0 {
					bw.writeUE(m.PredLinearInterpValueInt[cmp][p+1])
				}
				bw.writeBits(m.PredLinearInterpValue[cmp][p+1], coefLen)
			}
			return nil
		}

		n := int(m.PolyOrderMinus1[cmp][p]) + 2
		if len(m.PolyCoef[cmp][p]) < n {
			return fmt.Errorf("rpu: segment %d/%d has %d poly coefficients, need %d", cmp, p, len(m.PolyCoef[cmp][p]), n)
		}
		for i := 0; i < n; i++ {
			if r.CoefficientDataType == 0 {
				bw.writeSE(m.PolyCoefInt[cmp][p][i])
			}
			bw.writeBits(m.PolyCoef[cmp][p][i], coefLen)
		}

	case MappingMMR:
		bw.writeBits(uint64(m.MMROrderMinus1[cmp][p]), 2)
		if r.CoefficientDataType == 0 {
			bw.writeSE(m.MMRConstantInt[cmp][p])
		}
		bw.writeBits(m.MMRConstant[cmp][p], coefLen)

		rows := int(m.MMROrderMinus1[cmp][p]) + 1
		if len(m.MMRCoef[cmp][p]) < rows {
			return fmt.Errorf("rpu: segment %d/%d has %d MMR rows, need %d", cmp, p, len(m.MMRCoef[cmp][p]), rows)
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < 7; j++ {
				if r.CoefficientDataType == 0 {
					bw.writeSE(m.MMRCoefInt[cmp][p][i][j])
				}
				bw.writeBits(m.MMRCoef[cmp][p][i][j], coefLen)
			}
		}
	}
	return nil
}
