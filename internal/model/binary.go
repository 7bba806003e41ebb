package model

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"svmbridge/internal/feature"
)

// Field numbers of the binary model encoding. The encoding is protobuf wire
// format so other tooling can decode it with a matching .proto.
const (
	fieldSVMType    protowire.Number = 1
	fieldKernelType protowire.Number = 2
	fieldDegree     protowire.Number = 3
	fieldGamma      protowire.Number = 4
	fieldCoef0      protowire.Number = 5
	fieldNrClass    protowire.Number = 6
	fieldLabels     protowire.Number = 7
	fieldNrSV       protowire.Number = 8
	fieldRho        protowire.Number = 9
	fieldProbA      protowire.Number = 10
	fieldProbB      protowire.Number = 11
	fieldSV         protowire.Number = 12
	fieldCoef       protowire.Number = 13

	fieldSVDims protowire.Number = 1
	fieldSVVals protowire.Number = 2

	fieldCoefVals protowire.Number = 1
)

// MarshalBinary encodes m in protobuf wire format.
func (m *Model) MarshalBinary() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var b []byte
	b = appendVarint(b, fieldSVMType, uint64(m.SVMType))
	b = appendVarint(b, fieldKernelType, uint64(m.Kernel.Type))
	b = appendVarint(b, fieldDegree, protowire.EncodeZigZag(int64(m.Kernel.Degree)))
	b = appendDouble(b, fieldGamma, m.Kernel.Gamma)
	b = appendDouble(b, fieldCoef0, m.Kernel.Coef0)
	b = appendVarint(b, fieldNrClass, uint64(m.NrClass))
	b = appendPackedInts(b, fieldLabels, m.Labels)
	b = appendPackedInts(b, fieldNrSV, m.NrSV)
	b = appendPackedDoubles(b, fieldRho, m.Rho)
	b = appendPackedDoubles(b, fieldProbA, m.ProbA)
	b = appendPackedDoubles(b, fieldProbB, m.ProbB)
	for _, sv := range m.SV {
		var msg []byte
		msg = appendPackedInts(msg, fieldSVDims, sv.Dims)
		msg = appendPackedDoubles(msg, fieldSVVals, sv.Vals)
		b = protowire.AppendTag(b, fieldSV, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	for _, row := range m.Coef {
		var msg []byte
		msg = appendPackedDoubles(msg, fieldCoefVals, row)
		b = protowire.AppendTag(b, fieldCoef, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b, nil
}

// UnmarshalBinary decodes a model written by MarshalBinary.
func (m *Model) UnmarshalBinary(b []byte) error {
	*m = Model{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSVMType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SVMType = SVMType(v)
			return n, nil
		case num == fieldKernelType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Kernel.Type = KernelType(v)
			return n, nil
		case num == fieldDegree && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Kernel.Degree = int(protowire.DecodeZigZag(v))
			return n, nil
		case num == fieldGamma && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			m.Kernel.Gamma = math.Float64frombits(v)
			return n, nil
		case num == fieldCoef0 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			m.Kernel.Coef0 = math.Float64frombits(v)
			return n, nil
		case num == fieldNrClass && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.NrClass = int(v)
			return n, nil
		case num == fieldLabels && typ == protowire.BytesType:
			return consumePackedInts(b, &m.Labels)
		case num == fieldNrSV && typ == protowire.BytesType:
			return consumePackedInts(b, &m.NrSV)
		case num == fieldRho && typ == protowire.BytesType:
			return consumePackedDoubles(b, &m.Rho)
		case num == fieldProbA && typ == protowire.BytesType:
			return consumePackedDoubles(b, &m.ProbA)
		case num == fieldProbB && typ == protowire.BytesType:
			return consumePackedDoubles(b, &m.ProbB)
		case num == fieldSV && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			sv := &feature.Vector{Factor: 1}
			err := consumeFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch {
				case num == fieldSVDims && typ == protowire.BytesType:
					return consumePackedInts(b, &sv.Dims)
				case num == fieldSVVals && typ == protowire.BytesType:
					return consumePackedDoubles(b, &sv.Vals)
				}
				return protowire.ConsumeFieldValue(num, typ, b), nil
			})
			if err != nil {
				return 0, errors.Wrap(err, "support vector")
			}
			if len(sv.Dims) != len(sv.Vals) {
				return 0, errors.Errorf("support vector %d: %d dims, %d values", len(m.SV), len(sv.Dims), len(sv.Vals))
			}
			m.SV = append(m.SV, sv)
			return n, nil
		case num == fieldCoef && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			var row []float64
			err := consumeFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num == fieldCoefVals && typ == protowire.BytesType {
					return consumePackedDoubles(b, &row)
				}
				return protowire.ConsumeFieldValue(num, typ, b), nil
			})
			if err != nil {
				return 0, errors.Wrap(err, "coefficients")
			}
			m.Coef = append(m.Coef, row)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return errors.Wrap(err, "model: decode")
	}
	return m.Validate()
}

func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendPackedInts(b []byte, num protowire.Number, vals []int) []byte {
	if vals == nil {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	if vals == nil {
		return b
	}
	packed := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumePackedInts(b []byte, dst *[]int) (int, error) {
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	out := make([]int, 0, len(packed))
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return m, nil
		}
		out = append(out, int(protowire.DecodeZigZag(v)))
		packed = packed[m:]
	}
	*dst = append(*dst, out...)
	return n, nil
}

func consumePackedDoubles(b []byte, dst *[]float64) (int, error) {
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if len(packed)%8 != 0 {
		return 0, errors.Errorf("packed doubles: %d bytes is not a multiple of 8", len(packed))
	}
	out := make([]float64, 0, len(packed)/8)
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed64(packed)
		if m < 0 {
			return m, nil
		}
		out = append(out, math.Float64frombits(v))
		packed = packed[m:]
	}
	*dst = append(*dst, out...)
	return n, nil
}
