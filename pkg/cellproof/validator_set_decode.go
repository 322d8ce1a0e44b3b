package cellproof

import (
	"crypto/ed25519"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

// DecodeValidatorSet decodes a ConfigParam 32/34/36 value cell
// (validators#11 or validators_ext#12) into a ValidatorSet, enumerating
// every entry of its list dictionary. Unlike the proof-chain builders
// in this package, this runs over a fully available cell a network
// client fetched directly (not a pruned proof), so it reads the whole
// dictionary rather than descending one branch.
func DecodeValidatorSet(paramValue *cell.Cell) (ValidatorSet, error) {
	s := paramValue.BeginParse()
	tag, err := s.LoadUInt(8)
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}

	utimeSince, err := s.LoadUInt(32)
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}
	utimeUntil, err := s.LoadUInt(32)
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}
	total, err := s.LoadUInt(16)
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}
	if _, err := s.LoadUInt(16); err != nil { // main
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}

	var declaredTotalWeight uint64
	switch tag {
	case 0x11: // validators#11
	case 0x12: // validators_ext#12
		w, err := s.LoadUInt(64)
		if err != nil {
			return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
		}
		declaredTotalWeight = w
	default:
		return ValidatorSet{}, cellkit.E(cellkit.KindInvalidTag, "decode_validator_set", nil)
	}

	hasDict, err := s.LoadUInt(1)
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}
	vs := ValidatorSet{UtimeSince: uint32(utimeSince), UtimeUntil: uint32(utimeUntil)}
	if hasDict == 0 {
		return vs, nil
	}
	dictRoot, err := s.LoadRef()
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindCellUnderflow, "decode_validator_set", err)
	}
	dictCell, err := dictRoot.ToCell()
	if err != nil {
		return ValidatorSet{}, cellkit.E(cellkit.KindInvalidData, "decode_validator_set", err)
	}

	entries := make([]ValidatorDescr, 0, total)
	var sumWeight uint64
	if err := walkValidatorDict(dictCell, nil, 16, func(descr ValidatorDescr) {
		entries = append(entries, descr)
		sumWeight += descr.Weight
	}); err != nil {
		return ValidatorSet{}, err
	}

	vs.List = entries
	if declaredTotalWeight != 0 {
		vs.TotalWeight = declaredTotalWeight
	} else {
		vs.TotalWeight = sumWeight
	}
	return vs, nil
}

func walkValidatorDict(n *cell.Cell, prefix []bool, remaining int, onLeaf func(ValidatorDescr)) error {
	s := n.BeginParse()
	label, consumed, err := loadPlainHmLabel(s, remaining)
	if err != nil {
		return err
	}
	prefix = append(prefix, label...)
	remaining -= consumed

	if remaining == 0 {
		descr, err := decodeValidatorDescr(s)
		if err != nil {
			return err
		}
		onLeaf(descr)
		return nil
	}

	leftRef, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "validator_dict.fork", err)
	}
	rightRef, err := s.LoadRef()
	if err != nil {
		return cellkit.E(cellkit.KindCellUnderflow, "validator_dict.fork", err)
	}
	left, err := leftRef.ToCell()
	if err != nil {
		return cellkit.E(cellkit.KindInvalidData, "validator_dict.fork", err)
	}
	right, err := rightRef.ToCell()
	if err != nil {
		return cellkit.E(cellkit.KindInvalidData, "validator_dict.fork", err)
	}
	if err := walkValidatorDict(left, append(append([]bool{}, prefix...), false), remaining-1, onLeaf); err != nil {
		return err
	}
	return walkValidatorDict(right, append(append([]bool{}, prefix...), true), remaining-1, onLeaf)
}

// decodeValidatorDescr reads validator_descr#53/validator_descr_addr#73
// — public_key:SigPubKey weight:uint64 [adnl_addr:bits256] — and
// extracts the 32-byte ed25519 pubkey out of ed25519_pubkey#8e81278a.
func decodeValidatorDescr(s *cell.Slice) (ValidatorDescr, error) {
	tag, err := s.LoadUInt(8)
	if err != nil {
		return ValidatorDescr{}, cellkit.E(cellkit.KindCellUnderflow, "validator_descr", err)
	}
	if tag != 0x53 && tag != 0x73 {
		return ValidatorDescr{}, cellkit.E(cellkit.KindInvalidTag, "validator_descr", nil)
	}

	pubKeyTag, err := s.LoadUInt(32)
	if err != nil {
		return ValidatorDescr{}, cellkit.E(cellkit.KindCellUnderflow, "validator_descr.pubkey_tag", err)
	}
	if pubKeyTag != 0x8e81278a {
		return ValidatorDescr{}, cellkit.E(cellkit.KindInvalidTag, "validator_descr.pubkey_tag", nil)
	}
	pubKeyBytes, err := s.LoadSlice(256)
	if err != nil {
		return ValidatorDescr{}, cellkit.E(cellkit.KindCellUnderflow, "validator_descr.pubkey", err)
	}
	weight, err := s.LoadUInt(64)
	if err != nil {
		return ValidatorDescr{}, cellkit.E(cellkit.KindCellUnderflow, "validator_descr.weight", err)
	}
	if tag == 0x73 {
		if _, err := s.LoadSlice(256); err != nil { // adnl_addr, unused
			return ValidatorDescr{}, cellkit.E(cellkit.KindCellUnderflow, "validator_descr.adnl_addr", err)
		}
	}

	var descr ValidatorDescr
	copy(descr.PublicKey[:], pubKeyBytes)
	descr.Weight = weight
	return descr, nil
}

// loadPlainHmLabel is an untracked twin of pkg/block's loadHmLabel for
// callers that already hold a fully materialized cell rather than a
// UsageTree-tracked one.
func loadPlainHmLabel(s *cell.Slice, remaining int) ([]bool, int, error) {
	bit0, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hm_label", err)
	}
	if bit0 == 0 {
		n, err := loadPlainUnary(s)
		if err != nil {
			return nil, 0, err
		}
		bits := make([]bool, n)
		for i := 0; i < n; i++ {
			b, err := s.LoadUInt(1)
			if err != nil {
				return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_short.bits", err)
			}
			bits[i] = b != 0
		}
		return bits, n, nil
	}

	bit1, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hm_label", err)
	}
	sizeBits := plainBitLenFor(remaining)
	if bit1 == 0 {
		n64, err := s.LoadUInt(sizeBits)
		if err != nil {
			return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_long.n", err)
		}
		n := int(n64)
		bits := make([]bool, n)
		for i := 0; i < n; i++ {
			b, err := s.LoadUInt(1)
			if err != nil {
				return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_long.bits", err)
			}
			bits[i] = b != 0
		}
		return bits, n, nil
	}

	v, err := s.LoadUInt(1)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_same.v", err)
	}
	n64, err := s.LoadUInt(sizeBits)
	if err != nil {
		return nil, 0, cellkit.E(cellkit.KindCellUnderflow, "hml_same.n", err)
	}
	n := int(n64)
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = v != 0
	}
	return bits, n, nil
}

func loadPlainUnary(s *cell.Slice) (int, error) {
	n := 0
	for {
		b, err := s.LoadUInt(1)
		if err != nil {
			return 0, cellkit.E(cellkit.KindCellUnderflow, "unary", err)
		}
		if b == 0 {
			return n, nil
		}
		n++
	}
}

func plainBitLenFor(remaining int) int {
	n := 0
	for (1 << n) <= remaining {
		n++
	}
	return n
}

// VerifyValidatorSet does a best-effort sanity check that every public
// key is well-formed (ed25519 keys are always 32 bytes, so this mostly
// guards against a zeroed/truncated decode rather than a crypto check).
func VerifyValidatorSet(vs ValidatorSet) bool {
	for _, v := range vs.List {
		if len(v.PublicKey) != ed25519.PublicKeySize {
			return false
		}
		if v.PublicKey == ([32]byte{}) {
			return false
		}
	}
	return true
}
