package netclient

import (
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
	"github.com/tychoproof/ton-proof-bridge/pkg/block"
	"github.com/tychoproof/ton-proof-bridge/pkg/cellproof"
)

// capSignatureWithID is GlobalCapabilities' CapSignatureWithId bit,
// the capability that requires block signatures to be taken over
// (signature_id ‖ root_hash ‖ file_hash) instead of the bare pair —
// networks that fork off mainnet sometimes turn this on so their
// signatures can't be replayed against a different chain.
const capSignatureWithID = 1 << 26

// decodeTransaction reads the fields find_transaction's chain-walk
// needs out of a raw Transaction cell: its own hash, lt, the previous
// transaction pointer, and its in-message's hash if it has one.
func decodeTransaction(c *cell.Cell) (TxRecord, error) {
	s := c.BeginParse()
	tag, err := s.LoadUInt(4)
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.tag", err)
	}
	if tag != 0b0111 {
		return TxRecord{}, cellkit.E(cellkit.KindInvalidTag, "decode_transaction.tag", nil)
	}
	if _, err := s.LoadSlice(256); err != nil { // account_addr
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.account_addr", err)
	}
	lt, err := s.LoadUInt(64)
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.lt", err)
	}
	prevHashBytes, err := s.LoadSlice(256)
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.prev_trans_hash", err)
	}
	prevLT, err := s.LoadUInt(64)
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.prev_trans_lt", err)
	}
	if _, err := s.LoadUInt(32); err != nil { // now
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.now", err)
	}
	if _, err := s.LoadUInt(15); err != nil { // outmsg_cnt
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.outmsg_cnt", err)
	}
	if _, err := s.LoadUInt(2); err != nil { // orig_status
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.orig_status", err)
	}
	if _, err := s.LoadUInt(2); err != nil { // end_status
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.end_status", err)
	}

	msgsRef, err := s.LoadRef()
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.msgs", err)
	}
	maybeIn, err := msgsRef.LoadUInt(1)
	if err != nil {
		return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.maybe_in_msg", err)
	}
	var inMsgHash *[32]byte
	if maybeIn != 0 {
		inMsgRef, err := msgsRef.LoadRef()
		if err != nil {
			return TxRecord{}, cellkit.E(cellkit.KindCellUnderflow, "decode_transaction.in_msg", err)
		}
		inMsgCell, err := inMsgRef.ToCell()
		if err != nil {
			return TxRecord{}, cellkit.E(cellkit.KindInvalidData, "decode_transaction.in_msg", err)
		}
		var h [32]byte
		copy(h[:], inMsgCell.Hash())
		inMsgHash = &h
	}

	var prevHash, txHash [32]byte
	copy(prevHash[:], prevHashBytes)
	copy(txHash[:], c.Hash())

	return TxRecord{
		LT:            lt,
		Hash:          txHash,
		PrevTransLT:   prevLT,
		PrevTransHash: prevHash,
		InMsgHash:     inMsgHash,
		Raw:           c,
	}, nil
}

// decodeKeyBlockProof virtualizes a Merkle-proof-wrapped key block,
// loads its info and config, and decodes the current (and, if
// present, previous) validator set out of it. sigs is the raw
// node-id-short-keyed signature set the block's own proof carried,
// passed through unchanged: it is the *previous* vset that signed a
// handover key block, per spec §4.4, so the caller must not try to
// reconcile it against CurrentVset here.
func decodeKeyBlockProof(seqno uint32, proofCell *cell.Cell, sigs []cellproof.SignatureEntry) (*KeyBlockData, error) {
	root, err := cellkit.Virtualize(proofCell)
	if err != nil {
		return nil, err
	}

	var fileHash, rootHash [32]byte
	copy(rootHash[:], root.Hash())
	copy(fileHash[:], proofCell.Hash())

	view, err := block.New(root)
	if err != nil {
		return nil, err
	}
	info, err := view.LoadInfo()
	if err != nil {
		return nil, err
	}

	cfg, ok, err := view.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cellkit.E(cellkit.KindInvalidData, "decode_key_block_proof", nil)
	}

	currentCell, found, err := findConfigParamCell(cfg, 34)
	if err != nil || !found {
		return nil, cellkit.E(cellkit.KindNotFound, "decode_key_block_proof.current_vset", err)
	}
	current, err := cellproof.DecodeValidatorSet(currentCell)
	if err != nil {
		return nil, err
	}

	var prev *cellproof.ValidatorSet
	if prevCell, found, err := findConfigParamCell(cfg, 32); err == nil && found {
		decoded, err := cellproof.DecodeValidatorSet(prevCell)
		if err != nil {
			return nil, err
		}
		prev = &decoded
	}

	return &KeyBlockData{
		BlockID:           cellproof.BlockID{RootHash: rootHash, FileHash: fileHash},
		Seqno:             seqno,
		Root:              root,
		PrevKeyBlockSeqno: info.SeqNo,
		CurrentVset:       current,
		PrevVset:          prev,
		Signatures:        sigs,
	}, nil
}

// findConfigParamCell looks up param inside cfg, the Hashmap 32 ^Cell
// dictionary root returned by block.View.Config, returning the
// referenced parameter cell.
func findConfigParamCell(cfg *cellkit.Tracked, param uint32) (*cell.Cell, bool, error) {
	return descendConfigDict(cfg.Cell(), keyBits32(param), 32)
}

func descendConfigDict(n *cell.Cell, key []bool, remaining int) (*cell.Cell, bool, error) {
	s := n.BeginParse()
	label, consumed, err := loadPlainHmLabel(s, remaining)
	if err != nil {
		return nil, false, err
	}
	if len(key) < consumed {
		return nil, false, cellkit.E(cellkit.KindInvalidData, "descend_config_dict", nil)
	}
	for i := 0; i < consumed; i++ {
		if label[i] != key[i] {
			return nil, false, nil
		}
	}
	remaining -= consumed
	rest := key[consumed:]
	if remaining == 0 {
		ref, err := s.LoadRef()
		if err != nil {
			return nil, false, cellkit.E(cellkit.KindCellUnderflow, "descend_config_dict.leaf", err)
		}
		leafCell, err := ref.ToCell()
		if err != nil {
			return nil, false, cellkit.E(cellkit.KindInvalidData, "descend_config_dict.leaf", err)
		}
		return leafCell, true, nil
	}

	leftRef, err := s.LoadRef()
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "descend_config_dict.fork", err)
	}
	rightRef, err := s.LoadRef()
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindCellUnderflow, "descend_config_dict.fork", err)
	}
	var next *cell.Slice
	if rest[0] {
		next = rightRef
	} else {
		next = leftRef
	}
	nextCell, err := next.ToCell()
	if err != nil {
		return nil, false, cellkit.E(cellkit.KindInvalidData, "descend_config_dict.fork", err)
	}
	return descendConfigDict(nextCell, rest[1:], remaining-1)
}

func keyBits32(key uint32) []bool {
	bits := make([]bool, 32)
	for i := 0; i < 32; i++ {
		bits[i] = key&(1<<uint(31-i)) != 0
	}
	return bits
}

// configHasSignatureIDCapability reads ConfigParam 8 (GlobalVersion:
// capabilities#c4 version:uint32 capabilities:uint64) out of cfgCell
// — the bare config dictionary a gateway's getBlockchainConfig
// response carries — and reports whether CapSignatureWithId is set.
func configHasSignatureIDCapability(cfgCell *cell.Cell) (bool, error) {
	paramCell, found, err := descendConfigDict(cfgCell, keyBits32(8), 32)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	s := paramCell.BeginParse()
	if _, err := s.LoadUInt(8); err != nil { // capabilities#c4 tag
		return false, cellkit.E(cellkit.KindCellUnderflow, "global_version.tag", err)
	}
	if _, err := s.LoadUInt(32); err != nil { // version
		return false, cellkit.E(cellkit.KindCellUnderflow, "global_version.version", err)
	}
	caps, err := s.LoadUInt(64)
	if err != nil {
		return false, cellkit.E(cellkit.KindCellUnderflow, "global_version.capabilities", err)
	}
	return caps&capSignatureWithID != 0, nil
}
