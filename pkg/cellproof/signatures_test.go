package cellproof

import (
	"crypto/ed25519"
	"testing"

	"github.com/tychoproof/ton-proof-bridge/internal/cellkit"
)

func makeVset(t *testing.T, n int) (ValidatorSet, []ed25519.PrivateKey) {
	t.Helper()
	vset := ValidatorSet{}
	privs := make([]ed25519.PrivateKey, n)
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		var pk [32]byte
		copy(pk[:], pub)
		vset.List = append(vset.List, ValidatorDescr{PublicKey: pk, Weight: 1})
		vset.TotalWeight++
		privs[i] = priv
	}
	return vset, privs
}

func signFor(t *testing.T, priv ed25519.PrivateKey, id BlockID) SignatureEntry {
	t.Helper()
	pub := priv.Public().(ed25519.PublicKey)
	var pk [32]byte
	copy(pk[:], pub)
	sig := ed25519.Sign(priv, dataToSign(id))
	var sigArr [64]byte
	copy(sigArr[:], sig)
	return SignatureEntry{NodeIDShort: nodeIDShort(pk), Signature: sigArr}
}

func TestPrepareAndCheckSignaturesRoundTrip(t *testing.T) {
	vset, privs := makeVset(t, 3)
	id := BlockID{RootHash: [32]byte{1}, FileHash: [32]byte{2}}

	entries := []SignatureEntry{signFor(t, privs[0], id), signFor(t, privs[2], id)}

	prepared, err := PrepareSignatures(entries, vset)
	if err != nil {
		t.Fatalf("PrepareSignatures: %v", err)
	}

	decoded, err := DecodeSignatures(prepared)
	if err != nil {
		t.Fatalf("DecodeSignatures: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d signatures, want 2", len(decoded))
	}
	if decoded[0].Index != 0 || decoded[1].Index != 2 {
		t.Errorf("decoded indices = [%d, %d], want [0, 2] (ascending)", decoded[0].Index, decoded[1].Index)
	}

	// vset has weight 3 total; 2/3 is not a strict majority, so
	// checking against two of three validators (weight 2) must fail.
	if err := CheckSignatures(id, decoded, vset); err == nil {
		t.Error("CheckSignatures passed with only 2/3 weight, want failure (needs >2/3 strictly)")
	}
}

func TestCheckSignaturesStrictTwoThirds(t *testing.T) {
	vset, privs := makeVset(t, 3)
	id := BlockID{RootHash: [32]byte{9}, FileHash: [32]byte{8}}

	all := []SignatureEntry{signFor(t, privs[0], id), signFor(t, privs[1], id), signFor(t, privs[2], id)}
	prepared, err := PrepareSignatures(all, vset)
	if err != nil {
		t.Fatalf("PrepareSignatures: %v", err)
	}
	decoded, err := DecodeSignatures(prepared)
	if err != nil {
		t.Fatalf("DecodeSignatures: %v", err)
	}
	if err := CheckSignatures(id, decoded, vset); err != nil {
		t.Errorf("CheckSignatures with full weight should pass, got: %v", err)
	}
}

func TestCheckSignaturesRejectsTamperedSignature(t *testing.T) {
	vset, privs := makeVset(t, 3)
	id := BlockID{RootHash: [32]byte{3}, FileHash: [32]byte{4}}

	entries := []SignatureEntry{signFor(t, privs[0], id), signFor(t, privs[1], id), signFor(t, privs[2], id)}
	entries[0].Signature[0] ^= 0xff

	prepared, err := PrepareSignatures(entries, vset)
	if err != nil {
		t.Fatalf("PrepareSignatures: %v", err)
	}
	decoded, err := DecodeSignatures(prepared)
	if err != nil {
		t.Fatalf("DecodeSignatures: %v", err)
	}
	if err := CheckSignatures(id, decoded, vset); err == nil {
		t.Error("CheckSignatures accepted a tampered signature")
	}
}

func TestCheckSignaturesRejectsDuplicateIndex(t *testing.T) {
	// Built by hand rather than through PrepareSignatures/DecodeSignatures,
	// since those already dedup on the way in - this exercises
	// CheckSignatures' own guard against a signatures cell that bypassed
	// that path.
	vset, privs := makeVset(t, 3)
	id := BlockID{RootHash: [32]byte{11}, FileHash: [32]byte{12}}

	one := signFor(t, privs[0], id)
	var sigArr [64]byte
	copy(sigArr[:], one.Signature[:])

	// Validator 0 alone only carries weight 1 of 3, below the strict
	// 2/3 threshold - repeating its index must not let duplicate
	// counting forge the extra weight needed to pass.
	decoded := []DecodedSignature{
		{Index: 0, Sig: sigArr},
		{Index: 0, Sig: sigArr},
		{Index: 0, Sig: sigArr},
	}
	if err := CheckSignatures(id, decoded, vset); err == nil {
		t.Error("CheckSignatures accepted a duplicate validator index counted three times toward the weight threshold")
	}
}

func TestPrepareSignaturesRejectsUnknownValidator(t *testing.T) {
	vset, _ := makeVset(t, 2)
	_, strayPriv, _ := ed25519.GenerateKey(nil)
	id := BlockID{RootHash: [32]byte{5}, FileHash: [32]byte{6}}

	stray := signFor(t, strayPriv, id)
	if _, err := PrepareSignatures([]SignatureEntry{stray}, vset); err == nil {
		t.Error("PrepareSignatures accepted a signature from a validator outside vset")
	} else if !cellkit.Is(err, cellkit.KindInvalidData) {
		t.Errorf("expected KindInvalidData, got %v", err)
	}
}

func TestPrepareSignaturesRejectsDuplicateIndex(t *testing.T) {
	vset, privs := makeVset(t, 2)
	id := BlockID{RootHash: [32]byte{7}, FileHash: [32]byte{8}}

	sig := signFor(t, privs[0], id)
	if _, err := PrepareSignatures([]SignatureEntry{sig, sig}, vset); err == nil {
		t.Error("PrepareSignatures accepted two signatures for the same validator index")
	}
}

func TestPrepareSignaturesRejectsEmpty(t *testing.T) {
	vset, _ := makeVset(t, 1)
	if _, err := PrepareSignatures(nil, vset); err == nil {
		t.Error("PrepareSignatures accepted an empty signature set")
	} else if !cellkit.Is(err, cellkit.KindEmptyProof) {
		t.Errorf("expected KindEmptyProof, got %v", err)
	}
}
