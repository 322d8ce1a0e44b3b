package uploader

import (
	"bytes"
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tychoproof/ton-proof-bridge/pkg/netclient"
)

func TestMakeLibStoreStateInitDeterministic(t *testing.T) {
	code := cell.BeginCell().EndCell()
	owner := netclient.Account{Workchain: 0, ID: [32]byte{0x01, 0x02}}

	a, err := MakeLibStoreStateInit(code, owner, 42)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	b, err := MakeLibStoreStateInit(code, owner, 42)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	if !bytes.Equal(a.Hash(), b.Hash()) {
		t.Error("MakeLibStoreStateInit must be deterministic for identical inputs, so re-deploying the same epoch lands on the same address")
	}
}

func TestMakeLibStoreStateInitVariesById(t *testing.T) {
	code := cell.BeginCell().EndCell()
	owner := netclient.Account{Workchain: 0, ID: [32]byte{0x01, 0x02}}

	a, err := MakeLibStoreStateInit(code, owner, 1)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	b, err := MakeLibStoreStateInit(code, owner, 2)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	if bytes.Equal(a.Hash(), b.Hash()) {
		t.Error("different epoch ids must produce different StateInit hashes")
	}
}

func TestMakeLibStoreStateInitVariesByOwner(t *testing.T) {
	code := cell.BeginCell().EndCell()
	ownerA := netclient.Account{Workchain: 0, ID: [32]byte{0x01}}
	ownerB := netclient.Account{Workchain: 0, ID: [32]byte{0x02}}

	a, err := MakeLibStoreStateInit(code, ownerA, 7)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	b, err := MakeLibStoreStateInit(code, ownerB, 7)
	if err != nil {
		t.Fatalf("MakeLibStoreStateInit: %v", err)
	}
	if bytes.Equal(a.Hash(), b.Hash()) {
		t.Error("different owner wallets must produce different StateInit hashes")
	}
}
