package wallet

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// BIP86 reference vectors for the test mnemonic, account m/86'/0'/0'.
var bip86Vectors = []struct {
	name      string
	chain     uint32
	index     uint32
	xOnly     string
	outputKey string
	address   string
}{
	{
		name:      "receiving 0",
		chain:     ExternalChain,
		index:     0,
		xOnly:     "cc8a4bc64d897bddc5fbc2f670f7a8ba0b386779106cf1223c6fc5d7cd6fc115",
		outputKey: "a60869f0dbcf1dc659c9cecbaf8050135ea9e8cdc487053f1dc6880949dc684c",
		address:   "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr",
	},
	{
		name:      "receiving 1",
		chain:     ExternalChain,
		index:     1,
		xOnly:     "83dfe85a3151d2517290da461fe2815591ef69f2b18a2ce63f01697a8b313145",
		outputKey: "a82f29944d65b86ae6b5e5cc75e294ead6c59391a1edc5e016e3498c67fc7bbb",
		address:   "bc1p4qhjn9zdvkux4e44uhx8tc55attvtyu358kutcqkudyccelu0was9fqzwh",
	},
	{
		name:      "change 0",
		chain:     InternalChain,
		index:     0,
		xOnly:     "399f1b2f4393f29a18c937859c5dd8a77350103157eb880f02e8c08214277cef",
		outputKey: "882d74e5d0572d5a816cef0041a96b6c1de832f6f9676d9605c44d5e9a97d3dc",
		address:   "bc1p3qkhfews2uk44qtvauqyr2ttdsw7svhkl9nkm9s9c3x4ax5h60wqwruhk7",
	},
}

func TestDeriveKeyBundleVectors(t *testing.T) {
	for _, tt := range bip86Vectors {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := DeriveKeyBundleForChain(testMnemonic, NetworkMainnet, BIP86Scope, tt.chain, tt.index)
			if err != nil {
				t.Fatalf("DeriveKeyBundleForChain() error = %v", err)
			}

			if got := hex.EncodeToString(bundle.XOnlyPublicKey); got != tt.xOnly {
				t.Errorf("x-only public key = %s, want %s", got, tt.xOnly)
			}
			if got := hex.EncodeToString(bundle.TaprootOutputKey); got != tt.outputKey {
				t.Errorf("taproot output key = %s, want %s", got, tt.outputKey)
			}
			if bundle.Address != tt.address {
				t.Errorf("address = %s, want %s", bundle.Address, tt.address)
			}
		})
	}
}

func TestDeriveKeyBundleTestnet(t *testing.T) {
	// Coin type stays 0' on test networks, so the key material matches the
	// mainnet vector and only the address encoding changes.
	bundle, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}

	wantOutputKey := bip86Vectors[0].outputKey
	if got := hex.EncodeToString(bundle.TaprootOutputKey); got != wantOutputKey {
		t.Errorf("taproot output key = %s, want %s", got, wantOutputKey)
	}

	if bundle.Address[:4] != "tb1p" {
		t.Errorf("address = %s, want tb1p prefix", bundle.Address)
	}

	result, err := ValidateAddress(bundle.Address, NetworkTestnet)
	if err != nil {
		t.Fatalf("ValidateAddress() error = %v", err)
	}
	if !result.Valid || result.Type != AddressTypeP2TR {
		t.Errorf("ValidateAddress() = %+v, want valid p2tr", result)
	}
}

func TestDeriveKeyBundleInvariants(t *testing.T) {
	bundle, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 7)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}

	if len(bundle.PrivateKey) != 32 {
		t.Errorf("private key length = %d, want 32", len(bundle.PrivateKey))
	}
	if len(bundle.PublicKey) != 33 {
		t.Errorf("public key length = %d, want 33", len(bundle.PublicKey))
	}
	if !bytes.Equal(bundle.XOnlyPublicKey, bundle.PublicKey[1:]) {
		t.Error("x-only public key is not the compressed key minus the parity byte")
	}
	if bytes.Equal(bundle.TaprootOutputKey, bundle.XOnlyPublicKey) {
		t.Error("taproot output key equals the untweaked internal key")
	}
	if bundle.DerivationPath != "m/86'/0'/0'/0/7" {
		t.Errorf("derivation path = %s", bundle.DerivationPath)
	}
}

func TestDeriveKeyBundleDeterminism(t *testing.T) {
	b1, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 3)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}
	b2, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 3)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}

	if !bytes.Equal(b1.PrivateKey, b2.PrivateKey) {
		t.Error("private keys differ across calls")
	}
	if !bytes.Equal(b1.TaprootOutputKey, b2.TaprootOutputKey) {
		t.Error("taproot output keys differ across calls")
	}
	if b1.Address != b2.Address {
		t.Errorf("addresses differ across calls: %s vs %s", b1.Address, b2.Address)
	}
}

func TestDeriveAddressDistinctness(t *testing.T) {
	seen := make(map[string]uint32)
	for index := uint32(0); index < 50; index++ {
		addr, err := DeriveAddress(testMnemonic, NetworkTestnet, index)
		if err != nil {
			t.Fatalf("DeriveAddress(%d) error = %v", index, err)
		}
		if prev, ok := seen[addr]; ok {
			t.Fatalf("DeriveAddress() collision between indices %d and %d: %s", prev, index, addr)
		}
		seen[addr] = index
	}
}

func TestDerivePrivateKey(t *testing.T) {
	privKey, err := DerivePrivateKey(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("DerivePrivateKey() error = %v", err)
	}
	if len(privKey) != 32 {
		t.Fatalf("DerivePrivateKey() length = %d, want 32", len(privKey))
	}

	bundle, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}
	if !bytes.Equal(privKey, bundle.PrivateKey) {
		t.Error("DerivePrivateKey() does not match the bundle's private key")
	}
}

func TestDeriveKeyBundleErrors(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		network  Network
		chain    uint32
		wantKind ErrorKind
	}{
		{"bad mnemonic", "not a mnemonic", NetworkTestnet, ExternalChain, KindValidation},
		{"bad network", testMnemonic, Network("signet"), ExternalChain, KindValidation},
		{"bad chain", testMnemonic, NetworkTestnet, 2, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKeyBundleForChain(tt.mnemonic, tt.network, BIP86Scope, tt.chain, 0)
			if err == nil {
				t.Fatal("DeriveKeyBundleForChain() expected error")
			}
			if !IsKind(err, tt.wantKind) {
				t.Errorf("error kind = %v, want %s", err, tt.wantKind)
			}
		})
	}
}
