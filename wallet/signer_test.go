package wallet

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func decodeSignedTx(t *testing.T, rawHex string) *wire.MsgTx {
	t.Helper()
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		t.Fatalf("signed tx hex decode error = %v", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("signed tx deserialize error = %v", err)
	}
	return &tx
}

func TestMnemonicSignerSimplePayment(t *testing.T) {
	source := testAddress(t, 0)
	dest := testAddress(t, 1)
	change := testAddress(t, 2)

	utxos := []UTXO{{TxID: testTxID, Vout: 0, Value: 100_000, Address: source}}
	outputs := []TxOutput{{Address: dest, Value: 50_000}}

	unsigned, err := BuildSimpleTransaction(utxos, outputs, change, NetworkTestnet, 2)
	if err != nil {
		t.Fatalf("BuildSimpleTransaction() error = %v", err)
	}

	signer, err := NewMnemonicSigner(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("NewMnemonicSigner() error = %v", err)
	}

	addr, err := signer.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}
	if addr != source {
		t.Errorf("signer address = %s, want %s", addr, source)
	}

	signed, err := signer.Sign(unsigned.PSBTHex, nil)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if signed.Fee != unsigned.Fee {
		t.Errorf("signed fee = %d, builder fee = %d", signed.Fee, unsigned.Fee)
	}

	tx := decodeSignedTx(t, signed.RawHex)
	if tx.TxHash().String() != signed.TxID {
		t.Errorf("txid = %s, want %s", signed.TxID, tx.TxHash().String())
	}

	if len(tx.TxIn) != 1 {
		t.Fatalf("input count = %d, want 1", len(tx.TxIn))
	}
	witness := tx.TxIn[0].Witness
	if len(witness) != 1 {
		t.Fatalf("witness stack depth = %d, want 1 (key-path spend)", len(witness))
	}
	if len(witness[0]) != 64 {
		t.Errorf("signature length = %d, want 64 (SIGHASH_DEFAULT)", len(witness[0]))
	}

	// The estimate reserves the change slot; the real signed size may differ
	// by a couple of vbytes of varint slack but never more.
	diff := signed.VSize - int(unsigned.EstimatedVSize)
	if diff < -3 || diff > 3 {
		t.Errorf("vsize = %d, estimate = %d", signed.VSize, unsigned.EstimatedVSize)
	}

	// Verify the Schnorr signature against the tweaked output key.
	bundle, err := DeriveKeyBundle(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("DeriveKeyBundle() error = %v", err)
	}
	defer bundle.Zero()

	prevScript, err := payToAddressScript(source, NetworkTestnet)
	if err != nil {
		t.Fatalf("payToAddressScript() error = %v", err)
	}
	prevOuts := map[wire.OutPoint]*wire.TxOut{
		tx.TxIn[0].PreviousOutPoint: wire.NewTxOut(100_000, prevScript),
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sigHash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, 0, fetcher)
	if err != nil {
		t.Fatalf("CalcTaprootSignatureHash() error = %v", err)
	}

	sig, err := schnorr.ParseSignature(witness[0])
	if err != nil {
		t.Fatalf("ParseSignature() error = %v", err)
	}
	outputKey, err := schnorr.ParsePubKey(bundle.TaprootOutputKey)
	if err != nil {
		t.Fatalf("ParsePubKey() error = %v", err)
	}
	if !sig.Verify(sigHash, outputKey) {
		t.Error("signature does not verify against the taproot output key")
	}
}

func TestMnemonicSignerMultiInput(t *testing.T) {
	dest := testAddress(t, 1)
	change := testAddress(t, 2)
	source := testAddress(t, 0)

	utxos := []UTXO{
		{TxID: testTxID, Vout: 0, Value: 60_000, Address: source},
		{TxID: testTxID, Vout: 1, Value: 40_000, Address: source},
	}
	outputs := []TxOutput{{Address: dest, Value: 80_000}}

	unsigned, err := BuildSimpleTransaction(utxos, outputs, change, NetworkTestnet, 1)
	if err != nil {
		t.Fatalf("BuildSimpleTransaction() error = %v", err)
	}

	signer, err := NewMnemonicSigner(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("NewMnemonicSigner() error = %v", err)
	}
	signed, err := signer.Sign(unsigned.PSBTHex, nil)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tx := decodeSignedTx(t, signed.RawHex)
	if len(tx.TxIn) != 2 {
		t.Fatalf("input count = %d, want 2", len(tx.TxIn))
	}
	for i, txIn := range tx.TxIn {
		if len(txIn.Witness) != 1 || len(txIn.Witness[0]) != 64 {
			t.Errorf("input %d witness malformed", i)
		}
	}
	if signed.Fee != unsigned.Fee {
		t.Errorf("signed fee = %d, builder fee = %d", signed.Fee, unsigned.Fee)
	}
}

func TestAddressSignerMiningTransaction(t *testing.T) {
	source := testAddress(t, 0)
	change := testAddress(t, 2)

	privKey, err := DerivePrivateKey(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("DerivePrivateKey() error = %v", err)
	}

	signer, err := NewAddressSigner(privKey, NetworkTestnet)
	if err != nil {
		t.Fatalf("NewAddressSigner() error = %v", err)
	}

	addr, err := signer.Address()
	if err != nil {
		t.Fatalf("Address() error = %v", err)
	}
	if addr != source {
		t.Errorf("signer address = %s, want %s", addr, source)
	}

	utxo := UTXO{TxID: testTxID, Vout: 0, Value: 100_000, Address: source}
	payload := MiningPayload{Hash: strings.Repeat("1f", 32), Nonce: 7}

	unsigned, err := BuildMiningTransaction(utxo, payload, change, NetworkTestnet, 2)
	if err != nil {
		t.Fatalf("BuildMiningTransaction() error = %v", err)
	}

	signed, err := signer.Sign(unsigned.PSBTHex, nil)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tx := decodeSignedTx(t, signed.RawHex)
	if len(tx.TxOut) != 2 {
		t.Fatalf("output count = %d, want 2", len(tx.TxOut))
	}
	if tx.TxOut[0].PkScript[0] != txscript.OP_RETURN {
		t.Error("first output is not the OP_RETURN commitment")
	}
	if signed.Fee != unsigned.Fee {
		t.Errorf("signed fee = %d, builder fee = %d", signed.Fee, unsigned.Fee)
	}
}

func TestSignAttachesMissingWitnessData(t *testing.T) {
	source := testAddress(t, 0)
	dest := testAddress(t, 1)
	change := testAddress(t, 2)

	utxos := []UTXO{{TxID: testTxID, Vout: 0, Value: 100_000, Address: source}}
	outputs := []TxOutput{{Address: dest, Value: 50_000}}

	unsigned, err := BuildSimpleTransaction(utxos, outputs, change, NetworkTestnet, 2)
	if err != nil {
		t.Fatalf("BuildSimpleTransaction() error = %v", err)
	}

	// Strip the embedded witness data so the signer has to reattach it
	// from the supplied UTXO set.
	packet := parsePacket(t, unsigned.PSBTHex)
	packet.Inputs[0].WitnessUtxo = nil
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		t.Fatalf("PSBT serialize error = %v", err)
	}
	strippedHex := hex.EncodeToString(buf.Bytes())

	signer, err := NewMnemonicSigner(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("NewMnemonicSigner() error = %v", err)
	}

	t.Run("with matching utxos", func(t *testing.T) {
		signed, err := signer.Sign(strippedHex, utxos)
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		if signed.Fee != unsigned.Fee {
			t.Errorf("signed fee = %d, builder fee = %d", signed.Fee, unsigned.Fee)
		}
	})

	t.Run("without matching utxos", func(t *testing.T) {
		_, err := signer.Sign(strippedHex, nil)
		if err == nil {
			t.Fatal("Sign() expected error for missing witness data")
		}
		if !IsKind(err, KindValidation) {
			t.Errorf("error kind = %v, want validation", err)
		}
	})
}

func TestSignRejectsMalformedInput(t *testing.T) {
	signer, err := NewMnemonicSigner(testMnemonic, NetworkTestnet, 0)
	if err != nil {
		t.Fatalf("NewMnemonicSigner() error = %v", err)
	}

	tests := []struct {
		name string
		hex  string
	}{
		{"not hex", "zz"},
		{"not a psbt", "deadbeef"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Sign(tt.hex, nil)
			if err == nil {
				t.Fatal("Sign() expected error")
			}
			if !IsKind(err, KindValidation) {
				t.Errorf("error kind = %v, want validation", err)
			}
		})
	}
}

func TestNewMnemonicSignerErrors(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		network  Network
	}{
		{"bad mnemonic", "not a mnemonic", NetworkTestnet},
		{"bad network", testMnemonic, Network("signet")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMnemonicSigner(tt.mnemonic, tt.network, 0)
			if err == nil {
				t.Fatal("NewMnemonicSigner() expected error")
			}
			if !IsKind(err, KindValidation) {
				t.Errorf("error kind = %v, want validation", err)
			}
		})
	}
}

func TestNewAddressSignerErrors(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"nil key", nil},
		{"short key", make([]byte, 31)},
		{"long key", make([]byte, 33)},
		{"zero key", make([]byte, 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAddressSigner(tt.key, NetworkTestnet)
			if err == nil {
				t.Fatal("NewAddressSigner() expected error")
			}
			if !IsKind(err, KindValidation) {
				t.Errorf("error kind = %v, want validation", err)
			}
		})
	}
}
