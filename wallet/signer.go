package wallet

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// chainhashFromDisplay parses a display-form (byte-reversed hex) txid.
func chainhashFromDisplay(txid string) (*chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, validationError("txid", "invalid txid %q: %v", txid, err)
	}
	return h, nil
}

// SignedTransaction is the broadcastable result of signing: raw bytes in
// hex, the display txid, and the sizes the fee was computed against.
// Fee is recomputed from the finalized transaction and must equal the
// builder's figure.
type SignedTransaction struct {
	TxID   string `json:"txid"`
	RawHex string `json:"raw_hex"`
	Size   int    `json:"size"`
	VSize  int    `json:"vsize"`
	Fee    int64  `json:"fee"`
}

// Signer signs an unsigned transaction in its PSBT interchange form. Both
// implementations sign every input atomically in one call; there is no
// partially-signed success state.
type Signer interface {
	Sign(unsignedTxHex string, utxos []UTXO) (*SignedTransaction, error)
	Address() (string, error)
}

// MnemonicSigner re-derives its key from the mnemonic on every call so
// derived secrets never outlive a single signing operation.
type MnemonicSigner struct {
	mnemonic string
	network  Network
	index    uint32
}

// NewMnemonicSigner creates a signer for the receiving-chain key at index.
func NewMnemonicSigner(mnemonic string, network Network, index uint32) (*MnemonicSigner, error) {
	if _, err := network.Params(); err != nil {
		return nil, err
	}
	if v := ValidateMnemonic(mnemonic); !v.Valid {
		return nil, validationError("mnemonic", "%s", v.Reason)
	}
	return &MnemonicSigner{mnemonic: mnemonic, network: network, index: index}, nil
}

func (s *MnemonicSigner) Sign(unsignedTxHex string, utxos []UTXO) (*SignedTransaction, error) {
	seed, err := MnemonicToSeed(s.mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)

	leaf, _, err := deriveLeafKey(seed, s.network, BIP86Scope, ExternalChain, s.index)
	if err != nil {
		return nil, err
	}
	defer leaf.Zero()

	privKey, err := leaf.ECPrivKey()
	if err != nil {
		return nil, cryptographyError("failed to extract private key", err)
	}
	defer privKey.Zero()

	return signTransaction(privKey, s.network, unsignedTxHex, utxos)
}

func (s *MnemonicSigner) Address() (string, error) {
	return DeriveAddress(s.mnemonic, s.network, s.index)
}

// AddressSigner holds only a raw private key, for contexts where a
// mnemonic must never be exposed. The public key is computed by genuine
// EC scalar multiplication.
type AddressSigner struct {
	privKey *btcec.PrivateKey
	network Network
}

// NewAddressSigner creates an isolated signer from a 32-byte private key.
func NewAddressSigner(privateKey []byte, network Network) (*AddressSigner, error) {
	if _, err := network.Params(); err != nil {
		return nil, err
	}
	if len(privateKey) != 32 {
		return nil, validationError("private_key", "private key must be 32 bytes, got %d", len(privateKey))
	}
	if bytes.Equal(privateKey, make([]byte, 32)) {
		return nil, validationError("private_key", "private key must not be zero")
	}

	privKey, _ := btcec.PrivKeyFromBytes(privateKey)
	return &AddressSigner{privKey: privKey, network: network}, nil
}

func (s *AddressSigner) Sign(unsignedTxHex string, utxos []UTXO) (*SignedTransaction, error) {
	return signTransaction(s.privKey, s.network, unsignedTxHex, utxos)
}

// Address returns the Taproot address spendable by this signer's key.
func (s *AddressSigner) Address() (string, error) {
	bundle, err := bundleFromPrivateKey(s.privKey, s.network, 0, "")
	if err != nil {
		return "", err
	}
	bundle.Zero()
	return bundle.Address, nil
}

// Zero erases the signer's private key. The signer is unusable afterwards.
func (s *AddressSigner) Zero() {
	s.privKey.Zero()
}

// signTransaction completes a PSBT with Taproot key-path signatures and
// extracts the broadcastable transaction. Inputs missing witness data are
// completed from the supplied UTXOs first; attaching is idempotent when
// the builder already embedded it.
func signTransaction(privKey *btcec.PrivateKey, network Network, unsignedTxHex string, utxos []UTXO) (*SignedTransaction, error) {
	raw, err := hex.DecodeString(unsignedTxHex)
	if err != nil {
		return nil, validationError("unsigned_tx", "not valid hex: %v", err)
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, validationError("unsigned_tx", "failed to parse PSBT: %v", err)
	}

	if err := attachWitnessData(packet, utxos, network); err != nil {
		return nil, err
	}

	tx := packet.UnsignedTx
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		prevOuts[txIn.PreviousOutPoint] = packet.Inputs[i].WitnessUtxo
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i := range tx.TxIn {
		witnessUtxo := packet.Inputs[i].WitnessUtxo
		sig, err := txscript.RawTxInTaprootSignature(
			tx,
			sigHashes,
			i,
			witnessUtxo.Value,
			witnessUtxo.PkScript,
			nil, // key-path spend, no tap leaf
			txscript.SigHashDefault,
			privKey,
		)
		if err != nil {
			return nil, cryptographyError("failed to sign input", err)
		}
		packet.Inputs[i].TaprootKeySpendSig = sig
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, cryptographyError("failed to finalize PSBT", err)
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return nil, cryptographyError("failed to extract transaction", err)
	}

	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return nil, transactionError("failed to serialize transaction: %v", err)
	}

	var totalIn, totalOut int64
	for i := range finalTx.TxIn {
		totalIn += packet.Inputs[i].WitnessUtxo.Value
	}
	for _, txOut := range finalTx.TxOut {
		totalOut += txOut.Value
	}
	if totalIn < totalOut {
		return nil, transactionError("outputs %d exceed inputs %d", totalOut, totalIn)
	}

	size := buf.Len()
	stripped := finalTx.SerializeSizeStripped()

	return &SignedTransaction{
		TxID:   finalTx.TxHash().String(),
		RawHex: hex.EncodeToString(buf.Bytes()),
		Size:   size,
		VSize:  stripped + (size-stripped+3)/4,
		Fee:    totalIn - totalOut,
	}, nil
}

// attachWitnessData fills in WitnessUtxo for any input that lacks it,
// matching the supplied UTXOs by outpoint.
func attachWitnessData(packet *psbt.Packet, utxos []UTXO, network Network) error {
	for i, txIn := range packet.UnsignedTx.TxIn {
		if packet.Inputs[i].WitnessUtxo != nil {
			continue
		}

		matched := false
		for _, utxo := range utxos {
			txHash, err := chainhashFromDisplay(utxo.TxID)
			if err != nil {
				return err
			}
			if txIn.PreviousOutPoint.Hash != *txHash || txIn.PreviousOutPoint.Index != utxo.Vout {
				continue
			}

			script, err := payToAddressScript(utxo.Address, network)
			if err != nil {
				return err
			}
			packet.Inputs[i].WitnessUtxo = wire.NewTxOut(utxo.Value, script)
			matched = true
			break
		}

		if !matched {
			return validationError("utxos", "input %d has no witness data and no matching UTXO was supplied", i)
		}
	}
	return nil
}
