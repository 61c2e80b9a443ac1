package wallet

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// UTXO references an unspent output being spent. TxID is the display form
// (byte-reversed hex). The address is used to reconstruct the previous
// output script attached as witness data.
type UTXO struct {
	TxID    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Value   int64  `json:"value"`
	Address string `json:"address"`
}

// TxOutput is a payment destination.
type TxOutput struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
}

// MiningPayload is the data carried by a mining transaction's OP_RETURN
// output: the first 16 bytes of the hash followed by the nonce as a 4-byte
// big-endian integer.
type MiningPayload struct {
	Hash  string `json:"hash"`
	Nonce int64  `json:"nonce"`
}

// UnsignedTransaction is the builder's result: a hex-encoded PSBT with
// per-input witness data attached, plus the fee arithmetic that produced it.
type UnsignedTransaction struct {
	PSBTHex        string `json:"psbt_hex"`
	Fee            int64  `json:"fee"`
	EstimatedVSize int64  `json:"estimated_vsize"`
	TotalInput     int64  `json:"total_input"`
	TotalOutput    int64  `json:"total_output"`
	ChangeAmount   int64  `json:"change_amount"`
}

const (
	// DustLimit is the minimum output value in satoshis.
	DustLimit = 546

	// MinUTXOValue is the smallest UTXO the builder will spend.
	MinUTXOValue = 1000

	// MinFeeRate and MaxFeeRate bound the accepted fee rate in sat/vbyte.
	MinFeeRate = 1
	MaxFeeRate = 1000

	// TxOverhead is the base transaction overhead in vbytes.
	TxOverhead = 10

	// P2TRInputVSize is the virtual size of a Taproot key-path input:
	// 36 (outpoint) + 4 (sequence) + 1 (script length) non-witness bytes
	// plus the witness-discounted 65-byte signature stack.
	P2TRInputVSize = 57

	// P2TROutputVSize is the size of a Taproot output:
	// 8 (value) + 1 (script length) + 34 (OP_1 + 32-byte program).
	P2TROutputVSize = 43

	// MaxOpReturnDataSize is the relay-standard cap on OP_RETURN payloads.
	MaxOpReturnDataSize = 80

	// miningHashHexChars is how much of the mining hash ends up in the
	// OP_RETURN payload: 32 hex chars, 16 bytes.
	miningHashHexChars = 32
)

// EstimateVSize approximates the virtual size of a Taproot key-path spend
// with the given input and output counts. One extra output slot is always
// reserved for change so the fee does not move when a change output is
// appended later.
func EstimateVSize(numInputs, numOutputs int) int64 {
	return int64(TxOverhead) + int64(numInputs)*int64(P2TRInputVSize) + int64(numOutputs+1)*int64(P2TROutputVSize)
}

// ValidateFeeRate checks the fee rate against the accepted bounds.
func ValidateFeeRate(feeRate int64) error {
	if feeRate < MinFeeRate || feeRate > MaxFeeRate {
		return validationError("fee_rate", "fee rate %d sat/vB out of range [%d, %d]", feeRate, MinFeeRate, MaxFeeRate)
	}
	return nil
}

// validateUTXO checks the shape of a UTXO and returns its previous output
// script.
func validateUTXO(utxo UTXO, network Network) ([]byte, error) {
	if _, err := chainhash.NewHashFromStr(utxo.TxID); err != nil {
		return nil, validationError("txid", "invalid txid %q: %v", utxo.TxID, err)
	}
	if utxo.Value < MinUTXOValue {
		return nil, validationError("utxo", "utxo value %d below minimum %d", utxo.Value, MinUTXOValue)
	}
	return payToAddressScript(utxo.Address, network)
}

// OpReturnScript builds an OP_RETURN script carrying data, rejecting
// payloads past the 80-byte relay limit. Exactly 80 bytes is accepted.
func OpReturnScript(data []byte) ([]byte, error) {
	if len(data) > MaxOpReturnDataSize {
		return nil, validationError("mining_payload", "OP_RETURN payload is %d bytes, maximum is %d", len(data), MaxOpReturnDataSize)
	}

	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(data).Script()
	if err != nil {
		return nil, validationError("mining_payload", "failed to build OP_RETURN script: %v", err)
	}
	return script, nil
}

// encodeMiningPayload validates a mining payload and produces the 20-byte
// OP_RETURN data: hash[:16] followed by the big-endian nonce.
func encodeMiningPayload(payload MiningPayload) ([]byte, error) {
	if len(payload.Hash) < miningHashHexChars {
		return nil, validationError("mining_hash", "hash must be at least %d hex characters, got %d", miningHashHexChars, len(payload.Hash))
	}
	if payload.Nonce < 0 || payload.Nonce > math.MaxUint32 {
		return nil, validationError("mining_nonce", "nonce %d out of range [0, %d]", payload.Nonce, int64(math.MaxUint32))
	}

	hashBytes, err := hex.DecodeString(payload.Hash[:miningHashHexChars])
	if err != nil {
		return nil, validationError("mining_hash", "hash is not valid hex: %v", err)
	}

	data := make([]byte, 0, len(hashBytes)+4)
	data = append(data, hashBytes...)
	var nonce [4]byte
	binary.BigEndian.PutUint32(nonce[:], uint32(payload.Nonce))
	return append(data, nonce[:]...), nil
}

// BuildSimpleTransaction assembles an unsigned payment transaction. A
// change output is appended when change reaches the dust limit; sub-dust
// change is silently absorbed into the fee, so callers quoting fees to
// users should read Fee from the result rather than recomputing it.
func BuildSimpleTransaction(utxos []UTXO, outputs []TxOutput, changeAddress string, network Network, feeRate int64) (*UnsignedTransaction, error) {
	if err := ValidateFeeRate(feeRate); err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, validationError("utxos", "at least one UTXO is required")
	}
	if len(outputs) == 0 {
		return nil, validationError("outputs", "at least one output is required")
	}

	inputScripts := make([][]byte, len(utxos))
	var totalInput int64
	for i, utxo := range utxos {
		script, err := validateUTXO(utxo, network)
		if err != nil {
			return nil, err
		}
		inputScripts[i] = script
		totalInput += utxo.Value
	}

	outputScripts := make([][]byte, len(outputs))
	var totalOutput int64
	for i, out := range outputs {
		if out.Value < DustLimit {
			return nil, validationError("outputs", "output value %d below dust limit %d", out.Value, DustLimit)
		}
		script, err := payToAddressScript(out.Address, network)
		if err != nil {
			return nil, err
		}
		outputScripts[i] = script
		totalOutput += out.Value
	}

	changeScript, err := payToAddressScript(changeAddress, network)
	if err != nil {
		return nil, err
	}

	vsize := EstimateVSize(len(utxos), len(outputs))
	fee := feeRate * vsize

	change := totalInput - totalOutput - fee
	if change < 0 {
		return nil, transactionError("insufficient funds: have %d, need %d + %d fee", totalInput, totalOutput, fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, utxo := range utxos {
		txHash, _ := chainhash.NewHashFromStr(utxo.TxID)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(txHash, utxo.Vout), nil, nil))
	}
	for i, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, outputScripts[i]))
	}

	if change >= DustLimit {
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	} else {
		// Sub-dust change is not worth an output; it rides along as fee.
		fee += change
		change = 0
	}

	psbtHex, err := packUnsigned(tx, utxos, inputScripts)
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		PSBTHex:        psbtHex,
		Fee:            fee,
		EstimatedVSize: vsize,
		TotalInput:     totalInput,
		TotalOutput:    totalOutput,
		ChangeAmount:   change,
	}, nil
}

// BuildMiningTransaction assembles an unsigned mining transaction: one
// input, one zero-value OP_RETURN output carrying the mining payload, and
// one change output. Unlike the simple builder there is no silent dust
// drop; change below the dust limit fails the build.
func BuildMiningTransaction(utxo UTXO, payload MiningPayload, changeAddress string, network Network, feeRate int64) (*UnsignedTransaction, error) {
	if err := ValidateFeeRate(feeRate); err != nil {
		return nil, err
	}

	data, err := encodeMiningPayload(payload)
	if err != nil {
		return nil, err
	}
	opReturn, err := OpReturnScript(data)
	if err != nil {
		return nil, err
	}

	inputScript, err := validateUTXO(utxo, network)
	if err != nil {
		return nil, err
	}
	changeScript, err := payToAddressScript(changeAddress, network)
	if err != nil {
		return nil, err
	}

	// One input and the OP_RETURN output; the formula's reserved slot
	// covers the change output.
	vsize := EstimateVSize(1, 1)
	fee := feeRate * vsize

	change := utxo.Value - fee
	if change < DustLimit {
		return nil, transactionError("change %d below dust limit %d: utxo %d cannot fund a %d sat fee", change, DustLimit, utxo.Value, fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	txHash, _ := chainhash.NewHashFromStr(utxo.TxID)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(txHash, utxo.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, opReturn))
	tx.AddTxOut(wire.NewTxOut(change, changeScript))

	psbtHex, err := packUnsigned(tx, []UTXO{utxo}, [][]byte{inputScript})
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		PSBTHex:        psbtHex,
		Fee:            fee,
		EstimatedVSize: vsize,
		TotalInput:     utxo.Value,
		TotalOutput:    0,
		ChangeAmount:   change,
	}, nil
}

// packUnsigned wraps an unsigned transaction into a PSBT, attaching each
// input's previous output as witness data, and serializes it to hex.
func packUnsigned(tx *wire.MsgTx, utxos []UTXO, scripts [][]byte) (string, error) {
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", transactionError("failed to create PSBT: %v", err)
	}

	for i, utxo := range utxos {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(utxo.Value, scripts[i])
		packet.Inputs[i].SighashType = txscript.SigHashDefault
	}

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", transactionError("failed to serialize PSBT: %v", err)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}
