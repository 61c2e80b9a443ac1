package btc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/charmsdev/vault-plugin-btc-wallet/wallet"
)

func pathTransaction(b *walletBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "transaction/build",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"utxos": {
					Type:        framework.TypeString,
					Description: "JSON array of UTXOs: [{\"txid\": \"...\", \"vout\": 0, \"value\": 100000, \"address\": \"tb1p...\"}, ...]",
					Required:    true,
				},
				"outputs": {
					Type:        framework.TypeString,
					Description: "JSON array of outputs: [{\"address\": \"tb1p...\", \"value\": 50000}, ...]",
					Required:    true,
				},
				"change_address": {
					Type:        framework.TypeString,
					Description: "Address receiving the change output",
					Required:    true,
				},
				"fee_rate": {
					Type:        framework.TypeInt,
					Description: "Fee rate in satoshis per vbyte (default: 10)",
					Default:     10,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathTransactionBuild,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-build",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathTransactionBuild,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-build",
					},
				},
			},
			ExistenceCheck:  b.pathTransactionExistenceCheck,
			HelpSynopsis:    pathTransactionBuildHelpSynopsis,
			HelpDescription: pathTransactionBuildHelpDescription,
		},
		{
			Pattern: "transaction/build-mining",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"utxo": {
					Type:        framework.TypeString,
					Description: "JSON object for the single funding UTXO",
					Required:    true,
				},
				"mining_hash": {
					Type:        framework.TypeString,
					Description: "Hex hash whose first 32 characters go into the OP_RETURN payload",
					Required:    true,
				},
				"mining_nonce": {
					Type:        framework.TypeInt,
					Description: "Non-negative nonce encoded big-endian into the OP_RETURN payload",
					Required:    true,
				},
				"change_address": {
					Type:        framework.TypeString,
					Description: "Address receiving the change output",
					Required:    true,
				},
				"fee_rate": {
					Type:        framework.TypeInt,
					Description: "Fee rate in satoshis per vbyte (default: 10)",
					Default:     10,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathTransactionBuildMining,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-build-mining",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathTransactionBuildMining,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-build-mining",
					},
				},
			},
			ExistenceCheck:  b.pathTransactionExistenceCheck,
			HelpSynopsis:    pathTransactionBuildMiningHelpSynopsis,
			HelpDescription: pathTransactionBuildMiningHelpDescription,
		},
		{
			Pattern: "transaction/sign",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"unsigned_tx": {
					Type:        framework.TypeString,
					Description: "Hex-encoded unsigned PSBT from transaction/build",
					Required:    true,
				},
				"utxos": {
					Type:        framework.TypeString,
					Description: "JSON array of UTXOs backing the inputs (optional when the PSBT already carries witness data)",
				},
				"mnemonic": {
					Type:        framework.TypeString,
					Description: "BIP39 mnemonic; the signing key is re-derived per call",
				},
				"index": {
					Type:        framework.TypeInt,
					Description: "Address index for the mnemonic signing key (default: 0)",
					Default:     0,
				},
				"private_key": {
					Type:        framework.TypeString,
					Description: "Hex private key for the isolated signing path (alternative to mnemonic)",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathTransactionSign,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-sign",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathTransactionSign,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "transaction-sign",
					},
				},
			},
			ExistenceCheck:  b.pathTransactionExistenceCheck,
			HelpSynopsis:    pathTransactionSignHelpSynopsis,
			HelpDescription: pathTransactionSignHelpDescription,
		},
	}
}

func (b *walletBackend) pathTransactionExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	return false, nil
}

// decodeJSON unmarshals a JSON request field with strict field checking.
func decodeJSON(raw string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondEngineError maps engine errors onto the response contract:
// validation and transaction failures are user-correctable and become
// error responses; cryptography failures propagate as real errors.
func respondEngineError(err error) (*logical.Response, error) {
	if wallet.IsKind(err, wallet.KindValidation) || wallet.IsKind(err, wallet.KindTransaction) {
		return logical.ErrorResponse(err.Error()), nil
	}
	return nil, err
}

func (b *walletBackend) pathTransactionBuild(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	utxosJSON := data.Get("utxos").(string)
	outputsJSON := data.Get("outputs").(string)
	changeAddress := data.Get("change_address").(string)
	feeRate := int64(data.Get("fee_rate").(int))

	b.Logger().Debug("transaction build request", "fee_rate", feeRate)

	var utxos []wallet.UTXO
	if err := decodeJSON(utxosJSON, &utxos); err != nil {
		return logical.ErrorResponse("invalid utxos JSON: %s", err.Error()), nil
	}

	var outputs []wallet.TxOutput
	if err := decodeJSON(outputsJSON, &outputs); err != nil {
		return logical.ErrorResponse("invalid outputs JSON: %s", err.Error()), nil
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	unsigned, err := wallet.BuildSimpleTransaction(utxos, outputs, changeAddress, network, feeRate)
	if err != nil {
		return respondEngineError(err)
	}

	b.Logger().Info("transaction built",
		"inputs", len(utxos), "outputs", len(outputs),
		"fee", unsigned.Fee, "change", unsigned.ChangeAmount)

	return &logical.Response{
		Data: map[string]interface{}{
			"unsigned_tx":     unsigned.PSBTHex,
			"fee":             unsigned.Fee,
			"estimated_vsize": unsigned.EstimatedVSize,
			"total_input":     unsigned.TotalInput,
			"total_output":    unsigned.TotalOutput,
			"change_amount":   unsigned.ChangeAmount,
		},
	}, nil
}

func (b *walletBackend) pathTransactionBuildMining(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	utxoJSON := data.Get("utxo").(string)
	miningHash := data.Get("mining_hash").(string)
	miningNonce := int64(data.Get("mining_nonce").(int))
	changeAddress := data.Get("change_address").(string)
	feeRate := int64(data.Get("fee_rate").(int))

	b.Logger().Debug("mining transaction build request", "fee_rate", feeRate, "nonce", miningNonce)

	var utxo wallet.UTXO
	if err := decodeJSON(utxoJSON, &utxo); err != nil {
		return logical.ErrorResponse("invalid utxo JSON: %s", err.Error()), nil
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	payload := wallet.MiningPayload{Hash: miningHash, Nonce: miningNonce}
	unsigned, err := wallet.BuildMiningTransaction(utxo, payload, changeAddress, network, feeRate)
	if err != nil {
		return respondEngineError(err)
	}

	b.Logger().Info("mining transaction built", "fee", unsigned.Fee, "change", unsigned.ChangeAmount)

	return &logical.Response{
		Data: map[string]interface{}{
			"unsigned_tx":     unsigned.PSBTHex,
			"fee":             unsigned.Fee,
			"estimated_vsize": unsigned.EstimatedVSize,
			"total_input":     unsigned.TotalInput,
			"change_amount":   unsigned.ChangeAmount,
		},
	}, nil
}

func (b *walletBackend) pathTransactionSign(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	unsignedTx := data.Get("unsigned_tx").(string)
	utxosJSON := data.Get("utxos").(string)
	mnemonic := data.Get("mnemonic").(string)
	index := data.Get("index").(int)
	privateKeyHex := data.Get("private_key").(string)

	b.Logger().Debug("transaction sign request", "index", index, "isolated", privateKeyHex != "")

	if unsignedTx == "" {
		return logical.ErrorResponse("unsigned_tx is required"), nil
	}
	if (mnemonic == "") == (privateKeyHex == "") {
		return logical.ErrorResponse("exactly one of mnemonic or private_key must be provided"), nil
	}
	if index < 0 {
		return logical.ErrorResponse("index must be non-negative"), nil
	}

	var utxos []wallet.UTXO
	if utxosJSON != "" {
		if err := decodeJSON(utxosJSON, &utxos); err != nil {
			return logical.ErrorResponse("invalid utxos JSON: %s", err.Error()), nil
		}
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	var signer wallet.Signer
	if mnemonic != "" {
		signer, err = wallet.NewMnemonicSigner(mnemonic, network, uint32(index))
	} else {
		var privKey []byte
		privKey, err = hex.DecodeString(privateKeyHex)
		if err != nil {
			return logical.ErrorResponse("private_key is not valid hex"), nil
		}
		signer, err = wallet.NewAddressSigner(privKey, network)
	}
	if err != nil {
		return respondEngineError(err)
	}

	signed, err := signer.Sign(unsignedTx, utxos)
	if err != nil {
		return respondEngineError(err)
	}

	b.Logger().Info("transaction signed", "txid", signed.TxID, "vsize", signed.VSize, "fee", signed.Fee)

	return &logical.Response{
		Data: map[string]interface{}{
			"txid":    signed.TxID,
			"raw_hex": signed.RawHex,
			"size":    signed.Size,
			"vsize":   signed.VSize,
			"fee":     signed.Fee,
		},
	}, nil
}

const pathTransactionBuildHelpSynopsis = `
Build an unsigned Taproot payment transaction.
`

const pathTransactionBuildHelpDescription = `
This endpoint assembles an unsigned transaction spending the supplied UTXOs
to the supplied outputs, computes the fee from the fee rate and an estimated
virtual size, and appends a change output when change reaches the dust limit
(546 sats). Change below the dust limit is absorbed into the fee; always
read the returned fee instead of recomputing it.

The result is a hex-encoded PSBT carrying witness data for every input,
ready for transaction/sign.

Example:
  $ vault write btc/transaction/build \
      utxos='[{"txid":"...","vout":0,"value":100000,"address":"tb1p..."}]' \
      outputs='[{"address":"tb1p...","value":50000}]' \
      change_address=tb1p... fee_rate=2
`

const pathTransactionBuildMiningHelpSynopsis = `
Build an unsigned mining transaction with an OP_RETURN payload.
`

const pathTransactionBuildMiningHelpDescription = `
This endpoint builds a single-input transaction carrying a zero-value
OP_RETURN output (first 16 bytes of mining_hash plus the 4-byte big-endian
mining_nonce) and a change output. Unlike transaction/build, change below
the dust limit fails the build instead of being absorbed into the fee.

Example:
  $ vault write btc/transaction/build-mining \
      utxo='{"txid":"...","vout":0,"value":100000,"address":"tb1p..."}' \
      mining_hash=4f2c... mining_nonce=12345 \
      change_address=tb1p... fee_rate=2
`

const pathTransactionSignHelpSynopsis = `
Sign an unsigned transaction with a mnemonic-derived or raw key.
`

const pathTransactionSignHelpDescription = `
This endpoint completes an unsigned PSBT with Taproot key-path signatures
and returns the broadcastable raw transaction. Supply either a mnemonic plus
address index (the key is re-derived for this call only) or a raw hex
private key for the isolated signing path.

All inputs are signed in one call; a failure on any input aborts without
partial output. Broadcasting is left to the caller.

Example:
  $ vault write btc/transaction/sign unsigned_tx=70736274ff... \
      mnemonic="abandon ... about" index=0
`
