package btc

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/skip2/go-qrcode"

	"github.com/charmsdev/vault-plugin-btc-wallet/wallet"
)

func pathAddress(b *walletBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "address/derive",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"mnemonic": {
					Type:        framework.TypeString,
					Description: "BIP39 mnemonic phrase",
					Required:    true,
				},
				"index": {
					Type:        framework.TypeInt,
					Description: "Address index on the receiving chain (default: 0)",
					Default:     0,
				},
				"include_keys": {
					Type:        framework.TypeBool,
					Description: "Include private key material in the response (default: false)",
					Default:     false,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathAddressDerive,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-derive",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathAddressDerive,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-derive",
					},
				},
			},
			ExistenceCheck:  b.pathAddressExistenceCheck,
			HelpSynopsis:    pathAddressDeriveHelpSynopsis,
			HelpDescription: pathAddressDeriveHelpDescription,
		},
		{
			Pattern: "address/validate",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"address": {
					Type:        framework.TypeString,
					Description: "Address to validate against the configured network",
					Required:    true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathAddressValidate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-validate",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathAddressValidate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-validate",
					},
				},
			},
			ExistenceCheck:  b.pathAddressExistenceCheck,
			HelpSynopsis:    pathAddressValidateHelpSynopsis,
			HelpDescription: pathAddressValidateHelpDescription,
		},
		{
			Pattern: "address/qr",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"address": {
					Type:        framework.TypeString,
					Description: "Receive address to encode",
					Required:    true,
				},
				"size": {
					Type:        framework.TypeInt,
					Description: "QR code size in pixels (default: 256)",
					Default:     256,
				},
				"format": {
					Type:        framework.TypeString,
					Description: "Output format: 'png' (base64) or 'ascii' (default: png)",
					Default:     "png",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathAddressQR,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-qr",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathAddressQR,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "address-qr",
					},
				},
			},
			ExistenceCheck:  b.pathAddressExistenceCheck,
			HelpSynopsis:    pathAddressQRHelpSynopsis,
			HelpDescription: pathAddressQRHelpDescription,
		},
	}
}

func (b *walletBackend) pathAddressExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	return false, nil
}

func (b *walletBackend) pathAddressDerive(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	mnemonic := data.Get("mnemonic").(string)
	index := data.Get("index").(int)
	includeKeys := data.Get("include_keys").(bool)

	b.Logger().Debug("address derive request", "index", index, "include_keys", includeKeys)

	if mnemonic == "" {
		return logical.ErrorResponse("mnemonic is required"), nil
	}
	if index < 0 {
		return logical.ErrorResponse("index must be non-negative"), nil
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	bundle, err := wallet.DeriveKeyBundle(mnemonic, network, uint32(index))
	if err != nil {
		if wallet.IsKind(err, wallet.KindValidation) {
			return logical.ErrorResponse(err.Error()), nil
		}
		return nil, err
	}
	defer bundle.Zero()

	respData := map[string]interface{}{
		"address":         bundle.Address,
		"index":           bundle.Index,
		"derivation_path": bundle.DerivationPath,
		"network":         string(network),
		"address_type":    wallet.AddressTypeP2TR,
	}

	if includeKeys {
		respData["private_key"] = hex.EncodeToString(bundle.PrivateKey)
		respData["public_key"] = hex.EncodeToString(bundle.PublicKey)
		respData["x_only_public_key"] = hex.EncodeToString(bundle.XOnlyPublicKey)
		respData["taproot_output_key"] = hex.EncodeToString(bundle.TaprootOutputKey)
	}

	return &logical.Response{Data: respData}, nil
}

func (b *walletBackend) pathAddressValidate(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	address := data.Get("address").(string)
	if address == "" {
		return logical.ErrorResponse("address is required"), nil
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	result, err := wallet.ValidateAddress(address, network)
	if err != nil {
		return nil, err
	}

	b.Logger().Debug("address validated", "valid", result.Valid, "type", result.Type)

	respData := map[string]interface{}{
		"valid": result.Valid,
	}
	if result.Valid {
		respData["network"] = string(result.Network)
		respData["type"] = result.Type
	}
	if result.Reason != "" {
		respData["reason"] = result.Reason
	}

	return &logical.Response{Data: respData}, nil
}

func (b *walletBackend) pathAddressQR(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	address := data.Get("address").(string)
	size := data.Get("size").(int)
	format := data.Get("format").(string)

	b.Logger().Debug("QR code request", "format", format, "size", size)

	if address == "" {
		return logical.ErrorResponse("address is required"), nil
	}
	if size < 64 || size > 1024 {
		return logical.ErrorResponse("size must be between 64 and 1024"), nil
	}

	network, err := getNetwork(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	result, err := wallet.ValidateAddress(address, network)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return logical.ErrorResponse("invalid address: %s", result.Reason), nil
	}

	// BIP21 URI
	uri := fmt.Sprintf("bitcoin:%s", address)

	respData := map[string]interface{}{
		"address": address,
		"uri":     uri,
	}

	if format == "ascii" {
		qr, err := qrcode.New(uri, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("failed to generate QR code: %w", err)
		}
		respData["qr"] = qr.ToSmallString(false)
	} else {
		png, err := qrcode.Encode(uri, qrcode.Medium, size)
		if err != nil {
			return nil, fmt.Errorf("failed to generate QR code: %w", err)
		}
		respData["qr_png"] = base64.StdEncoding.EncodeToString(png)
	}

	return &logical.Response{Data: respData}, nil
}

const pathAddressDeriveHelpSynopsis = `
Derive a Taproot address from a mnemonic.
`

const pathAddressDeriveHelpDescription = `
This endpoint derives the BIP86 receiving address (m/86'/0'/0'/0/index) for
the supplied mnemonic. The mnemonic is used only for the duration of the
request and never stored.

Set include_keys=true to also return the private key, compressed public key,
x-only public key, and tweaked Taproot output key as hex. Only do this over
a trusted channel.

Example:
  $ vault write btc/address/derive mnemonic="abandon ... about" index=0
`

const pathAddressValidateHelpSynopsis = `
Validate an address against the configured network.
`

const pathAddressValidateHelpDescription = `
This endpoint decodes an address under the configured network's parameters
and reports its script type (p2tr, p2wpkh, p2pkh, ...). A malformed address
yields valid=false with a reason.

Example:
  $ vault write btc/address/validate address=tb1p...
`

const pathAddressQRHelpSynopsis = `
Get a QR code for a receive address.
`

const pathAddressQRHelpDescription = `
This endpoint returns a QR code containing a BIP21 URI (bitcoin:address)
for the supplied address.

For ASCII format, use -field to display correctly in terminal:
  $ vault write -field=qr btc/address/qr address=tb1p... format=ascii

Parameters:
  - size: QR code size in pixels (default: 256, range: 64-1024)
  - format: 'png' for base64-encoded PNG, 'ascii' for terminal display
`
