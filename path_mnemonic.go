package btc

import (
	"context"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/charmsdev/vault-plugin-btc-wallet/wallet"
)

func pathMnemonic(b *walletBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "mnemonic/generate",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"word_count": {
					Type:        framework.TypeInt,
					Description: "Mnemonic length in words: 12, 15, 18, 21, or 24 (default: 12)",
					Default:     12,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathMnemonicGenerate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "mnemonic-generate",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathMnemonicGenerate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "mnemonic-generate",
					},
				},
			},
			ExistenceCheck:  b.pathMnemonicExistenceCheck,
			HelpSynopsis:    pathMnemonicGenerateHelpSynopsis,
			HelpDescription: pathMnemonicGenerateHelpDescription,
		},
		{
			Pattern: "mnemonic/validate",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"mnemonic": {
					Type:        framework.TypeString,
					Description: "BIP39 mnemonic phrase to validate",
					Required:    true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathMnemonicValidate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "mnemonic-validate",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathMnemonicValidate,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "mnemonic-validate",
					},
				},
			},
			ExistenceCheck:  b.pathMnemonicExistenceCheck,
			HelpSynopsis:    pathMnemonicValidateHelpSynopsis,
			HelpDescription: pathMnemonicValidateHelpDescription,
		},
	}
}

func (b *walletBackend) pathMnemonicExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	return false, nil
}

func (b *walletBackend) pathMnemonicGenerate(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	wordCount := data.Get("word_count").(int)
	b.Logger().Debug("mnemonic generate request", "word_count", wordCount)

	mnemonic, err := wallet.GenerateMnemonic(wordCount)
	if err != nil {
		if wallet.IsKind(err, wallet.KindValidation) {
			return logical.ErrorResponse(err.Error()), nil
		}
		return nil, err
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"mnemonic":   mnemonic,
			"word_count": wordCount,
		},
	}, nil
}

func (b *walletBackend) pathMnemonicValidate(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	mnemonic := data.Get("mnemonic").(string)
	if mnemonic == "" {
		return logical.ErrorResponse("mnemonic is required"), nil
	}

	result := wallet.ValidateMnemonic(mnemonic)
	b.Logger().Debug("mnemonic validated", "valid", result.Valid)

	respData := map[string]interface{}{
		"valid": result.Valid,
	}
	if result.Reason != "" {
		respData["reason"] = result.Reason
	}

	return &logical.Response{Data: respData}, nil
}

const pathMnemonicGenerateHelpSynopsis = `
Generate a new BIP39 mnemonic phrase.
`

const pathMnemonicGenerateHelpDescription = `
This endpoint generates a fresh BIP39 mnemonic from cryptographically secure
entropy. The mnemonic is returned once and never stored; back it up before
deriving addresses from it.

Example:
  $ vault write btc/mnemonic/generate word_count=24

Parameters:
  - word_count: 12, 15, 18, 21, or 24 (default: 12)
`

const pathMnemonicValidateHelpSynopsis = `
Validate a BIP39 mnemonic phrase.
`

const pathMnemonicValidateHelpDescription = `
This endpoint recomputes the BIP39 checksum for a mnemonic phrase. A
malformed phrase yields valid=false with a reason rather than an error.

Example:
  $ vault write btc/mnemonic/validate mnemonic="abandon abandon ... about"
`
