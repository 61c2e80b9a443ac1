package btc

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/charmsdev/vault-plugin-btc-wallet/wallet"
)

const configStoragePath = "config"

// engineConfig stores the secrets engine configuration
type engineConfig struct {
	Network string `json:"network"`
}

func pathConfig(b *walletBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "config",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "btc",
			},
			Fields: map[string]*framework.FieldSchema{
				"network": {
					Type:        framework.TypeString,
					Description: "Bitcoin network: mainnet, testnet, or testnet4",
					Default:     "mainnet",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathConfigRead,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.DeleteOperation: &framework.PathOperation{
					Callback: b.pathConfigDelete,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
			},
			ExistenceCheck:  b.pathConfigExistenceCheck,
			HelpSynopsis:    pathConfigHelpSynopsis,
			HelpDescription: pathConfigHelpDescription,
		},
	}
}

func (b *walletBackend) pathConfigExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	out, err := req.Storage.Get(ctx, configStoragePath)
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return out != nil, nil
}

func (b *walletBackend) pathConfigRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("reading config")
	config, err := getConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	if config == nil {
		b.Logger().Debug("no config found")
		return nil, nil
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"network": config.Network,
		},
	}, nil
}

func (b *walletBackend) pathConfigWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("writing config", "operation", req.Operation)
	config, err := getConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	if config == nil {
		config = &engineConfig{}
	}

	network := data.Get("network").(string)
	if _, err := wallet.ParseNetwork(network); err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}
	config.Network = network

	entry, err := logical.StorageEntryJSON(configStoragePath, config)
	if err != nil {
		return nil, fmt.Errorf("error creating config entry: %w", err)
	}

	if err := req.Storage.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("error saving config: %w", err)
	}

	b.Logger().Info("config updated", "network", config.Network)
	return nil, nil
}

func (b *walletBackend) pathConfigDelete(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("deleting config")
	if err := req.Storage.Delete(ctx, configStoragePath); err != nil {
		return nil, fmt.Errorf("error deleting config: %w", err)
	}
	return nil, nil
}

// getConfig retrieves the engine configuration from storage
func getConfig(ctx context.Context, s logical.Storage) (*engineConfig, error) {
	entry, err := s.Get(ctx, configStoragePath)
	if err != nil {
		return nil, fmt.Errorf("error retrieving config: %w", err)
	}

	if entry == nil {
		return nil, nil
	}

	config := new(engineConfig)
	if err := entry.DecodeJSON(config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	return config, nil
}

// getNetwork returns the configured network, defaulting to mainnet when
// the mount has not been configured.
func getNetwork(ctx context.Context, s logical.Storage) (wallet.Network, error) {
	config, err := getConfig(ctx, s)
	if err != nil {
		return "", err
	}

	if config == nil || config.Network == "" {
		return wallet.NetworkMainnet, nil
	}

	return wallet.ParseNetwork(config.Network)
}

const pathConfigHelpSynopsis = `
Configure the Bitcoin wallet secrets engine.
`

const pathConfigHelpDescription = `
This endpoint configures the network used by all derivation and transaction
paths on this mount. Supported networks are mainnet, testnet, and testnet4.
Testnet and testnet4 currently share address encoding but are tracked as
distinct selectors.

Example:
  $ vault write btc/config network=testnet
`
