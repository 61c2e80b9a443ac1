package btc

import (
	"context"
	"strings"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
)

// walletBackend defines the backend for the Bitcoin wallet secrets engine.
// The backend is stateless: mnemonics and private keys arrive as request
// fields and are never written to storage. Only the network selection is
// persisted as mount configuration.
type walletBackend struct {
	*framework.Backend
}

// Factory creates a new backend instance
func Factory(ctx context.Context, conf *logical.BackendConfig) (logical.Backend, error) {
	b := backend()
	if err := b.Setup(ctx, conf); err != nil {
		return nil, err
	}
	return b, nil
}

func backend() *walletBackend {
	b := &walletBackend{}

	b.Backend = &framework.Backend{
		Help: strings.TrimSpace(backendHelp),
		PathsSpecial: &logical.Paths{
			SealWrapStorage: []string{
				"config",
			},
		},
		Paths: framework.PathAppend(
			pathConfig(b),
			pathMnemonic(b),
			pathAddress(b),
			pathTransaction(b),
		),
		Secrets:     []*framework.Secret{},
		BackendType: logical.TypeLogical,
	}

	return b
}

const backendHelp = `
The Bitcoin wallet secrets engine derives Taproot keys and addresses from
BIP39 mnemonics and builds and signs Taproot key-path transactions.

The engine holds no wallet state. Every request that needs key material
carries the mnemonic (or a raw private key, for the isolated signing path)
as a request field, and the derived secrets live only for the duration of
that request. Configure the network once at the mount level:

  $ vault write btc/config network=testnet

Then derive addresses, build unsigned transactions, and sign them:

  $ vault write btc/address/derive mnemonic="..." index=0
  $ vault write btc/transaction/build utxos=... outputs=... change_address=... fee_rate=2
  $ vault write btc/transaction/sign unsigned_tx=... utxos=... mnemonic="..." index=0

Broadcasting the signed transaction and sourcing UTXOs are left to external
collaborators.
`
