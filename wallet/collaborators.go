package wallet

import "context"

// Broadcaster submits a finalized transaction to the network. The engine
// never broadcasts; callers pair it with an implementation of their choice.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawHex string) (txid string, err error)
}

// UTXOSource supplies spendable outputs for an address. The engine never
// queries the chain; the builder takes UTXO records as explicit input.
type UTXOSource interface {
	ListUTXOs(ctx context.Context, address string) ([]UTXO, error)
}
