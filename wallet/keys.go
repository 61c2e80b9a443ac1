package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/txscript"
)

// maxInvalidChildRetries bounds the BIP32 invalid-child retry loop at the
// leaf index. A single invalid child has probability ~2^-127, so hitting
// the bound means something other than bad luck is wrong.
const maxInvalidChildRetries = 8

// KeyBundle is the complete per-index key material for a Taproot address.
// XOnlyPublicKey is the compressed public key minus its parity byte;
// TaprootOutputKey is the BIP341-tweaked key the address commits to.
type KeyBundle struct {
	PrivateKey       []byte
	PublicKey        []byte
	XOnlyPublicKey   []byte
	TaprootOutputKey []byte
	Address          string
	Index            uint32
	DerivationPath   string
}

// Zero overwrites the bundle's private key material.
func (b *KeyBundle) Zero() {
	zeroBytes(b.PrivateKey)
}

func zeroBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// deriveLeafKey walks m/purpose'/coin_type'/account'/chain/index over the
// seed and returns the leaf extended key together with the index actually
// used. Per BIP32 a derived child can be invalid (key zero or past the
// curve order); the leaf level handles that by moving to the next index
// rather than surfacing an opaque failure. Intermediate keys are zeroed
// before returning on every path.
func deriveLeafKey(seed []byte, network Network, scope KeyScope, chain, index uint32) (*hdkeychain.ExtendedKey, uint32, error) {
	params, err := network.Params()
	if err != nil {
		return nil, 0, err
	}

	if chain != ExternalChain && chain != InternalChain {
		return nil, 0, validationError("chain", "chain must be 0 (receiving) or 1 (change), got %d", chain)
	}

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, 0, cryptographyError("failed to create master key", err)
	}
	defer master.Zero()

	// Fixed hardened prefix. An invalid child here cannot be skipped
	// without changing the account path, so it is surfaced as-is.
	steps := []uint32{
		hdkeychain.HardenedKeyStart + scope.Purpose,
		hdkeychain.HardenedKeyStart + scope.CoinType,
		hdkeychain.HardenedKeyStart + scope.Account,
		chain,
	}

	key := master
	for depth, step := range steps {
		child, err := key.Derive(step)
		if key != master {
			key.Zero()
		}
		if err != nil {
			return nil, 0, cryptographyError(fmt.Sprintf("failed to derive path step %d", depth), err)
		}
		key = child
	}
	defer key.Zero()

	for attempt := 0; attempt < maxInvalidChildRetries; attempt++ {
		leaf, err := key.Derive(index)
		if err == nil {
			return leaf, index, nil
		}
		if !errors.Is(err, hdkeychain.ErrInvalidChild) {
			return nil, 0, cryptographyError(fmt.Sprintf("failed to derive index %d", index), err)
		}
		index++
	}

	return nil, 0, cryptographyError("exhausted invalid-child retries", hdkeychain.ErrInvalidChild)
}

// DeriveKeyBundle derives the receiving-chain key bundle for an index.
// Identical (mnemonic, network, index) inputs always produce identical
// bundles; nothing is cached between calls.
func DeriveKeyBundle(mnemonic string, network Network, index uint32) (*KeyBundle, error) {
	return DeriveKeyBundleForChain(mnemonic, network, BIP86Scope, ExternalChain, index)
}

// DeriveKeyBundleForChain derives a key bundle on an explicit scope and
// chain (receiving or change).
func DeriveKeyBundleForChain(mnemonic string, network Network, scope KeyScope, chain, index uint32) (*KeyBundle, error) {
	seed, err := MnemonicToSeed(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)

	leaf, usedIndex, err := deriveLeafKey(seed, network, scope, chain, index)
	if err != nil {
		return nil, err
	}
	defer leaf.Zero()

	privKey, err := leaf.ECPrivKey()
	if err != nil {
		return nil, cryptographyError("failed to extract private key", err)
	}
	defer privKey.Zero()

	return bundleFromPrivateKey(privKey, network, usedIndex, derivationPath(scope, chain, usedIndex))
}

// bundleFromPrivateKey assembles the key bundle for a private key, whether
// it came out of the HD tree or was supplied directly.
func bundleFromPrivateKey(privKey *btcec.PrivateKey, network Network, index uint32, path string) (*KeyBundle, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}

	pubKey := privKey.PubKey()
	compressed := pubKey.SerializeCompressed()

	outputKey := txscript.ComputeTaprootKeyNoScript(pubKey)
	outputKeyBytes := schnorr.SerializePubKey(outputKey)

	addr, err := btcutil.NewAddressTaproot(outputKeyBytes, params)
	if err != nil {
		return nil, cryptographyError("failed to encode taproot address", err)
	}

	priv := make([]byte, 32)
	copy(priv, privKey.Serialize())

	return &KeyBundle{
		PrivateKey:       priv,
		PublicKey:        compressed,
		XOnlyPublicKey:   compressed[1:],
		TaprootOutputKey: outputKeyBytes,
		Address:          addr.EncodeAddress(),
		Index:            index,
		DerivationPath:   path,
	}, nil
}

// DerivePrivateKey derives the 32-byte receiving-chain private key for an
// index.
func DerivePrivateKey(mnemonic string, network Network, index uint32) ([]byte, error) {
	bundle, err := DeriveKeyBundle(mnemonic, network, index)
	if err != nil {
		return nil, err
	}
	return bundle.PrivateKey, nil
}

// derivationPath renders the full path for display, e.g. m/86'/0'/0'/0/5.
func derivationPath(scope KeyScope, chain, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", scope.Purpose, scope.CoinType, scope.Account, chain, index)
}
