package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// DeriveAddress derives the bech32m Taproot receiving address for an index.
func DeriveAddress(mnemonic string, network Network, index uint32) (string, error) {
	bundle, err := DeriveKeyBundle(mnemonic, network, index)
	if err != nil {
		return "", err
	}
	bundle.Zero()
	return bundle.Address, nil
}

// DeriveChangeAddress derives the internal-chain (change) address for an
// index.
func DeriveChangeAddress(mnemonic string, network Network, index uint32) (string, error) {
	bundle, err := DeriveKeyBundleForChain(mnemonic, network, BIP86Scope, InternalChain, index)
	if err != nil {
		return "", err
	}
	bundle.Zero()
	return bundle.Address, nil
}

// AddressValidation is the result of checking an address against a network.
type AddressValidation struct {
	Valid   bool    `json:"valid"`
	Network Network `json:"network,omitempty"`
	Type    string  `json:"type,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// ValidateAddress decodes an address under the network's parameters and
// reports its script type. Malformed input yields a negative result, not an
// error.
func ValidateAddress(address string, network Network) (AddressValidation, error) {
	params, err := network.Params()
	if err != nil {
		return AddressValidation{}, err
	}

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return AddressValidation{Reason: "failed to decode address: " + err.Error()}, nil
	}

	if !addr.IsForNet(params) {
		return AddressValidation{Reason: "address is not for the " + string(network) + " network"}, nil
	}

	return AddressValidation{
		Valid:   true,
		Network: network,
		Type:    addressType(addr),
	}, nil
}

func addressType(addr btcutil.Address) string {
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return "p2pkh"
	case *btcutil.AddressScriptHash:
		return "p2sh"
	case *btcutil.AddressWitnessPubKeyHash:
		return "p2wpkh"
	case *btcutil.AddressWitnessScriptHash:
		return "p2wsh"
	case *btcutil.AddressTaproot:
		return AddressTypeP2TR
	default:
		return "unknown"
	}
}

// payToAddressScript returns the scriptPubKey paying to an address,
// validating it against the network first.
func payToAddressScript(address string, network Network) ([]byte, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, validationError("address", "invalid address %q: %v", address, err)
	}
	if !addr.IsForNet(params) {
		return nil, validationError("address", "address %q is not for the %s network", address, network)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, validationError("address", "failed to build script for %q: %v", address, err)
	}

	return script, nil
}
