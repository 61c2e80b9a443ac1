package wallet

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Supported mnemonic word counts and their entropy sizes in bits.
var entropyBitsByWordCount = map[int]int{
	12: 128,
	15: 160,
	18: 192,
	21: 224,
	24: 256,
}

// SeedLength is the length of a BIP39-derived seed in bytes.
const SeedLength = 64

// GenerateMnemonic creates a new BIP39 mnemonic with the given word count.
// Valid word counts are 12, 15, 18, 21 and 24; entropy is drawn from
// crypto/rand.
func GenerateMnemonic(wordCount int) (string, error) {
	bits, ok := entropyBitsByWordCount[wordCount]
	if !ok {
		return "", validationError("word_count", "unsupported word count %d (must be 12, 15, 18, 21 or 24)", wordCount)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", cryptographyError("failed to generate entropy", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", cryptographyError("failed to encode mnemonic", err)
	}

	return mnemonic, nil
}

// MnemonicValidation is the result of checking a mnemonic. Malformed input
// never produces an error return, only a negative result with a reason.
type MnemonicValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateMnemonic recomputes the BIP39 checksum for a mnemonic phrase.
func ValidateMnemonic(mnemonic string) MnemonicValidation {
	words := strings.Fields(mnemonic)
	if _, ok := entropyBitsByWordCount[len(words)]; !ok {
		return MnemonicValidation{Reason: "mnemonic must contain 12, 15, 18, 21 or 24 words"}
	}

	if !bip39.IsMnemonicValid(strings.Join(words, " ")) {
		return MnemonicValidation{Reason: "mnemonic contains unknown words or a bad checksum"}
	}

	return MnemonicValidation{Valid: true}
}

// MnemonicToSeed stretches a mnemonic (and optional passphrase) into the
// 64-byte seed via PBKDF2 with 2048 rounds of HMAC-SHA512. The result is
// deterministic for a given (mnemonic, passphrase) pair.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.Join(strings.Fields(mnemonic), " "), passphrase)
	if err != nil {
		return nil, validationError("mnemonic", "invalid mnemonic: %v", err)
	}
	return seed, nil
}
