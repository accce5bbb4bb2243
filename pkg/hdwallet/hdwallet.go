package hdwallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// BIP44 path components: m/44'/{coinType}'/0'/0/{index}
const (
	purpose = 44

	// CoinTypeEther is the default coin type for new deposit addresses.
	// Older schemes remain derivable for historical verification.
	CoinTypeEther = 60
)

// Deriver derives deposit addresses and their keys from a single master seed.
// Derivation is pure and deterministic: the same (coinType, index) pair always
// yields the same address.
type Deriver struct {
	master *hdkeychain.ExtendedKey
}

// ValidateMnemonic checks that the mnemonic has a supported word count and a
// valid BIP39 checksum. Called once at startup; an invalid seed is a fatal
// configuration error.
func ValidateMnemonic(mnemonic string) error {
	words := len(strings.Fields(mnemonic))
	switch words {
	case 12, 15, 18, 21, 24:
	default:
		return fmt.Errorf("mnemonic must be 12, 15, 18, 21 or 24 words, got %d", words)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("mnemonic checksum is invalid")
	}
	return nil
}

// NewDeriver builds a deriver from a BIP39 mnemonic.
func NewDeriver(mnemonic string) (*Deriver, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, fmt.Errorf("validate mnemonic: %w", err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	return &Deriver{master: master}, nil
}

// Derive returns the lowercase hex address at m/44'/{coinType}'/0'/0/{index}.
func (d *Deriver) Derive(coinType, index uint32) (string, error) {
	key, err := d.child(coinType, index)
	if err != nil {
		return "", err
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return "", fmt.Errorf("extract private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(priv.ToECDSA().PublicKey)
	return strings.ToLower(addr.Hex()), nil
}

// PrivateKey returns the private key for the address at the given path.
// For the authorized sweep process only; never expose through the API layer.
func (d *Deriver) PrivateKey(coinType, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := d.child(coinType, index)
	if err != nil {
		return nil, err
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}

	return priv.ToECDSA(), nil
}

// DerivationPath renders the canonical path string stored alongside each
// issued address.
func DerivationPath(coinType, index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", coinType, index)
}

func (d *Deriver) child(coinType, index uint32) (*hdkeychain.ExtendedKey, error) {
	steps := []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart, // account 0'
		0,                           // external chain
		index,
	}

	key := d.master
	for _, step := range steps {
		child, err := key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", step, err)
		}
		key = child
	}
	return key, nil
}
