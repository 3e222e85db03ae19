package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TxSigner holds an ECDSA (secp256k1) keypair for a transaction submitter.
// This is deliberately a different key type from the BLS PrivateKey/
// PublicKey pair validators use (bls.go): consensus signs votes, blocks and
// new-views with BLS so their signatures aggregate; a transaction author is
// a client of the chain, never a signer inside a QC or AggQC, so an
// Ethereum-compatible ECDSA key is the natural fit and lets a submitter
// reuse ordinary wallet tooling.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// NewTxSigner generates a fresh secp256k1 keypair for a transaction author.
func NewTxSigner() (*TxSigner, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("txsigner: generate key: %w", err)
	}
	return txSignerFromECDSA(privateKey)
}

// TxSignerFromHex loads a TxSigner from a hex-encoded private key, with or
// without a leading "0x".
func TxSignerFromHex(hexKey string) (*TxSigner, error) {
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("txsigner: parse private key: %w", err)
	}
	return txSignerFromECDSA(privateKey)
}

func txSignerFromECDSA(privateKey *ecdsa.PrivateKey) (*TxSigner, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("txsigner: public key is not ECDSA")
	}
	return &TxSigner{
		privateKey: privateKey,
		publicKey:  publicKeyECDSA,
		address:    ethcrypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address is the submitter identity derived from the public key; it is
// what a mempool or execution layer would use to attribute a transaction,
// entirely independent of the BLS identities the consensus layer tracks.
func (s *TxSigner) Address() common.Address { return s.address }

// PublicKeyBytes returns the uncompressed ECDSA public key, the form
// Transaction.PubKey carries on the wire.
func (s *TxSigner) PublicKeyBytes() []byte { return ethcrypto.FromECDSAPub(s.publicKey) }

// SignPayload signs arbitrary transaction payload bytes, hashing with
// Keccak256 first since raw secp256k1 signing requires a 32-byte digest.
// The returned signature is the usual [R || S || V] 65-byte Ethereum form.
func (s *TxSigner) SignPayload(payload []byte) ([]byte, error) {
	hash := ethcrypto.Keccak256Hash(payload)
	sig, err := ethcrypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("txsigner: sign: %w", err)
	}
	return sig, nil
}

// VerifyPayloadSignature reports whether sig over Keccak256(payload)
// recovers to pubKey (an uncompressed ECDSA public key, as returned by
// PublicKeyBytes). Consensus itself never calls this — a Transaction's
// signature is opaque to the protocol core — but a mempool admission
// check or an execution layer applying committed blocks needs it.
func VerifyPayloadSignature(payload, pubKey, sig []byte) bool {
	if len(sig) != 65 || len(pubKey) == 0 {
		return false
	}
	hash := ethcrypto.Keccak256Hash(payload)
	recovered, err := ethcrypto.Ecrecover(hash.Bytes(), sig)
	if err != nil {
		return false
	}
	return bytesEqual(recovered, pubKey)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
