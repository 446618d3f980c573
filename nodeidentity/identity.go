// Package nodeidentity owns the node's long-lived key material: a
// BLS12-381 node key used to sign certificates and transactions, and
// an Ed25519 network key used to authenticate the libp2p transport.
// Keys are loaded from PEM files on disk, or generated and persisted
// on first run, optionally wrapped at rest under an operator-supplied
// AES-256 key-encryption key.
package nodeidentity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/pineappleworkshop/lightning/diskutil"
	"github.com/pineappleworkshop/lightning/lightningerr"
)

const (
	pemTypeNodeSecretKey    = "LIGHTNING NODE SECRET KEY"
	pemTypeNetworkSecretKey = "LIGHTNING NETWORK SECRET KEY"

	blsIKMSize = 32
)

// NodePublicKey is the compressed G2 encoding of a BLS12-381 public
// key (96 bytes).
type NodePublicKey [96]byte

// BlsSignature is the uncompressed G1 encoding of a BLS12-381
// signature (96 bytes): min-sig mode keeps signatures on G1 and
// public keys on G2, serialized uncompressed to skip the y-coordinate
// recovery step on the verifying end.
type BlsSignature [96]byte

// NetworkPublicKey is an Ed25519 public key, used to authenticate the
// node's libp2p transport identity.
type NetworkPublicKey [ed25519.PublicKeySize]byte

// Identity holds a node's complete key material.
type Identity struct {
	nodeSecretKey *blst.SecretKey
	NodePublicKey NodePublicKey

	NetworkSecretKey ed25519.PrivateKey
	NetworkPublicKey NetworkPublicKey
}

// Sign produces a BLS signature over digest, satisfying
// submission.Signer.
func (id *Identity) Sign(digest [32]byte) []byte {
	sig := new(blst.P1Affine).Sign(id.nodeSecretKey, digest[:], dst)
	return sig.Serialize()
}

// Verify checks a BLS signature produced by Sign against pk.
func Verify(pk NodePublicKey, digest [32]byte, sig BlsSignature) bool {
	pkAffine := new(blst.P2Affine).Uncompress(pk[:])
	sigAffine := new(blst.P1Affine).Deserialize(sig[:])
	if pkAffine == nil || sigAffine == nil {
		return false
	}
	return sigAffine.Verify(true, pkAffine, true, digest[:], dst)
}

// dst is the domain separation tag for BLS signatures over
// certificate and transaction digests.
var dst = []byte("LIGHTNING-BLS-SIG-V1")

// LoadOrGenerate reads the node and network secret keys from the
// given PEM paths, generating and persisting a fresh key pair at each
// path that does not yet exist. If kek is non-nil, the persisted node
// key is AES-KW wrapped under it; an existing wrapped file requires
// the same kek to unwrap.
func LoadOrGenerate(nodeKeyPath, networkKeyPath string, kek []byte) (*Identity, error) {
	nodeSK, err := loadOrGenerateNodeKey(nodeKeyPath, kek)
	if err != nil {
		return nil, err
	}
	networkSK, err := loadOrGenerateNetworkKey(networkKeyPath)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		nodeSecretKey:    nodeSK,
		NetworkSecretKey: networkSK,
		NetworkPublicKey: networkPublicKeyOf(networkSK),
	}
	copy(id.NodePublicKey[:], new(blst.P2Affine).From(nodeSK).Compress())
	return id, nil
}

func networkPublicKeyOf(sk ed25519.PrivateKey) NetworkPublicKey {
	var pk NetworkPublicKey
	copy(pk[:], sk.Public().(ed25519.PublicKey))
	return pk
}

func loadOrGenerateNodeKey(path string, kek []byte) (*blst.SecretKey, error) {
	if _, err := os.Stat(path); err == nil {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, lightningerr.New(lightningerr.Io, "read node key", err)
		}
		block, _ := pem.Decode(raw)
		if block == nil || block.Type != pemTypeNodeSecretKey {
			return nil, lightningerr.New(lightningerr.CodecViolation, "malformed node key pem", nil)
		}
		ikm := block.Bytes
		if kek != nil {
			ikm, err = UnwrapKey(kek, ikm)
			if err != nil {
				return nil, lightningerr.New(lightningerr.CodecViolation, "unwrap node key", err)
			}
		}
		return blst.KeyGen(ikm), nil
	}

	ikm := make([]byte, blsIKMSize)
	if _, err := rand.Read(ikm); err != nil {
		return nil, lightningerr.New(lightningerr.Io, "generate node key entropy", err)
	}
	sk := blst.KeyGen(ikm)

	toWrite := ikm
	if kek != nil {
		wrapped, err := WrapKey(kek, ikm)
		if err != nil {
			return nil, lightningerr.New(lightningerr.CodecViolation, "wrap node key", err)
		}
		toWrite = wrapped
	}
	block := &pem.Block{Type: pemTypeNodeSecretKey, Bytes: toWrite}
	if err := diskutil.WriteFileAtomic(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, lightningerr.New(lightningerr.Io, "persist node key", err)
	}
	return sk, nil
}

func loadOrGenerateNetworkKey(path string) (ed25519.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, lightningerr.New(lightningerr.Io, "read network key", err)
		}
		block, _ := pem.Decode(raw)
		if block == nil || block.Type != pemTypeNetworkSecretKey || len(block.Bytes) != ed25519.PrivateKeySize {
			return nil, lightningerr.New(lightningerr.CodecViolation, "malformed network key pem", nil)
		}
		return ed25519.PrivateKey(block.Bytes), nil
	}

	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, lightningerr.New(lightningerr.Io, "generate network key", err)
	}
	block := &pem.Block{Type: pemTypeNetworkSecretKey, Bytes: sk}
	if err := diskutil.WriteFileAtomic(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, lightningerr.New(lightningerr.Io, "persist network key", err)
	}
	return sk, nil
}
