package ic

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/aviate-labs/agent-go/identity"
	"github.com/aviate-labs/agent-go/principal"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Psychedelic/terabethia-relayer/kms"
)

var ErrPrivateKeyInKMS = errors.New("kms identity cannot export its private key")

// KMSIdentity is a secp256k1 canister caller whose private key never leaves KMS.
type KMSIdentity struct {
	keys    kms.KeyService
	timeout time.Duration

	der    []byte
	pubkey []byte
	sender principal.Principal

	mu      sync.Mutex
	signErr error
}

var _ identity.Identity = (*KMSIdentity)(nil)

func NewKMSIdentity(ctx context.Context, keys kms.KeyService, timeout time.Duration) (*KMSIdentity, error) {
	der, err := keys.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := kms.ParsePublicKey(der)
	if err != nil {
		return nil, err
	}

	return &KMSIdentity{
		keys:    keys,
		timeout: timeout,
		der:     der,
		pubkey:  crypto.FromECDSAPub(pub),
		sender:  principal.NewSelfAuthenticating(der),
	}, nil
}

func (id *KMSIdentity) Sender() principal.Principal {
	return id.sender
}

// PublicKey returns the DER encoded public key sent along with every request.
func (id *KMSIdentity) PublicKey() []byte {
	return id.der
}

// Sign returns the [R || S] signature of sha256(msg). The agent offers no error
// return, so a KMS failure yields nil and is kept for the next takeSignError.
func (id *KMSIdentity) Sign(msg []byte) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), id.timeout)
	defer cancel()

	digest := sha256.Sum256(msg)
	der, err := id.keys.Sign(ctx, digest[:])
	if err == nil {
		var sig []byte
		if sig, err = kms.CompactSignature(der); err == nil {
			return sig
		}
	}

	id.mu.Lock()
	id.signErr = err
	id.mu.Unlock()
	return nil
}

func (id *KMSIdentity) Verify(msg, sig []byte) bool {
	digest := sha256.Sum256(msg)
	return crypto.VerifySignature(id.pubkey, digest[:], sig)
}

func (id *KMSIdentity) ToPEM() ([]byte, error) {
	return nil, ErrPrivateKeyInKMS
}

func (id *KMSIdentity) takeSignError() error {
	id.mu.Lock()
	defer id.mu.Unlock()

	err := id.signErr
	id.signErr = nil
	return err
}
