package kms

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	pkgerrors "github.com/pkg/errors"

	"github.com/Psychedelic/terabethia-relayer/awsclient"
	"github.com/Psychedelic/terabethia-relayer/config"
)

var ErrEmptyPlaintext = errors.New("kms returned an empty plaintext")

// KeyService is the external key-management service. Sign returns a DER encoded ECDSA
// signature over digest and PublicKey a DER encoded SubjectPublicKeyInfo.
type KeyService interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	PublicKey(ctx context.Context) ([]byte, error)
}

// AWSKeyService uses one asymmetric AWS KMS key.
type AWSKeyService struct {
	client kmsiface.KMSAPI
	keyId  string
}

func New(cfg config.KMSConfig) (*AWSKeyService, error) {
	sess, err := awsclient.NewSession(cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	return NewWithClient(awskms.New(sess), cfg.KeyId), nil
}

func NewWithClient(client kmsiface.KMSAPI, keyId string) *AWSKeyService {
	return &AWSKeyService{client: client, keyId: keyId}
}

func (s *AWSKeyService) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := s.client.DecryptWithContext(ctx, &awskms.DecryptInput{
		CiphertextBlob:      ciphertext,
		KeyId:               aws.String(s.keyId),
		EncryptionAlgorithm: aws.String(awskms.EncryptionAlgorithmSpecRsaesOaepSha256),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "kms decrypt")
	}
	if len(out.Plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}

	return out.Plaintext, nil
}

func (s *AWSKeyService) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	out, err := s.client.SignWithContext(ctx, &awskms.SignInput{
		KeyId:            aws.String(s.keyId),
		Message:          digest,
		MessageType:      aws.String(awskms.MessageTypeDigest),
		SigningAlgorithm: aws.String(awskms.SigningAlgorithmSpecEcdsaSha256),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "kms sign")
	}

	return out.Signature, nil
}

func (s *AWSKeyService) PublicKey(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetPublicKeyWithContext(ctx, &awskms.GetPublicKeyInput{
		KeyId: aws.String(s.keyId),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "kms get public key")
	}

	return out.PublicKey, nil
}
