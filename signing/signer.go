package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// AlgorithmECDSASHA256 is the only signature algorithm issued awards carry.
const AlgorithmECDSASHA256 = "ECDSA-SHA256"

var (
	// ErrNoCredentials signals the provider has no key material for the
	// arbitrator. Finalization aborts on this.
	ErrNoCredentials = errors.New("signing: no credentials for arbitrator")
)

// Credentials is an arbitrator's signing key pair and certificate.
type Credentials struct {
	PrivateKey  *ecdsa.PrivateKey
	Certificate *x509.Certificate
}

// CredentialsProvider resolves an arbitrator to signing credentials. The
// production implementation fronts the organization's key management
// service; tests and development use LocalProvider.
type CredentialsProvider interface {
	CredentialsFor(ctx context.Context, arbitratorID string) (Credentials, error)
}

// Signature is the result of signing a rendered award document.
type Signature struct {
	Value           string
	Algorithm       string
	CertFingerprint string
}

// Sign computes an ECDSA signature over the SHA-256 digest of the document.
func Sign(creds Credentials, document []byte) (Signature, error) {
	if creds.PrivateKey == nil || creds.Certificate == nil {
		return Signature{}, ErrNoCredentials
	}

	digest := sha256.Sum256(document)
	sig, err := ecdsa.SignASN1(rand.Reader, creds.PrivateKey, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("signing: sign digest: %w", err)
	}

	fingerprint := sha256.Sum256(creds.Certificate.Raw)
	return Signature{
		Value:           base64.StdEncoding.EncodeToString(sig),
		Algorithm:       AlgorithmECDSASHA256,
		CertFingerprint: hex.EncodeToString(fingerprint[:]),
	}, nil
}

// Verify checks a signature produced by Sign against the document and the
// signer's certificate.
func Verify(cert *x509.Certificate, document []byte, signature string) error {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("signing: certificate key is not ECDSA")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signing: decode signature: %w", err)
	}
	digest := sha256.Sum256(document)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return fmt.Errorf("signing: signature does not verify")
	}
	return nil
}

// LocalProvider issues self-signed per-arbitrator credentials, generated on
// first request and cached. Development and test use only.
type LocalProvider struct {
	mu    sync.Mutex
	creds map[string]Credentials
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{creds: make(map[string]Credentials)}
}

func (p *LocalProvider) CredentialsFor(_ context.Context, arbitratorID string) (Credentials, error) {
	if arbitratorID == "" {
		return Credentials{}, ErrNoCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.creds[arbitratorID]; ok {
		return c, nil
	}

	c, err := generateSelfSigned(arbitratorID)
	if err != nil {
		return Credentials{}, err
	}
	p.creds[arbitratorID] = c
	return c, nil
}

func generateSelfSigned(arbitratorID string) (Credentials, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credentials{}, fmt.Errorf("signing: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Credentials{}, fmt.Errorf("signing: generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "arbitrator:" + arbitratorID,
			Organization: []string{"awardflow"},
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return Credentials{}, fmt.Errorf("signing: create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Credentials{}, fmt.Errorf("signing: parse certificate: %w", err)
	}

	return Credentials{PrivateKey: key, Certificate: cert}, nil
}
