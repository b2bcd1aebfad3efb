// Chargement du matériel de signature depuis un .p12 (PKCS#12) ou un
// couple PEM. Le magasin expose toujours un triplet certificat + clé +
// chaîne cohérent, figé au chargement.

package xades

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/pkcs12"

	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// FileCertificateStore implémente pkg/teif.CertificateProvider sur
// fichiers. Immuable après chargement; Reload remplace le lot entier sous
// verrou, jamais champ par champ.
type FileCertificateStore struct {
	mu     sync.RWMutex
	bundle *certBundle
}

type certBundle struct {
	cert   *x509.Certificate
	keyPEM []byte
	chain  [][]byte
}

// LoadFromP12 charge le magasin depuis un fichier .p12/.pfx. Le mot de
// passe peut être vide si le fichier n'est pas protégé.
func LoadFromP12(path, password string) (*FileCertificateStore, error) {
	bundle, err := readP12(path, password)
	if err != nil {
		return nil, err
	}
	return &FileCertificateStore{bundle: bundle}, nil
}

// LoadFromPEM charge le magasin depuis un certificat et une clé PEM
// séparés. certPath peut contenir la chaîne complète, certificat de
// signature en tête.
func LoadFromPEM(certPath, keyPath string) (*FileCertificateStore, error) {
	bundle, err := readPEM(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &FileCertificateStore{bundle: bundle}, nil
}

// ReloadP12 remplace atomiquement le lot courant par le contenu du
// fichier. En cas d'échec, l'ancien lot reste servi.
func (s *FileCertificateStore) ReloadP12(path, password string) error {
	bundle, err := readP12(path, password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()
	return nil
}

func (s *FileCertificateStore) current() *certBundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

func (s *FileCertificateStore) SigningCertificatePEM() ([]byte, error) {
	b := s.current()
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: b.cert.Raw}), nil
}

func (s *FileCertificateStore) SigningCertificateDER() ([]byte, error) {
	return s.current().cert.Raw, nil
}

func (s *FileCertificateStore) PrivateKeyPEM() ([]byte, error) {
	return s.current().keyPEM, nil
}

func (s *FileCertificateStore) CertificateChain() ([][]byte, error) {
	return s.current().chain, nil
}

func (s *FileCertificateStore) SerialNumberHex() (string, error) {
	return s.current().cert.SerialNumber.Text(16), nil
}

func (s *FileCertificateStore) IssuerDN() (string, error) {
	return s.current().cert.Issuer.String(), nil
}

func readP12(path, password string) (*certBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lire p12: %w", err)
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("décoder p12: %w", err)
	}
	bundle := &certBundle{}
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			der := block.Bytes
			if bundle.cert == nil {
				cert, err := x509.ParseCertificate(der)
				if err != nil {
					return nil, fmt.Errorf("certificat p12: %w", err)
				}
				bundle.cert = cert
			} else {
				bundle.chain = append(bundle.chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY":
			bundle.keyPEM = pem.EncodeToMemory(block)
		}
	}
	if bundle.cert == nil || bundle.keyPEM == nil {
		return nil, fmt.Errorf("p12 incomplet: certificat ou clé absent")
	}
	return bundle, nil
}

func readPEM(certPath, keyPath string) (*certBundle, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("lire certificat: %w", err)
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("lire clé: %w", err)
	}
	bundle := &certBundle{keyPEM: keyData}
	rest := certData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if bundle.cert == nil {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("certificat: %w", err)
			}
			bundle.cert = cert
		} else {
			bundle.chain = append(bundle.chain, pem.EncodeToMemory(block))
		}
	}
	if bundle.cert == nil {
		return nil, fmt.Errorf("aucun bloc CERTIFICATE dans %s", certPath)
	}
	if _, err := parseRSAPrivateKey(keyData); err != nil {
		return nil, fmt.Errorf("clé privée: %w", err)
	}
	return bundle, nil
}

// StaticProvider fournit un matériel en mémoire; destiné aux tests.
type StaticProvider struct {
	Cert    *x509.Certificate
	Key     *rsa.PrivateKey
	KeyDER  []byte
	ChainPE [][]byte
}

// NewStaticProvider construit le fournisseur depuis un certificat et sa
// clé RSA.
func NewStaticProvider(cert *x509.Certificate, key *rsa.PrivateKey) *StaticProvider {
	return &StaticProvider{Cert: cert, Key: key, KeyDER: x509.MarshalPKCS1PrivateKey(key)}
}

func (p *StaticProvider) SigningCertificatePEM() ([]byte, error) {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.Cert.Raw}), nil
}

func (p *StaticProvider) SigningCertificateDER() ([]byte, error) { return p.Cert.Raw, nil }

func (p *StaticProvider) PrivateKeyPEM() ([]byte, error) {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: p.KeyDER}), nil
}

func (p *StaticProvider) CertificateChain() ([][]byte, error) { return p.ChainPE, nil }

func (p *StaticProvider) SerialNumberHex() (string, error) {
	return p.Cert.SerialNumber.Text(16), nil
}

func (p *StaticProvider) IssuerDN() (string, error) { return p.Cert.Issuer.String(), nil }

var (
	_ pkgteif.CertificateProvider = (*FileCertificateStore)(nil)
	_ pkgteif.CertificateProvider = (*StaticProvider)(nil)
)
