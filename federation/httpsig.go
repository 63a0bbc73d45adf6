package federation

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/go-fed/httpsig"
)

// Signatures cover these headers; bodiless requests drop the digest.
var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// SignRequest signs req with the given private key. A non-nil body also
// gets a Digest header. keyID format: "https://example.com/u/alice#main-key"
func SignRequest(req *http.Request, body []byte, privateKey *rsa.PrivateKey, keyID string) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("Host", req.URL.Host)

	headers := signedHeaders
	if body == nil {
		headers = signedHeaders[:len(signedHeaders)-1]
	}
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		60,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create signer")
	}
	return signer.SignRequest(privateKey, keyID, req, body)
}

// KeyID returns the keyId named by the request signature.
func KeyID(r *http.Request) (string, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to read signature")
	}
	return verifier.KeyId(), nil
}

// VerifyRequest checks the signature on r against publicKeyPem and, for a
// non-nil body, the Digest header. It returns the keyId.
func VerifyRequest(r *http.Request, body []byte, publicKeyPem string) (string, error) {
	if r.Header.Get("Host") == "" {
		r.Header.Set("Host", r.Host)
	}
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to read signature")
	}

	publicKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}
	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return "", errors.Wrap(err, "signature verification failed")
	}
	if body != nil {
		if err := verifyDigest(r.Header.Get("Digest"), body); err != nil {
			return "", err
		}
	}
	return verifier.KeyId(), nil
}

func verifyDigest(header string, body []byte) error {
	if header == "" {
		return errors.New("missing Digest header")
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(value), []byte(want)) == 1 {
			return nil
		}
		return errors.New("digest mismatch")
	}
	return errors.New("no SHA-256 digest")
}

// ParsePrivateKey converts a PKCS#1 or PKCS#8 PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return rsaKey, nil
}

// ParsePublicKey converts a PKIX or PKCS#1 PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		return key, errors.Wrap(err, "failed to parse public key")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPubKey, nil
}

// ActorResolver finds the actor owning a signing key.
type ActorResolver interface {
	Resolve(ctx context.Context, iri string) (*domain.User, error)
}

// KeyFetcher dereferences standalone key documents.
type KeyFetcher interface {
	Dereference(ctx context.Context, iri string, into any) error
}

// Verifier authenticates inbound requests by their HTTP signature.
type Verifier struct {
	actors ActorResolver
	keys   KeyFetcher
}

func NewVerifier(actors ActorResolver, keys KeyFetcher) *Verifier {
	return &Verifier{actors: actors, keys: keys}
}

// keyDocument covers both a bare key ({"id","owner","publicKeyPem"}) and an
// actor embedding its key.
type keyDocument struct {
	Owner     string `json:"owner"`
	PublicKey struct {
		Owner string `json:"owner"`
	} `json:"publicKey"`
}

// Verify returns the actor that signed r. Failures are KindVerification,
// except when the key owner cannot be fetched.
func (v *Verifier) Verify(ctx context.Context, r *http.Request, body []byte) (*domain.User, error) {
	keyID, err := KeyID(r)
	if err != nil {
		return nil, domain.Verification("verify signature", err)
	}
	owner, _, hasFragment := strings.Cut(keyID, "#")

	actor, err := v.actors.Resolve(ctx, owner)
	if !hasFragment && domain.KindOf(err) == domain.KindVerification {
		// ".../users/x/main-key": the key lives at its own IRI.
		if owner, err = v.keyOwner(ctx, keyID); err == nil {
			actor, err = v.actors.Resolve(ctx, owner)
		}
	}
	if err != nil {
		return nil, err
	}
	if _, err := VerifyRequest(r, body, actor.PublicKeyPem); err != nil {
		return nil, domain.Verification("verify signature", err)
	}
	return actor, nil
}

// keyOwner reads the owner named by the key document at keyID. The owner
// must live on the key's host.
func (v *Verifier) keyOwner(ctx context.Context, keyID string) (string, error) {
	var doc keyDocument
	if err := v.keys.Dereference(ctx, keyID, &doc); err != nil {
		return "", domain.Unavailable("fetch key", err)
	}
	owner := doc.Owner
	if owner == "" {
		owner = doc.PublicKey.Owner
	}
	if owner == "" || owner == keyID {
		return "", domain.Verification("fetch key", errors.Errorf("key %s names no owner", keyID))
	}
	if !sameHost(owner, keyID) {
		return "", domain.Verification("fetch key", errors.Errorf("key %s claims foreign owner %s", keyID, owner))
	}
	return owner, nil
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
