// Package hawk implements the server and client halves of the Hawk HTTP
// authentication scheme (header variant, version 1) for a single static
// credential set.
//
// A request is accepted only when its header parses, the credential id is
// known, the timestamp is within the allowed skew, the MAC and payload hash
// match, and the nonce has not been seen for that credential within the
// replay window. The nonce is recorded last so a forged header cannot burn
// a legitimate client's nonce.
package hawk

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1a11/billard/internal/cryptoutil"
)

const (
	DefaultSkew      = 60 * time.Second
	DefaultAlgorithm = cryptoutil.SHA256

	headerPrefix  = "hawk.1.header"
	payloadPrefix = "hawk.1.payload"
)

// ErrUnauthorized matches every authentication failure.
var ErrUnauthorized = errors.New("hawk: unauthorized")

// Reason is a coarse failure class, safe to log and to use as a metric label.
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonMalformed  Reason = "malformed"
	ReasonUnknownID  Reason = "unknown_id"
	ReasonStale      Reason = "stale"
	ReasonBadMAC     Reason = "bad_mac"
	ReasonBadPayload Reason = "bad_payload"
	ReasonReplay     Reason = "replay"
)

// AuthError carries the failure reason. Its message never includes header
// values or key material.
type AuthError struct {
	Reason Reason
}

func (e *AuthError) Error() string        { return "hawk: " + string(e.Reason) }
func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

func errReason(r Reason) error { return &AuthError{Reason: r} }

// ReasonOf extracts the failure reason, or "" when err is not an AuthError.
func ReasonOf(err error) Reason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// Credential is one shared secret.
type Credential struct {
	ID        string
	Key       []byte
	Algorithm string
}

type CredentialStore interface {
	Lookup(id string) (Credential, bool)
}

// StaticCredentials is a fixed credential table keyed by id.
type StaticCredentials map[string]Credential

func (s StaticCredentials) Lookup(id string) (Credential, bool) {
	c, ok := s[id]
	return c, ok
}

// NonceChecker reports whether a nonce was already used by a credential,
// recording it when it was not.
type NonceChecker interface {
	CheckAndRecordUntil(credentialID, nonce string, keepUntil time.Time) (replay bool)
}

// Artifacts are the request properties covered by the MAC.
type Artifacts struct {
	TS       int64
	Nonce    string
	Method   string
	Resource string
	Host     string
	Port     int
	Hash     string
	Ext      string
}

func (a Artifacts) normalized() string {
	var b strings.Builder
	b.Grow(128 + len(a.Resource) + len(a.Ext))
	b.WriteString(headerPrefix)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(a.TS, 10))
	b.WriteByte('\n')
	b.WriteString(a.Nonce)
	b.WriteByte('\n')
	b.WriteString(strings.ToUpper(a.Method))
	b.WriteByte('\n')
	b.WriteString(a.Resource)
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(a.Host))
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(a.Port))
	b.WriteByte('\n')
	b.WriteString(a.Hash)
	b.WriteByte('\n')
	b.WriteString(escapeExt(a.Ext))
	b.WriteByte('\n')
	return b.String()
}

func escapeExt(ext string) string {
	if !strings.ContainsAny(ext, "\\\n") {
		return ext
	}
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(ext)
}

// MAC computes the request MAC for cred over a.
func MAC(cred Credential, a Artifacts) (string, error) {
	return cryptoutil.HMACBase64(algorithmOf(cred), cred.Key, a.normalized())
}

// PayloadHash computes the Hawk payload hash. contentType is reduced to its
// lowercased media type before hashing.
func PayloadHash(alg, contentType string, body []byte) (string, error) {
	return cryptoutil.DigestBase64(alg,
		[]byte(payloadPrefix+"\n"),
		[]byte(normalizeContentType(contentType)+"\n"),
		body,
		[]byte("\n"),
	)
}

func normalizeContentType(ct string) string {
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func algorithmOf(c Credential) string {
	if c.Algorithm == "" {
		return DefaultAlgorithm
	}
	return c.Algorithm
}

// Request is one inbound authorization attempt.
type Request struct {
	Method        string
	Host          string
	Port          int
	Resource      string
	ContentType   string
	Body          []byte
	Authorization string
}

// RequestFromHTTP builds a Request from r and its already-read body. When
// the Host header carries no port, externalPort is used if non-zero, else
// 443 for TLS connections and 80 otherwise.
func RequestFromHTTP(r *http.Request, body []byte, externalPort int) Request {
	host, port := splitHostPort(r.Host)
	if port == 0 {
		switch {
		case externalPort > 0:
			port = externalPort
		case r.TLS != nil:
			port = 443
		default:
			port = 80
		}
	}
	return Request{
		Method:        r.Method,
		Host:          host,
		Port:          port,
		Resource:      r.URL.RequestURI(),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	}
}

func splitHostPort(hostport string) (string, int) {
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.Trim(hostport, "[]"), 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, 0
	}
	return h, n
}

// Authenticator verifies Hawk requests.
type Authenticator struct {
	creds  CredentialStore
	nonces NonceChecker
	skew   time.Duration
	now    func() time.Time
}

type Option func(*Authenticator)

func WithSkew(d time.Duration) Option {
	return func(a *Authenticator) { a.skew = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func NewAuthenticator(creds CredentialStore, nonces NonceChecker, opts ...Option) *Authenticator {
	a := &Authenticator{
		creds:  creds,
		nonces: nonces,
		skew:   DefaultSkew,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authenticate runs every check and returns the matching credential.
// Failures are *AuthError values matching ErrUnauthorized.
func (a *Authenticator) Authenticate(req Request) (Credential, error) {
	if req.Authorization == "" {
		return Credential{}, errReason(ReasonMissing)
	}
	h, err := ParseHeader(req.Authorization)
	if err != nil {
		return Credential{}, err
	}
	ts, err := strconv.ParseInt(h.TS, 10, 64)
	if err != nil {
		return Credential{}, errReason(ReasonMalformed)
	}

	cred, ok := a.creds.Lookup(h.ID)
	if !ok || len(cred.Key) == 0 {
		return Credential{}, errReason(ReasonUnknownID)
	}

	now, sent := a.now(), time.Unix(ts, 0)
	if sent.Before(now.Add(-a.skew)) || sent.After(now.Add(a.skew)) {
		return Credential{}, errReason(ReasonStale)
	}

	mac, err := MAC(cred, Artifacts{
		TS:       ts,
		Nonce:    h.Nonce,
		Method:   req.Method,
		Resource: req.Resource,
		Host:     req.Host,
		Port:     req.Port,
		Hash:     h.Hash,
		Ext:      h.Ext,
	})
	if err != nil {
		return Credential{}, errReason(ReasonUnknownID)
	}
	if !cryptoutil.HashEqual(mac, h.MAC) {
		return Credential{}, errReason(ReasonBadMAC)
	}

	hash, err := PayloadHash(algorithmOf(cred), req.ContentType, req.Body)
	if err != nil {
		return Credential{}, errReason(ReasonBadPayload)
	}
	if !cryptoutil.HashEqual(hash, h.Hash) {
		return Credential{}, errReason(ReasonBadPayload)
	}

	// the nonce has to outlive every instant at which ts still passes the
	// skew check, ts has second resolution
	if a.nonces.CheckAndRecordUntil(cred.ID, h.Nonce, sent.Add(a.skew+time.Second)) {
		return Credential{}, errReason(ReasonReplay)
	}
	return cred, nil
}

// SignRequest describes an outbound request to sign.
type SignRequest struct {
	Method      string
	Host        string
	Port        int
	Resource    string
	ContentType string
	Body        []byte
	Ext         string
}

// Sign returns an Authorization header value for req.
func Sign(cred Credential, req SignRequest, now time.Time, nonce string) (string, error) {
	hash, err := PayloadHash(algorithmOf(cred), req.ContentType, req.Body)
	if err != nil {
		return "", err
	}
	ts := now.Unix()
	mac, err := MAC(cred, Artifacts{
		TS:       ts,
		Nonce:    nonce,
		Method:   req.Method,
		Resource: req.Resource,
		Host:     req.Host,
		Port:     req.Port,
		Hash:     hash,
		Ext:      req.Ext,
	})
	if err != nil {
		return "", err
	}
	return Header{
		ID:    cred.ID,
		TS:    strconv.FormatInt(ts, 10),
		Nonce: nonce,
		Hash:  hash,
		Ext:   req.Ext,
		MAC:   mac,
	}.String(), nil
}

// NewNonce returns a random nonce suitable for Sign.
func NewNonce() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
