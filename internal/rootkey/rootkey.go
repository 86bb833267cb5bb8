// Package rootkey manages the local keychain of GKDI RootKeys used to seed
// the L1/L2 ratchet when no remote GetKey collaborator is configured (tests,
// offline tooling, or an operator who mirrors root keys out of band).
package rootkey

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
	"github.com/allisson/dpapi-ng/internal/dpapi/kek"
)

// defaultKDFHash is the hash algorithm a root key's kdf_parameters blob
// defaults to when the caller doesn't supply one, matching the original
// load_key's KDFParameters("SHA512").
const defaultKDFHash = "SHA512"

// record is the wire shape of one entry in the ROOT_KEYS JSON array.
type record struct {
	ID                       string `json:"id"`
	Data                     string `json:"data"`
	KDFAlgorithm             string `json:"kdf_algorithm"`
	KDFParams                string `json:"kdf_params,omitempty"`
	SecretAgreementAlgorithm string `json:"secret_agreement_algorithm,omitempty"`
	SecretAgreementParams    string `json:"secret_agreement_params,omitempty"`
	PrivateKeyLength         uint32 `json:"private_key_length,omitempty"`
	PublicKeyLength          uint32 `json:"public_key_length,omitempty"`
}

// Chain manages a collection of RootKeys keyed by ID. Safe for concurrent
// use; entries are immutable once loaded.
type Chain struct {
	keys sync.Map // uuid.UUID -> *domain.RootKey
}

// New returns an empty Chain. Use LoadKey to populate it, or LoadChainFromEnv
// to build one from ROOT_KEYS directly.
func New() *Chain {
	return &Chain{}
}

// Get retrieves a root key by its ID.
func (c *Chain) Get(id uuid.UUID) (*domain.RootKey, bool) {
	v, ok := c.keys.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*domain.RootKey), true
}

// LoadKey registers a root key, overwriting any existing entry with the same
// ID.
func (c *Chain) LoadKey(rk *domain.RootKey) {
	c.keys.Store(rk.ID, rk)
}

// All returns every root key currently registered, in no particular order.
func (c *Chain) All() []*domain.RootKey {
	var all []*domain.RootKey
	c.keys.Range(func(_, v any) bool {
		all = append(all, v.(*domain.RootKey))
		return true
	})
	return all
}

// Close zeros every root key's data and clears the chain.
func (c *Chain) Close() {
	c.keys.Range(func(_, v any) bool {
		v.(*domain.RootKey).Close()
		return true
	})
	c.keys.Clear()
}

// LoadOption customises a RootKey built by Load beyond its defaults.
type LoadOption func(*domain.RootKey)

// WithKDFParams overrides the default SHA512 kdf_parameters blob.
func WithKDFParams(algorithm string, params []byte) LoadOption {
	return func(rk *domain.RootKey) {
		rk.KDFAlgorithm = algorithm
		rk.KDFParams = params
	}
}

// WithSecretAgreement overrides the default DH/RFC-5114 secret-agreement
// parameters.
func WithSecretAgreement(algorithm string, params []byte) LoadOption {
	return func(rk *domain.RootKey) {
		rk.SecretAgreementAlgorithm = algorithm
		rk.SecretAgreementParams = params
	}
}

// WithKeyLengths overrides the default 512/2048-bit private/public key
// lengths.
func WithKeyLengths(private, public uint32) LoadOption {
	return func(rk *domain.RootKey) {
		rk.PrivateKeyLength = private
		rk.PublicKeyLength = public
	}
}

// Load builds a RootKey from its 64-byte msKds-RootKeyData and id, applying
// the same defaulting the original load_key performs: kdf_algorithm
// defaults to "SP800_108_CTR_HMAC" with kdf_parameters naming SHA512;
// secret_algorithm defaults to "DH" with secret_parameters defaulting to
// the RFC 5114 2048-bit MODP group with 256-bit prime order subgroup.
// Options override any of these before defaulting is applied.
func Load(id uuid.UUID, data []byte, opts ...LoadOption) *domain.RootKey {
	rk := &domain.RootKey{
		ID:                       id,
		Data:                     data,
		KDFAlgorithm:             "SP800_108_CTR_HMAC",
		SecretAgreementAlgorithm: "DH",
		PrivateKeyLength:         512,
		PublicKeyLength:          2048,
	}
	for _, opt := range opts {
		opt(rk)
	}
	applyDefaults(rk)
	return rk
}

// applyDefaults fills in kdf_algorithm/kdf_parameters, secret_algorithm/
// secret_parameters, and the DH key lengths left unset after construction,
// whether by Load's options or by a ROOT_KEYS record that omitted them. A
// kdf_algorithm already naming a hash directly (the locally-loaded
// convenience some callers use instead of the GKDI kdf_parameters
// indirection) is left alone: kdf_parameters only gets synthesised when
// kdf_algorithm is the real protocol name that requires it.
func applyDefaults(rk *domain.RootKey) {
	if rk.KDFAlgorithm == "" {
		rk.KDFAlgorithm = "SP800_108_CTR_HMAC"
	}
	if rk.KDFAlgorithm == "SP800_108_CTR_HMAC" && len(rk.KDFParams) == 0 {
		rk.KDFParams = kdf.PackKDFParameters(defaultKDFHash)
	}
	if rk.SecretAgreementAlgorithm == "" {
		rk.SecretAgreementAlgorithm = "DH"
	}
	if rk.PrivateKeyLength == 0 {
		rk.PrivateKeyLength = 512
	}
	if rk.PublicKeyLength == 0 {
		rk.PublicKeyLength = 2048
	}
	if rk.SecretAgreementAlgorithm == "DH" && len(rk.SecretAgreementParams) == 0 {
		rk.SecretAgreementParams = kek.RFC5114MODP2048With256().Pack(rk.PublicKeyLength)
	}
}

// LoadChainFromEnv loads root keys from the ROOT_KEYS environment variable,
// a JSON array of objects with id/data/kdf_algorithm and the optional
// secret-agreement and key-length fields domain.RootKey carries. data and
// the *_params fields are base64-encoded.
func LoadChainFromEnv() (*Chain, error) {
	raw := os.Getenv("ROOT_KEYS")
	if raw == "" {
		return nil, ErrRootKeysNotSet
	}
	return loadChain(raw)
}

func loadChain(raw string) (*Chain, error) {
	var recs []record
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, domain.NewParseError("ROOT_KEYS", 0, err)
	}

	chain := New()
	for _, rec := range recs {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			chain.Close()
			return nil, domain.NewParseError("root_key.id", 0, err)
		}
		data, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			chain.Close()
			return nil, domain.NewParseError("root_key.data", 0, err)
		}
		kdfParams, err := decodeOptionalBase64(rec.KDFParams)
		if err != nil {
			chain.Close()
			return nil, domain.NewParseError("root_key.kdf_params", 0, err)
		}
		sapParams, err := decodeOptionalBase64(rec.SecretAgreementParams)
		if err != nil {
			chain.Close()
			return nil, domain.NewParseError("root_key.secret_agreement_params", 0, err)
		}

		rk := &domain.RootKey{
			ID:                       id,
			Data:                     data,
			KDFAlgorithm:             rec.KDFAlgorithm,
			KDFParams:                kdfParams,
			SecretAgreementAlgorithm: rec.SecretAgreementAlgorithm,
			SecretAgreementParams:    sapParams,
			PrivateKeyLength:         rec.PrivateKeyLength,
			PublicKeyLength:          rec.PublicKeyLength,
		}
		applyDefaults(rk)
		chain.LoadKey(rk)
	}
	return chain, nil
}

func decodeOptionalBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
