package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// getKeyMethod is the fully-qualified method name a sidecar fronting the
// real DCE/RPC GetKey call is expected to expose.
const getKeyMethod = "/dpapi_ng.KeyDistribution/GetKey"

// rawCodecName is the content-subtype this client negotiates, so it never
// collides with a peer's default "proto" codec registration.
const rawCodecName = "dpapi-ng-raw"

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// rawCodec passes already-encoded []byte payloads through unchanged. Used in
// place of a generated protobuf codec since the wire contract here is a
// local sidecar's own framing, not a publicly-versioned .proto schema this
// module owns.
type rawCodec struct{}

func (rawCodec) Name() string { return rawCodecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("dpapi-ng grpc transport: unsupported message type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("dpapi-ng grpc transport: unsupported message type %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

// getKeyRequest is the wire shape sent to a GetKey sidecar.
type getKeyRequest struct {
	TargetSD  []byte     `json:"target_sd"`
	RootKeyID *uuid.UUID `json:"root_key_id,omitempty"`
	L0        int32      `json:"l0"`
	L1        int32      `json:"l1"`
	L2        int32      `json:"l2"`
}

// getKeyResponse mirrors cache.envelopeJSON's field set; kept independent so
// the transport wire contract doesn't change if the cache's internal JSON
// shape does.
type getKeyResponse struct {
	Version                  uint32
	Flags                    uint32
	L0, L1, L2               int32
	RootKeyID                uuid.UUID
	KDFAlgorithm             string
	KDFParams                []byte
	SecretAgreementAlgorithm string
	SecretAgreementParams    []byte
	PrivateKeyLength         uint32
	PublicKeyLength          uint32
	Domain, Forest           string
	L1Key, L2Key             []byte
}

func (r getKeyResponse) toDomain() *domain.GroupKeyEnvelope {
	return &domain.GroupKeyEnvelope{
		Version: r.Version, Flags: r.Flags,
		L0: r.L0, L1: r.L1, L2: r.L2,
		RootKeyID:                r.RootKeyID,
		KDFAlgorithm:             r.KDFAlgorithm,
		KDFParams:                r.KDFParams,
		SecretAgreementAlgorithm: r.SecretAgreementAlgorithm,
		SecretAgreementParams:    r.SecretAgreementParams,
		PrivateKeyLength:         r.PrivateKeyLength,
		PublicKeyLength:          r.PublicKeyLength,
		Domain:                   r.Domain,
		Forest:                   r.Forest,
		L1Key:                    r.L1Key,
		L2Key:                    r.L2Key,
	}
}

// GRPCClient implements GetKeyClient by forwarding GetKey calls to a local
// gRPC sidecar, for deployments that front the real DCE/RPC GetKey call with
// a process that already knows how to speak it (common in containerized
// environments that cannot open a raw DCE/RPC connection themselves). This
// client never speaks DCE/RPC or NDR64 itself; it only relays a JSON-encoded
// request/response pair over an arbitrary gRPC transport.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient wraps an already-dialed *grpc.ClientConn.
func NewGRPCClient(conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// GetKey implements GetKeyClient.
func (c *GRPCClient) GetKey(ctx context.Context, targetSD []byte, rootKeyID *uuid.UUID, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error) {
	reqBytes, err := json.Marshal(getKeyRequest{TargetSD: targetSD, RootKeyID: rootKeyID, L0: l0, L1: l1, L2: l2})
	if err != nil {
		return nil, fmt.Errorf("dpapi-ng grpc transport: marshal request: %w", err)
	}

	var respBytes []byte
	if err := c.conn.Invoke(ctx, getKeyMethod, &reqBytes, &respBytes, grpc.CallContentSubtype(rawCodecName)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	var resp getKeyResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("dpapi-ng grpc transport: unmarshal response: %w", err)
	}
	return resp.toDomain(), nil
}
