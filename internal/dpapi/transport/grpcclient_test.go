package transport

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// fixedGetKeyHandler always returns one canned getKeyResponse, ignoring the
// request payload, enough to exercise GRPCClient's encode/invoke/decode path
// without a real GKDI sidecar.
func fixedGetKeyHandler(rootKeyID uuid.UUID) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		var reqBytes []byte
		if err := dec(&reqBytes); err != nil {
			return nil, err
		}

		resp := getKeyResponse{
			Version: 1, Flags: 0,
			L0: 1, L1: 31, L2: 31,
			RootKeyID:    rootKeyID,
			KDFAlgorithm: "SHA256",
			L1Key:        []byte("l1-seed-material-32-bytes-long!!"),
		}
		respBytes, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		return &respBytes, nil
	}
}

func dialBufconn(t *testing.T, rootKeyID uuid.UUID) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "dpapi_ng.KeyDistribution",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetKey", Handler: fixedGetKeyHandler(rootKeyID)},
		},
		Streams: []grpc.StreamDesc{},
	}, struct{}{})

	go func() {
		_ = server.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	return conn, func() {
		_ = conn.Close()
		server.Stop()
	}
}

func TestGRPCClient_GetKey(t *testing.T) {
	rootKeyID := uuid.New()
	conn, cleanup := dialBufconn(t, rootKeyID)
	defer cleanup()

	client := NewGRPCClient(conn)

	env, err := client.GetKey(context.Background(), []byte("target-sd"), nil, -1, -1, -1)
	require.NoError(t, err)
	require.NotNil(t, env)

	assert.Equal(t, rootKeyID, env.RootKeyID)
	assert.Equal(t, int32(31), env.L1)
	assert.Equal(t, int32(31), env.L2)
	assert.Equal(t, "SHA256", env.KDFAlgorithm)
}

func TestRawCodec_RoundTrip(t *testing.T) {
	c := rawCodec{}
	payload := []byte("arbitrary-bytes")

	marshaled, err := c.Marshal(&payload)
	require.NoError(t, err)
	assert.Equal(t, payload, marshaled)

	var out []byte
	require.NoError(t, c.Unmarshal(marshaled, &out))
	assert.Equal(t, payload, out)
}
