package geyser

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// maxDecodingMessageSize is set well above the default because the CDC
// stream can carry large transaction/account updates.
const maxDecodingMessageSize = 1 << 30 // 1 GiB

const serviceName = "geyser.Geyser"

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// DialConfig configures a connection to a CDC endpoint.
type DialConfig struct {
	Endpoint              string
	AccessToken           string
	ConnectTimeout        time.Duration
	MaxDecodingMessageMiB int
}

// Dial opens a gRPC connection to cfg.Endpoint. If the endpoint's scheme
// is https, the connection is secured with TLS using the host's native
// root certificate pool; otherwise it is established in plaintext. An
// access token, if configured (after trimming) and non-empty, is sent on
// every call as the x-token metadata header via a per-RPC credential.
func Dial(ctx context.Context, cfg DialConfig) (*grpc.ClientConn, error) {
	target, creds, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("geyser: parse endpoint: %w", err)
	}

	maxSize := maxDecodingMessageSize
	if cfg.MaxDecodingMessageMiB > 0 {
		maxSize = cfg.MaxDecodingMessageMiB << 20
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxSize)),
		grpc.WithBlock(), //nolint:staticcheck // the worker state machine wants connect errors here, not at first Recv
	}

	token := strings.TrimSpace(cfg.AccessToken)
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(xTokenCredential{token: token, secure: isSecureCreds(creds)}))
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...) //nolint:staticcheck // no generated client stub to build on grpc.NewClient's lazy-connect semantics
	if err != nil {
		return nil, fmt.Errorf("geyser: dial %s: %w", target, err)
	}
	return conn, nil
}

func parseEndpoint(endpoint string) (target string, creds credentials.TransportCredentials, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, credentials.NewTLS(&tls.Config{}), nil
	case "http":
		return u.Host, insecure.NewCredentials(), nil
	default:
		return "", nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

func isSecureCreds(creds credentials.TransportCredentials) bool {
	return creds.Info().SecurityProtocol == "tls"
}

// xTokenCredential injects the configured access token as an x-token
// metadata header on every call.
type xTokenCredential struct {
	token  string
	secure bool
}

func (c xTokenCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"x-token": c.token}, nil
}

func (c xTokenCredential) RequireTransportSecurity() bool { return c.secure }

// SubscribeClient is a long-lived bidirectional stream for one worker.
type SubscribeClient struct {
	stream grpc.ClientStream
}

// Subscribe opens the bidirectional Subscribe RPC. There is no generated
// service client in this tree, so the stream is opened directly against
// the ClientConn using the method's fully-qualified name.
func Subscribe(ctx context.Context, conn *grpc.ClientConn) (*SubscribeClient, error) {
	stream, err := conn.NewStream(ctx, &subscribeStreamDesc, fmt.Sprintf("/%s/Subscribe", serviceName))
	if err != nil {
		return nil, fmt.Errorf("geyser: open subscribe stream: %w", err)
	}
	return &SubscribeClient{stream: stream}, nil
}

// Send sends a subscription request; the subscription worker sends one
// at the start of each stream.
func (c *SubscribeClient) Send(req *SubscribeRequest) error {
	return c.stream.SendMsg(req)
}

// Recv blocks for the next update from the server.
func (c *SubscribeClient) Recv() (*SubscribeUpdate, error) {
	update := new(SubscribeUpdate)
	if err := c.stream.RecvMsg(update); err != nil {
		return nil, err
	}
	return update, nil
}

// CloseSend half-closes the client-to-server direction of the stream.
func (c *SubscribeClient) CloseSend() error {
	return c.stream.CloseSend()
}
