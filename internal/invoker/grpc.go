package invoker

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/stampede-io/stampede/internal/outcome"
)

// GRPCOptions configures the connection for a gRPC invoker.
type GRPCOptions struct {
	// TLS enables transport security.
	TLS bool

	// InsecureSkipVerify skips certificate verification, matching the
	// -insecure mode used against self-signed dev endpoints.
	InsecureSkipVerify bool
}

// GRPCInvoker executes unary gRPC calls through a passthrough codec:
// the call body is sent verbatim as the request message. This keeps the
// harness free of generated stubs; scenarios supply pre-encoded
// messages, or plain bytes for servers registered with a byte-level
// codec.
//
// The numeric gRPC status code is the outcome's classifier key, so
// rules can match AlreadyExists (6) the way HTTP rules match 409.
type GRPCInvoker struct {
	conn *grpc.ClientConn
}

// DialGRPC creates an invoker for the given address.
func DialGRPC(address string, opts GRPCOptions) (*GRPCInvoker, error) {
	creds := insecure.NewCredentials()
	if opts.TLS {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify})
	}
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return &GRPCInvoker{conn: conn}, nil
}

// Close releases the underlying connection.
func (g *GRPCInvoker) Close() error {
	return g.conn.Close()
}

// Invoke performs one unary call. call.Target is the full method name,
// call.Headers become outgoing metadata.
func (g *GRPCInvoker) Invoke(ctx context.Context, call Call) outcome.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	if len(call.Headers) > 0 {
		callCtx = metadata.NewOutgoingContext(callCtx, metadata.New(call.Headers))
	}

	start := time.Now()
	req := call.Body
	var reply []byte
	err := g.conn.Invoke(callCtx, call.Target, &req, &reply, grpc.ForceCodec(rawCodec{}))
	elapsed := time.Since(start)

	if err != nil {
		st, ok := status.FromError(err)
		if !ok {
			return failureOutcome(call, start, err)
		}
		switch st.Code() {
		case codes.DeadlineExceeded:
			return outcome.Outcome{Seq: call.Seq, ErrKind: outcome.ErrTimeout,
				Err: err.Error(), Start: start, Elapsed: elapsed}
		case codes.Canceled:
			return outcome.Outcome{Seq: call.Seq, ErrKind: outcome.ErrCanceled,
				Err: err.Error(), Start: start, Elapsed: elapsed}
		}
		// Application-level rejection: the status code is the signal,
		// not a transport failure.
		return outcome.Outcome{
			Seq:        call.Seq,
			Status:     int(st.Code()),
			StatusText: st.Code().String(),
			Body:       []byte(st.Message()),
			Start:      start,
			Elapsed:    elapsed,
		}
	}

	return outcome.Outcome{
		Seq:        call.Seq,
		Status:     int(codes.OK),
		StatusText: codes.OK.String(),
		Body:       reply,
		Start:      start,
		Elapsed:    elapsed,
	}
}

// rawCodec passes request and reply messages through as raw bytes.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: expected *[]byte, got %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: expected *[]byte, got %T", v)
	}
	*b = data
	return nil
}

func (rawCodec) Name() string { return "stampede-raw" }
