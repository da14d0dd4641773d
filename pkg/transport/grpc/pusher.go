package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/threatcanvas/sdk/pkg/core"
	tcerrors "github.com/threatcanvas/sdk/pkg/errors"
	"github.com/threatcanvas/sdk/pkg/report"
)

// pushMethod is the full RPC name of the report ingest endpoint.
const pushMethod = "/threatcanvas.v1.ReportService/PushReport"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets the client call the ingest service without generated
// protobuf stubs. The server negotiates the subtype via Content-Type.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

// pushResponse mirrors the ingest service's reply message.
type pushResponse struct {
	ReportID         string `json:"report_id"`
	FindingsAccepted int    `json:"findings_accepted"`
	Message          string `json:"message,omitempty"`
}

// Pusher pushes reports over an established gRPC transport.
// It implements the core.Pusher interface.
type Pusher struct {
	transport *Transport
}

var _ core.Pusher = (*Pusher)(nil)

// NewPusher wraps a transport in a report pusher.
func NewPusher(t *Transport) *Pusher {
	return &Pusher{transport: t}
}

// PushReport sends a report to the ingest service, connecting on first use.
func (p *Pusher) PushReport(ctx context.Context, r *report.Report) (*core.PushResult, error) {
	if r == nil {
		return nil, fmt.Errorf("report is nil")
	}

	if !p.transport.IsConnected() {
		if err := p.transport.Connect(ctx); err != nil {
			return nil, tcerrors.E(tcerrors.KindNetwork, "grpc.push", err)
		}
	}

	var resp pushResponse
	err := p.transport.Conn().Invoke(ctx, pushMethod, r, &resp,
		grpc.CallContentSubtype("json"))
	if err != nil {
		return nil, classifyRPCError(fmt.Errorf("push report: %w", err))
	}

	return &core.PushResult{
		ReportID:         resp.ReportID,
		FindingsAccepted: resp.FindingsAccepted,
		Message:          resp.Message,
	}, nil
}

// classifyRPCError tags an RPC failure with the error kind the retry
// machinery keys on. Outages, exhausted quotas and timeouts come back later,
// so those status codes get retryable kinds; everything else does not.
func classifyRPCError(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return tcerrors.E(tcerrors.KindRateLimit, "grpc.push", err)
	case codes.Unavailable, codes.Aborted:
		return tcerrors.E(tcerrors.KindNetwork, "grpc.push", err)
	case codes.DeadlineExceeded, codes.Canceled:
		return tcerrors.E(tcerrors.KindTimeout, "grpc.push", err)
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return tcerrors.E(tcerrors.KindInvalidInput, "grpc.push", err)
	default:
		return tcerrors.E(tcerrors.KindInternal, "grpc.push", err)
	}
}

// Close releases the underlying connection.
func (p *Pusher) Close() error {
	return p.transport.Close()
}
