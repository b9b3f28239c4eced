package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// RecognizerService is the service name the sidecar registers with the
	// gRPC health service.
	RecognizerService = "speech.v1.Recognizer"
	recognizeMethod   = "/speech.v1.Recognizer/Recognize"
)

var recognizeStream = &grpc.StreamDesc{
	StreamName:    "Recognize",
	ServerStreams: true,
	ClientStreams: true,
}

// GRPCConfig holds connection settings for the speech sidecar.
type GRPCConfig struct {
	Address          string
	HealthTimeout    time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default settings for addr.
func DefaultGRPCConfig(addr string) GRPCConfig {
	return GRPCConfig{
		Address:          addr,
		HealthTimeout:    2 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCRecognizer streams recognition results from a sidecar that owns the
// microphone. The stream carries google.protobuf.Struct messages: one
// config message from the client, then {transcript, final} results.
type GRPCRecognizer struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cfg    GRPCConfig
	logger *slog.Logger
}

// NewGRPCRecognizer creates a client for the sidecar at cfg.Address. No
// network I/O happens until the first call.
func NewGRPCRecognizer(cfg GRPCConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCRecognizer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client for %s: %w", cfg.Address, err)
	}

	return &GRPCRecognizer{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Available asks the sidecar's health service whether recognition is
// serving.
func (g *GRPCRecognizer) Available(ctx context.Context) bool {
	if g.cfg.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.HealthTimeout)
		defer cancel()
	}
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: RecognizerService})
	if err != nil {
		g.logger.Warn("[SPEECH] Speech sidecar health check failed", "address", g.cfg.Address, "error", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Open starts one recognition attempt.
func (g *GRPCRecognizer) Open(ctx context.Context, lang string) (Stream, error) {
	sctx, cancel := context.WithCancel(ctx)

	cs, err := g.conn.NewStream(sctx, recognizeStream, recognizeMethod)
	if err != nil {
		cancel()
		return nil, NewCaptureError(CodeFromStatus(err), err)
	}

	cfg, err := structpb.NewStruct(map[string]any{
		"language":        lang,
		"interim_results": true,
		"continuous":      false,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build recognition config: %w", err)
	}
	if err := cs.SendMsg(cfg); err != nil {
		cancel()
		return nil, NewCaptureError(CodeFromStatus(err), err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, NewCaptureError(CodeFromStatus(err), err)
	}

	s := &grpcStream{
		ch:     make(chan Result, relayBuffer),
		cancel: cancel,
	}
	go s.recv(sctx, cs, g.logger)
	return s, nil
}

// Close releases the connection.
func (g *GRPCRecognizer) Close() {
	if err := g.conn.Close(); err != nil {
		g.logger.Warn("failed to close speech gRPC connection", "error", err)
	}
}

// CodeFromStatus maps a gRPC status onto the capture error taxonomy.
func CodeFromStatus(err error) ErrorCode {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return CodePermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded:
		return CodeNetwork
	case codes.NotFound, codes.FailedPrecondition:
		return CodeNoInputDevice
	default:
		return CodeUnknown
	}
}

type grpcStream struct {
	ch       chan Result
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func (s *grpcStream) Results() <-chan Result {
	return s.ch
}

func (s *grpcStream) Stop() error {
	s.stopOnce.Do(s.cancel)
	return nil
}

func (s *grpcStream) recv(ctx context.Context, cs grpc.ClientStream, logger *slog.Logger) {
	defer close(s.ch)
	defer s.Stop()

	for {
		msg := &structpb.Struct{}
		err := cs.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("[SPEECH] Recognition stream error", "error", err)
			s.ch <- Result{Err: NewCaptureError(CodeFromStatus(err), err)}
			return
		}

		fields := msg.GetFields()
		res := Result{
			Transcript: fields["transcript"].GetStringValue(),
			Final:      fields["final"].GetBoolValue(),
		}
		select {
		case s.ch <- res:
		case <-ctx.Done():
			return
		}
	}
}
