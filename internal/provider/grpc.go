package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hudong/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hudong.provider.v1.SlideProvider"

const (
	generateSlideMethod    = "/" + ServiceName + "/GenerateSlide"
	generateDocumentMethod = "/" + ServiceName + "/GenerateSlidesFromDocument"

	// mimeTypeKey carries the document's MIME type in request metadata.
	mimeTypeKey = "x-document-mime-type"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// SlideProviderServer is implemented by gRPC servers of the provider service.
// Requests and replies are protobuf well-known types: GenerateSlide takes
// {topic, type} and returns one slide record; GenerateSlidesFromDocument
// takes the raw document and returns {slides: [...]}.
type SlideProviderServer interface {
	GenerateSlide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GenerateSlidesFromDocument(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// RegisterSlideProviderServer attaches srv to s.
func RegisterSlideProviderServer(s grpc.ServiceRegistrar, srv SlideProviderServer) {
	s.RegisterService(&slideProviderServiceDesc, srv)
}

var slideProviderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SlideProviderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateSlide", Handler: generateSlideHandler},
		{MethodName: "GenerateSlidesFromDocument", Handler: generateDocumentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hudong/provider/v1/provider.proto",
}

func generateSlideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SlideProviderServer).GenerateSlide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateSlideMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SlideProviderServer).GenerateSlide(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func generateDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SlideProviderServer).GenerateSlidesFromDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateDocumentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SlideProviderServer).GenerateSlidesFromDocument(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// slideToStruct encodes a slide in its JSON wire shape.
func slideToStruct(s domain.Slide) (*structpb.Struct, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func slideFromValue(v any) (domain.Slide, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return domain.UnmarshalSlide(data)
}

// Server exposes a Generator over gRPC.
type Server struct {
	gen    Generator
	logger *slog.Logger
}

// NewServer wraps gen.
func NewServer(gen Generator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{gen: gen, logger: logger}
}

// GenerateSlide implements SlideProviderServer.
func (s *Server) GenerateSlide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	topic := fields["topic"].GetStringValue()
	t, err := domain.ParseSlideType(fields["type"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if topic == "" {
		return nil, status.Error(codes.InvalidArgument, "topic is required")
	}

	slide, err := s.gen.GenerateSlide(ctx, topic, t)
	if err != nil {
		s.logger.Error("GenerateSlide failed", "topic", topic, "slide_type", string(t), "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := slideToStruct(slide)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GenerateSlidesFromDocument implements SlideProviderServer.
func (s *Server) GenerateSlidesFromDocument(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	mimeType := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(mimeTypeKey); len(v) > 0 {
			mimeType = v[0]
		}
	}

	slides, err := s.gen.GenerateSlidesFromDocument(ctx, req.GetValue(), mimeType)
	if err != nil {
		s.logger.Error("GenerateSlidesFromDocument failed", "mime_type", mimeType, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	list := make([]any, 0, len(slides))
	for _, sl := range slides {
		st, err := slideToStruct(sl)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		list = append(list, st.AsMap())
	}
	out, err := structpb.NewStruct(map[string]any{"slides": list})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GRPCClient is a Generator backed by a remote provider service.
type GRPCClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GRPCClientConfig holds connection settings for the provider client.
type GRPCClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCClientConfig returns default settings for addr.
func DefaultGRPCClientConfig(addr string) GRPCClientConfig {
	if addr == "" {
		addr = "localhost:50061"
	}
	return GRPCClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGRPCClient connects to the provider at addr and waits until the
// connection is ready.
func NewGRPCClient(addr string, logger *slog.Logger) (*GRPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultGRPCClientConfig(addr)

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to slide provider at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("slide provider at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to slide provider", "address", cfg.Address)
	return NewGRPCClientConn(conn, logger), nil
}

// NewGRPCClientConn uses an existing connection.
func NewGRPCClientConn(conn *grpc.ClientConn, logger *slog.Logger) *GRPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCClient{conn: conn, addr: conn.Target(), logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the connection.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("failed to close gRPC connection", "error", err)
		return err
	}
	return nil
}

// GenerateSlide calls the remote GenerateSlide.
func (c *GRPCClient) GenerateSlide(ctx context.Context, topic string, t domain.SlideType) (domain.Slide, error) {
	req, err := structpb.NewStruct(map[string]any{"topic": topic, "type": string(t)})
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, generateSlideMethod, req, reply, grpc.WaitForReady(true)); err != nil {
		return nil, fmt.Errorf("generate slide rpc: %w", err)
	}
	return slideFromValue(reply.AsMap())
}

// GenerateSlidesFromDocument calls the remote GenerateSlidesFromDocument.
func (c *GRPCClient) GenerateSlidesFromDocument(ctx context.Context, doc []byte, mimeType string) ([]domain.Slide, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, mimeTypeKey, mimeType)
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, generateDocumentMethod, wrapperspb.Bytes(doc), reply, grpc.WaitForReady(true)); err != nil {
		return nil, fmt.Errorf("generate from document rpc: %w", err)
	}

	raw := reply.GetFields()["slides"].GetListValue().GetValues()
	slides := make([]domain.Slide, 0, len(raw))
	for i, v := range raw {
		s, err := slideFromValue(v.AsInterface())
		if err != nil {
			c.logger.Warn("Skipping undecodable slide from provider", "position", i, "error", err)
			continue
		}
		slides = append(slides, s)
	}
	return slides, nil
}
