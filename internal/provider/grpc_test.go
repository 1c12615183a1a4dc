package provider

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/ashureev/hudong/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startProvider(t *testing.T, gen Generator) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSlideProviderServer(srv, NewServer(gen, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	c := NewGRPCClientConn(conn, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPCGenerateSlide(t *testing.T) {
	t.Parallel()

	c := startProvider(t, Canned{})

	s, err := c.GenerateSlide(context.Background(), "AI", domain.SlidePoll)
	if err != nil {
		t.Fatalf("GenerateSlide: %v", err)
	}
	poll, ok := s.(*domain.PollSlide)
	if !ok {
		t.Fatalf("got %T, want *PollSlide", s)
	}
	if len(poll.Options) != 4 || poll.Options[0].ID != "go1" {
		t.Errorf("options = %+v", poll.Options)
	}
}

func TestGRPCGenerateSlideInvalidType(t *testing.T) {
	t.Parallel()

	c := startProvider(t, Canned{})
	_, err := c.GenerateSlide(context.Background(), "AI", "SLIDER")
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestGRPCGenerateFromDocument(t *testing.T) {
	t.Parallel()

	c := startProvider(t, Canned{})

	slides, err := c.GenerateSlidesFromDocument(context.Background(), []byte("Channels\nSelect\n"), "text/plain")
	if err != nil {
		t.Fatalf("GenerateSlidesFromDocument: %v", err)
	}
	if len(slides) != 4 {
		t.Fatalf("got %d slides, want 4", len(slides))
	}
	if slides[0].Type() != domain.SlideWordCloud || slides[1].Type() != domain.SlideQnA {
		t.Errorf("types = %s, %s", slides[0].Type(), slides[1].Type())
	}

	// The MIME type travels in metadata; binary types are refused by Canned.
	none, err := c.GenerateSlidesFromDocument(context.Background(), []byte("Channels"), "image/png")
	if err != nil || len(none) != 0 {
		t.Errorf("image document = %d slides, %v", len(none), err)
	}
}

func TestGRPCBackendError(t *testing.T) {
	t.Parallel()

	c := startProvider(t, &stubGenerator{err: errors.New("model offline")})
	p := New(c, 0, nil)

	s := p.GenerateSlide(context.Background(), "AI", domain.SlideQnA)
	if s.Type() != domain.SlideQnA {
		t.Errorf("fallback type = %s", s.Type())
	}
}
