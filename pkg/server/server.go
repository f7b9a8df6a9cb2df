package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	fnv1 "github.com/crossplane/function-sdk-go/proto/v1"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Files expected in the TLS certificates directory.
const (
	CertFile = "tls.crt"
	KeyFile  = "tls.key"
	CAFile   = "ca.crt"
)

// Options configure a Server.
type Options struct {
	// Insecure serves without mTLS. TLSCertsDir is ignored.
	Insecure bool

	// TLSCertsDir holds tls.crt, tls.key and ca.crt.
	TLSCertsDir string

	// AllowOversizeProtos lifts the default 4MiB receive limit.
	AllowOversizeProtos bool
}

// Server serves the function runner and the gRPC health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// New creates a server for runner.
func New(runner fnv1.FunctionRunnerServiceServer, logger zerolog.Logger, opts Options) (*Server, error) {
	logger = logger.With().Str("component", "server").Logger()

	creds := insecure.NewCredentials()
	if !opts.Insecure {
		c, err := LoadCredentials(opts.TLSCertsDir)
		if err != nil {
			return nil, err
		}
		creds = c
	}

	grpcOpts := []grpc.ServerOption{
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(logUnary(logger)),
	}
	if opts.AllowOversizeProtos {
		grpcOpts = append(grpcOpts, grpc.MaxRecvMsgSize(math.MaxInt32))
	}

	s := &Server{
		grpc:   grpc.NewServer(grpcOpts...),
		health: health.NewServer(),
		logger: logger,
	}
	fnv1.RegisterFunctionRunnerServiceServer(s.grpc, runner)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(fnv1.FunctionRunnerService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve accepts connections on ln until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Stopping gRPC server")
			s.health.Shutdown()
			s.grpc.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info().Str("address", ln.Addr().String()).Msg("Serving gRPC")
	if err := s.grpc.Serve(ln); err != nil {
		return fmt.Errorf("grpc server failed: %w", err)
	}
	return nil
}

// LoadCredentials returns mTLS server credentials from dir. Clients must
// present a certificate signed by ca.crt.
func LoadCredentials(dir string) (credentials.TransportCredentials, error) {
	if dir == "" {
		return nil, fmt.Errorf("TLS certificates directory is required unless insecure")
	}
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, CAFile))
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("parse client CA PEM from %q", filepath.Join(dir, CAFile))
	}
	return credentials.NewTLS(&tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}), nil
}

func logUnary(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
		return resp, err
	}
}
