package grpcadmin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startTestServer(t *testing.T, rs *runstate.Controller) healthpb.HealthClient {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := New(rs, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthStartsNotServing(t *testing.T) {
	rs := runstate.New()
	client := startTestServer(t, rs)

	if got := checkStatus(t, client); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING while paused, got %v", got)
	}
}

func TestHealthTracksRunState(t *testing.T) {
	rs := runstate.New()
	client := startTestServer(t, rs)

	rs.Run()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if checkStatus(t, client) == healthpb.HealthCheckResponse_SERVING {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("health never transitioned to SERVING after rsrv_run()")
}
