package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"regionvac/domain/gc"
	"regionvac/domain/heap"
	"regionvac/infra/sequence"
	"regionvac/infra/taskpool"
	"regionvac/service"
	"regionvac/snapshot"
)

func newService(t *testing.T) *service.CollectorService {
	t.Helper()
	table := heap.NewClassTable()
	classes := service.RegisterClasses(table)
	h := heap.New(heap.Config{
		RegionShift:    12,
		Regions:        32,
		SurvivorBudget: 16 << 10,
		OldBudget:      32 << 10,
		EdenReserve:    8,
	}, table)

	pool := taskpool.New(2, 16)
	t.Cleanup(pool.Close)

	cfg := gc.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.OnFatal = func(err error) { t.Errorf("fatal: %v", err) }
	cycles := sequence.New(0)

	return service.NewCollectorService(
		h,
		gc.New(h, pool, cycles, cfg),
		service.NewMutator(h, classes, service.DefaultMutatorConfig()),
		cycles,
		snapshot.NewReader(),
		nil,
		nil,
		service.DefaultPolicy(),
	)
}

func dial(t *testing.T, svc *service.CollectorService) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor))
	Register(srv, NewServer(svc))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestCollectStatsSnapshot(t *testing.T) {
	svc := newService(t)
	if _, err := svc.Mutate(500); err != nil {
		t.Fatal(err)
	}
	client := dial(t, svc)
	ctx := context.Background()

	rep, err := client.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if rep["cycle"].(float64) != 1 || rep["collection_set"].(float64) == 0 {
		t.Fatalf("Collect = %v", rep)
	}

	st, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st["cycle"].(float64) != 1 || st["phase"] != gc.PhaseIdle.String() || st["allocated"].(float64) == 0 {
		t.Fatalf("Stats = %v", st)
	}
	if last := st["last"].(map[string]any); last["cycle"].(float64) != 1 {
		t.Fatalf("Stats.last = %v", last)
	}

	snap, err := client.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap["cycle"].(float64) != 1 || len(snap["regions"].([]any)) == 0 {
		t.Fatalf("Snapshot = %v", snap)
	}
}
