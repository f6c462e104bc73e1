package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"regionvac/api/grpcserver"
	"regionvac/domain/gc"
	"regionvac/domain/heap"
	"regionvac/infra/journal"
	"regionvac/infra/outbox"
	"regionvac/infra/sequence"
	"regionvac/infra/taskpool"
	"regionvac/jobs/broadcaster"
	"regionvac/service"
	"regionvac/snapshot"
)

const (
	journalDir  = "./data/journal"
	outboxDir   = "./data/outbox"
	snapshotDir = "./data/snapshot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// ---------------- Metrics ----------------

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Printf("[metrics] server exited: %v", err)
		}
	}()

	// ---------------- Journal ----------------

	j, err := journal.Open(journal.Config{
		Dir:             journalDir,
		SegmentSize:     2 * 1024 * 1024,
		SegmentDuration: time.Minute,
	})
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	defer j.Close()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(outboxDir)
	if err != nil {
		log.Fatalf("outbox init failed: %v", err)
	}
	defer ob.Close()

	// ---------------- Cycle counter ----------------

	cycles := sequence.New(0)
	if _, err := service.Recover(
		journalDir,
		filepath.Join(snapshotDir, "snapshot.bin"),
		cycles,
	); err != nil {
		log.Fatalf("journal replay failed: %v", err)
	}

	// ---------------- Heap + collector ----------------

	table := heap.NewClassTable()
	classes := service.RegisterClasses(table)
	h := heap.New(heap.DefaultConfig(), table)

	pool := taskpool.New(8, 256)
	defer pool.Close()

	cfg := gc.DefaultConfig()
	cfg.Logger = logger
	cfg.Metrics = gc.NewMetrics(registry)
	cfg.OnFatal = service.JournalFatal(j, cycles, gc.ExitOnFatal(logger))
	collector := gc.New(h, pool, cycles, cfg)

	// ---------------- Service ----------------

	svc := service.NewCollectorService(
		h,
		collector,
		service.NewMutator(h, classes, service.DefaultMutatorConfig()),
		cycles,
		snapshot.NewReader(),
		j,
		ob,
		service.DefaultPolicy(),
	)

	// ---------------- Background Jobs ----------------

	svc.StartMutatorJob(ctx, 4096, 10*time.Millisecond)
	svc.StartSnapshotJob(ctx, snapshotDir, 30*time.Second)

	if brokers := os.Getenv("REGIONVAC_KAFKA_BROKERS"); brokers != "" {
		bcfg := broadcaster.DefaultConfig()
		bcfg.Brokers = strings.Split(brokers, ",")
		if driver := os.Getenv("REGIONVAC_KAFKA_DRIVER"); driver != "" {
			bcfg.Driver = driver
		}
		pub, err := broadcaster.NewPublisher(bcfg)
		if err != nil {
			log.Fatalf("publisher init failed: %v", err)
		}
		bc := broadcaster.New(ob, pub, bcfg)
		defer bc.Close()
		bc.Start(ctx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", ":50051")
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	log.Printf("[server] regionvac collector running on :50051 (cycle %d)", cycles.Current())

	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatalf("gRPC server exited: %v", err)
	}
}
