package grpcserver

import (
	"context"
	"errors"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"regionvac/domain/gc"
	"regionvac/service"
	"regionvac/snapshot"
)

// Server adapts CollectorService to gRPC.
type Server struct {
	svc *service.CollectorService
}

func NewServer(svc *service.CollectorService) *Server {
	return &Server{svc: svc}
}

// -------------------- Commands --------------------

func (s *Server) Collect(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rep, err := s.svc.Collect(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	log.Printf(
		"[gRPC] Collect cycle=%d regions=%d promoted=%d freed=%d",
		rep.Cycle, rep.CollectionSet, rep.PromotedBytes, rep.FreedRegions,
	)

	return structpb.NewStruct(rep.Fields())
}

// -------------------- Queries --------------------

func (s *Server) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(s.svc.Stats().Fields())
}

func (s *Server) Snapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(snapshotFields(s.svc.Snapshot()))
}

// -------------------- Converters --------------------

func snapshotFields(snap *snapshot.Snapshot) map[string]any {
	gens := make(map[string]any)
	for g, n := range snap.ByGeneration() {
		gens[g] = n
	}
	regions := make([]any, 0, len(snap.Regions))
	for _, e := range snap.Regions {
		regions = append(regions, map[string]any{
			"index":      e.Index,
			"generation": e.Generation,
			"flags":      e.Flags,
			"allocated":  e.Allocated,
			"alive":      e.Alive,
			"objects":    e.Objects,
			"remset":     e.RemSet,
			"free_spans": e.FreeSpans,
			"retired":    e.Retired,
		})
	}
	return map[string]any{
		"cycle":         snap.Cycle,
		"created":       snap.Created.Format(time.RFC3339Nano),
		"region_shift":  int(snap.RegionShift),
		"roots":         snap.Roots,
		"weak_handles":  snap.WeakHandles,
		"by_generation": gens,
		"regions":       regions,
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, gc.ErrBadPhase):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// LoggingInterceptor logs every call with its latency.
func LoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Printf("[gRPC] %s took=%s err=%v", info.FullMethod, time.Since(start), err)
	return resp, err
}
