// Package qdrant implements vector.Repository over the Qdrant gRPC API.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/vector"
)

// Config locates a Qdrant server. APIKey and UseTLS are needed for Qdrant Cloud.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Repository implements vector.Repository using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New dials Qdrant. The connection is established lazily on the first call.
func New(cfg Config) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (r *Repository) EnsureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := r.hasCollection(ctx, collection)
	if err != nil || exists {
		return err
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return llm.Upstream("qdrant", fmt.Errorf("create collection %s: %w", collection, err))
	}
	return nil
}

func (r *Repository) DeleteCollection(ctx context.Context, collection string) error {
	exists, err := r.hasCollection(ctx, collection)
	if err != nil || !exists {
		return err
	}
	if _, err := r.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection}); err != nil {
		return llm.Upstream("qdrant", fmt.Errorf("delete collection %s: %w", collection, err))
	}
	return nil
}

func (r *Repository) hasCollection(ctx context.Context, collection string) (bool, error) {
	resp, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, llm.Upstream("qdrant", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == collection {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) Upsert(ctx context.Context, collection string, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload, err := toPayload(d.Content, d.Payload)
		if err != nil {
			return fmt.Errorf("point %s: %w", d.ID, err)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return llm.Upstream("qdrant", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, collection string, vec []float32, limit int, filter vector.Filter) ([]vector.SearchResult, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Filter:         f,
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, llm.Upstream("qdrant", err)
	}

	results := make([]vector.SearchResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		content, payload := fromPayload(pt.GetPayload())
		results[i] = vector.SearchResult{
			ID:      pointID(pt.GetId()),
			Score:   pt.GetScore(),
			Content: content,
			Payload: payload,
		}
	}
	return results, nil
}

func (r *Repository) Scroll(ctx context.Context, collection string, filter vector.Filter, limit int) ([]vector.SearchResult, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	lim := uint32(limit)
	resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: collection,
		Filter:         f,
		Limit:          &lim,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, llm.Upstream("qdrant", err)
	}

	results := make([]vector.SearchResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		content, payload := fromPayload(pt.GetPayload())
		results[i] = vector.SearchResult{
			ID:      pointID(pt.GetId()),
			Content: content,
			Payload: payload,
		}
	}
	return results, nil
}

func (r *Repository) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := r.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, llm.Upstream("qdrant", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

var _ vector.Repository = (*Repository)(nil)
