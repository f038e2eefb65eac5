// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/qdrant/go-client/qdrant"

	"github.com/BitManipulators/wildlife-chat/internal/apperr"
	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// chunkIDNamespace is a fixed UUID namespace used to deterministically map
// the spec's ASCII chunk ids (^[a-z0-9_]+$) onto Qdrant point UUIDs.
// Qdrant only accepts numeric or UUID point ids; the original ASCII id is
// preserved in the point payload under chunkIDPayloadKey so Search results
// can be correlated back without a side table.
var chunkIDNamespace = uuid.MustParse("6f9515e8-2a06-4b5a-9f8c-9e2a0a5d2b9e")

const chunkIDPayloadKey = "chunk_id"

// QdrantIndex is an Index backed by a single Qdrant collection, grounded on
// niski84-the-hive/internal/vectordb/vectordb.go's gRPC usage.
type QdrantIndex struct {
	conn           *grpc.ClientConn
	collections    qdrant.CollectionsClient
	points         qdrant.PointsClient
	collectionName string
	dim            int
}

// QdrantConfig configures a connection to a Qdrant gRPC endpoint.
type QdrantConfig struct {
	Address        string // host:port, e.g. localhost:6334
	CollectionName string
	Dimension      int
}

// NewQdrantIndex dials addr and returns an Index scoped to one collection.
// The collection is not created until EnsureIndex is called.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	conn, err := grpc.Dial(cfg.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, apperr.Wrap(apperr.EUpstream, "vectorindex: dial qdrant", err)
	}

	logger.Printf("vectorindex: qdrant client dialed address=%s collection=%s dim=%d",
		cfg.Address, cfg.CollectionName, cfg.Dimension)

	return &QdrantIndex{
		conn:           conn,
		collections:    qdrant.NewCollectionsClient(conn),
		points:         qdrant.NewPointsClient(conn),
		collectionName: cfg.CollectionName,
		dim:            cfg.Dimension,
	}, nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// EnsureIndex creates the collection if it does not already exist.
func (q *QdrantIndex) EnsureIndex(ctx context.Context) error {
	existing, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return apperr.Wrap(apperr.EUpstream, "vectorindex: list collections", err)
	}
	for _, c := range existing.Collections {
		if c.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(q.dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.EUpstream, "vectorindex: create collection", err)
	}

	logger.Printf("vectorindex: created collection=%s dim=%d", q.collectionName, q.dim)
	return nil
}

// Upsert stores id/vector/metadata under a deterministic UUID point id. The
// original ASCII id is carried in the payload so Search can surface it.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	pointUUID := uuid.NewSHA1(chunkIDNamespace, []byte(id)).String()

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	payload[chunkIDPayloadKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointUUID},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: vector},
			},
		},
		Payload: payload,
	}

	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           &wait,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return apperr.Wrap(apperr.EUpstream, fmt.Sprintf("vectorindex: upsert %s", id), err)
	}
	return nil
}

// Search returns the topK nearest points by cosine similarity.
func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	withPayload := &qdrant.WithPayloadSelector{
		SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
	}
	withVectors := &qdrant.WithVectorsSelector{
		SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false},
	}

	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    withPayload,
		WithVectors:    withVectors,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.EUpstream, "vectorindex: search", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, sp := range resp.Result {
		metadata := make(map[string]string, len(sp.Payload))
		chunkID := ""
		for k, v := range sp.Payload {
			s := v.GetStringValue()
			if k == chunkIDPayloadKey {
				chunkID = s
				continue
			}
			metadata[k] = s
		}
		if chunkID == "" {
			// fallback for points written without the payload id, e.g. by
			// an older ingestion run; use the point's own id representation
			if u := sp.Id.GetUuid(); u != "" {
				chunkID = u
			} else {
				chunkID = fmt.Sprintf("%d", sp.Id.GetNum())
			}
		}
		matches = append(matches, Match{
			ID:       chunkID,
			Score:    sp.Score,
			Metadata: metadata,
		})
	}
	return matches, nil
}

// Delete removes the point matching id.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	pointUUID := uuid.NewSHA1(chunkIDNamespace, []byte(id)).String()
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointUUID}},
					},
				},
			},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.EUpstream, fmt.Sprintf("vectorindex: delete %s", id), err)
	}
	return nil
}

// Count returns the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.EUpstream, "vectorindex: collection info", err)
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}
