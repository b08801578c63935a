// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-pesit/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	transfers *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "files"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:    client,
		db:        db,
		gridfs:    bucket,
		transfers: db.Collection("transfers"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.transfers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "partner", Value: 1}, {Key: "transfer_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "partner", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating transfer indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// TransferStore implementation

func (s *Store) CreateTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.UpdatedAt = rec.StartedAt

	_, err := s.transfers.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("transfer %d with partner %s already recorded", rec.TransferID, rec.Partner)
	}
	return err
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*storage.TransferRecord, error) {
	var rec storage.TransferRecord
	err := s.transfers.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetTransferByLabel(ctx context.Context, partner string, transferID uint64) (*storage.TransferRecord, error) {
	var rec storage.TransferRecord
	err := s.transfers.FindOne(ctx, bson.M{"partner": partner, "transfer_id": transferID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UpdateTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	rec.UpdatedAt = time.Now()
	_, err := s.transfers.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec)
	return err
}

func (s *Store) UpdateTransferStatus(ctx context.Context, id string, status storage.TransferStatus, diag string) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if diag != "" {
		set["diag"] = diag
	}
	res, err := s.transfers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrTransferNotFound
	}
	return nil
}

// RecordSyncPoint uses $max so the stored position is monotone even
// under concurrent or replayed updates.
func (s *Store) RecordSyncPoint(ctx context.Context, id string, syncPoint uint64) error {
	res, err := s.transfers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$max": bson.M{"last_sync_point": syncPoint},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrTransferNotFound
	}
	return nil
}

func (s *Store) AddBytes(ctx context.Context, id string, n uint64) error {
	res, err := s.transfers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"bytes_transferred": int64(n)},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrTransferNotFound
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, filter *storage.TransferFilter) ([]*storage.TransferRecord, error) {
	query := bson.M{}
	if filter != nil {
		if filter.Partner != "" {
			query["partner"] = filter.Partner
		}
		if filter.Direction != "" {
			query["direction"] = filter.Direction
		}
		if filter.Status != "" {
			query["status"] = filter.Status
		}
		if filter.Since != nil {
			query["started_at"] = bson.M{"$gte": *filter.Since}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			opts.SetLimit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			opts.SetSkip(int64(filter.Offset))
		}
	}

	cursor, err := s.transfers.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []*storage.TransferRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) ListResumable(ctx context.Context, partner string) ([]*storage.TransferRecord, error) {
	query := bson.M{
		"status":              bson.M{"$in": []storage.TransferStatus{storage.StatusFailed, storage.StatusAborted}},
		"sync_points_enabled": true,
		"last_sync_point":     bson.M{"$gt": 0},
	}
	if partner != "" {
		query["partner"] = partner
	}

	cursor, err := s.transfers.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []*storage.TransferRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// FileStore implementation using GridFS

func (s *Store) StoreFile(ctx context.Context, file *storage.FileData) (string, error) {
	if file.Checksum == "" {
		hash := sha256.Sum256(file.Data)
		file.Checksum = hex.EncodeToString(hash[:])
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
		"file_id":   file.ID,
		"file_name": file.FileName,
		"checksum":  file.Checksum,
	})

	uploadStream, err := s.gridfs.OpenUploadStream(file.FileName, uploadOpts)
	if err != nil {
		return "", fmt.Errorf("opening upload stream: %w", err)
	}
	defer uploadStream.Close()

	if _, err := uploadStream.Write(file.Data); err != nil {
		return "", fmt.Errorf("writing file content: %w", err)
	}

	return uploadStream.FileID.(primitive.ObjectID).Hex(), nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*storage.FileData, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid file ID: %w", err)
	}

	downloadStream, err := s.gridfs.OpenDownloadStream(objID)
	if err != nil {
		return nil, fmt.Errorf("opening download stream: %w", err)
	}
	defer downloadStream.Close()

	data := make([]byte, downloadStream.GetFile().Length)
	if _, err := downloadStream.Read(data); err != nil {
		return nil, fmt.Errorf("reading file content: %w", err)
	}

	metadata := downloadStream.GetFile().Metadata
	fileID, _ := metadata.Lookup("file_id").StringValueOK()
	fileName, _ := metadata.Lookup("file_name").StringValueOK()
	checksum, _ := metadata.Lookup("checksum").StringValueOK()

	return &storage.FileData{
		ID:       fileID,
		FileName: fileName,
		Data:     data,
		Checksum: checksum,
	}, nil
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid file ID: %w", err)
	}
	return s.gridfs.Delete(objID)
}
