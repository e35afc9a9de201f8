// Package archive exports bronze partitions to object storage as
// snappy-compressed JSONL, one source record per line. Archived partitions
// mirror the bronze layout, so a lost local store can be rebuilt from the
// bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/logging"
	"github.com/arvelid/gamelake/pkg/store"
)

var (
	objectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_objects_total",
		Help: "Total archived objects by outcome",
	}, []string{"status"})

	bytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_bytes_total",
		Help: "Total compressed bytes uploaded",
	})
)

// ObjectPutter is the slice of the S3 API the archiver needs. *s3.Client
// implements it; tests inject fakes.
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds archiver settings.
type Config struct {
	Bucket string
	Region string
}

// Archiver uploads bronze game partitions to a bucket.
type Archiver struct {
	putter ObjectPutter
	bucket string
	store  *store.Store
	logger zerolog.Logger
}

// New creates an archiver with an injected object putter.
func New(putter ObjectPutter, st *store.Store, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	return &Archiver{
		putter: putter,
		bucket: cfg.Bucket,
		store:  st,
		logger: logging.NewLogger("archiver"),
	}, nil
}

// NewWithS3 creates an archiver backed by a real S3 client built from the
// ambient AWS configuration.
func NewWithS3(ctx context.Context, st *store.Store, cfg Config) (*Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return New(s3.NewFromConfig(awsCfg), st, cfg)
}

// partitionKey is the object layout for one archived partition.
func partitionKey(extractionDate string) string {
	return fmt.Sprintf("bronze/games/extraction_date=%s/part.jsonl.snappy", extractionDate)
}

// ArchivePartition uploads one extraction_date partition. The object body
// is the raw source records joined by newlines, snappy-compressed as a
// single block.
func (a *Archiver) ArchivePartition(ctx context.Context, extractionDate string) (string, error) {
	start := time.Now()

	games, err := a.store.ReadGamesPartition(ctx, extractionDate)
	if err != nil {
		objectsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("read partition %s: %w", extractionDate, err)
	}
	if len(games) == 0 {
		return "", fmt.Errorf("partition %s is empty", extractionDate)
	}

	var buf bytes.Buffer
	for _, g := range games {
		buf.Write(g.Payload)
		buf.WriteByte('\n')
	}
	compressed := snappy.Encode(nil, buf.Bytes())

	key := partitionKey(extractionDate)
	_, err = a.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(compressed),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		objectsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	objectsTotal.WithLabelValues("ok").Inc()
	bytesTotal.Add(float64(len(compressed)))

	a.logger.Info().
		Str("key", key).
		Int("rows", len(games)).
		Int("bytes", len(compressed)).
		Dur("elapsed", time.Since(start)).
		Msg("Partition archived")
	return key, nil
}

// ArchiveAll uploads every partition currently in bronze. Returns the keys
// written; a failing partition aborts the sweep.
func (a *Archiver) ArchiveAll(ctx context.Context) ([]string, error) {
	dates, err := a.store.PartitionDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	keys := make([]string, 0, len(dates))
	for _, date := range dates {
		key, err := a.ArchivePartition(ctx, date)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
