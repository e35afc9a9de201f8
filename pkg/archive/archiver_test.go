package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/arvelid/gamelake/pkg/store"
)

type fakePutter struct {
	objects map[string][]byte // key -> body
	failOn  string
}

func (f *fakePutter) PutObject(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := *input.Key
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = body
	return &s3.PutObjectOutput{}, nil
}

func seedPartition(t *testing.T, st *store.Store, date string, payloads ...string) {
	t.Helper()
	games := make([]store.RawGame, len(payloads))
	for i, p := range payloads {
		games[i] = store.RawGame{
			GameID:         int64(i + 1),
			Name:           "Game",
			Payload:        []byte(p),
			ExtractionTS:   time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC),
			ExtractionDate: date,
			RunID:          "run-1",
		}
	}
	if err := st.WriteGamesPartition(context.Background(), date, games); err != nil {
		t.Fatalf("seed partition %s: %v", date, err)
	}
}

func newTestArchiver(t *testing.T) (*Archiver, *fakePutter, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	putter := &fakePutter{}
	a, err := New(putter, st, Config{Bucket: "gamelake-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, putter, st
}

func TestArchivePartition(t *testing.T) {
	a, putter, st := newTestArchiver(t)
	seedPartition(t, st, "2024-06-15", `{"id":1}`, `{"id":2}`)

	key, err := a.ArchivePartition(context.Background(), "2024-06-15")
	if err != nil {
		t.Fatalf("ArchivePartition failed: %v", err)
	}

	expected := "bronze/games/extraction_date=2024-06-15/part.jsonl.snappy"
	if key != expected {
		t.Errorf("Key = %q, want %q", key, expected)
	}

	body, ok := putter.objects[expected]
	if !ok {
		t.Fatal("Object was not uploaded")
	}

	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		t.Fatalf("Body is not valid snappy: %v", err)
	}
	lines := bytes.Split(bytes.TrimSuffix(decoded, []byte("\n")), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("Decoded %d JSONL lines, want 2", len(lines))
	}
	if string(lines[0]) != `{"id":1}` || string(lines[1]) != `{"id":2}` {
		t.Errorf("Unexpected JSONL content: %q", decoded)
	}
}

func TestArchivePartition_Empty(t *testing.T) {
	a, _, _ := newTestArchiver(t)

	if _, err := a.ArchivePartition(context.Background(), "2024-01-01"); err == nil {
		t.Error("Expected error for empty partition")
	}
}

func TestArchiveAll(t *testing.T) {
	a, putter, st := newTestArchiver(t)
	seedPartition(t, st, "2024-06-14", `{"id":1}`)
	seedPartition(t, st, "2024-06-15", `{"id":2}`)

	keys, err := a.ArchiveAll(context.Background())
	if err != nil {
		t.Fatalf("ArchiveAll failed: %v", err)
	}
	if len(keys) != 2 || len(putter.objects) != 2 {
		t.Errorf("Archived %d keys / %d objects, want 2 each", len(keys), len(putter.objects))
	}
}

func TestArchiveAll_UploadFailureAborts(t *testing.T) {
	a, putter, st := newTestArchiver(t)
	putter.failOn = "2024-06-15"
	seedPartition(t, st, "2024-06-14", `{"id":1}`)
	seedPartition(t, st, "2024-06-15", `{"id":2}`)

	keys, err := a.ArchiveAll(context.Background())
	if err == nil {
		t.Fatal("Expected upload failure to propagate")
	}
	if len(keys) != 1 {
		t.Errorf("Got %d keys before failure, want 1", len(keys))
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	if _, err := New(&fakePutter{}, st, Config{}); err == nil {
		t.Error("Expected error for missing bucket")
	}
}
