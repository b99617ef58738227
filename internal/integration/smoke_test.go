package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"widgetcore/internal/blob"
	"widgetcore/internal/config"
	"widgetcore/internal/core"
	"widgetcore/internal/infra/persistence/postgres"
	pgstub "widgetcore/internal/infra/persistence/postgres/testutil"
	"widgetcore/pkg/domain"
)

func intPtr(v int) *int { return &v }

// TestIntegrationSmoke runs a short write, list, backup and restore cycle for
// every in-process store and blob adapter combination.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := core.OpenPersistentStore(ctx, config.StorageConfig{Driver: config.DriverMemory})
				if err != nil {
					t.Fatalf("open memory store: %v", err)
				}
				return s
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := core.OpenPersistentStore(ctx, config.StorageConfig{
					Driver:     config.DriverSQLite,
					SQLitePath: filepath.Join(t.TempDir(), "widgets.db"),
				})
				if err != nil {
					t.Skipf("sqlite unavailable: %v", err)
				}
				return s
			},
		},
		{
			name: "postgres-stub-store",
			open: func(t *testing.T) domain.PersistentStore {
				db, _ := pgstub.NewStateDB()
				restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
				t.Cleanup(restore)
				s, err := postgres.NewStore(ctx, "")
				if err != nil {
					t.Fatalf("open postgres stub store: %v", err)
				}
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				b, err := blob.Open(ctx, config.BlobConfig{Driver: config.BlobFS, FSRoot: t.TempDir()})
				if err != nil {
					t.Fatalf("open fs blob: %v", err)
				}
				return b
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				store := sv.open(t)
				blobs := bv.open(t)

				metrics := core.NewExpvarMetricsRecorder("")
				var traceBuf bytes.Buffer
				tracer := core.NewJSONTracer(&traceBuf)
				svc := core.NewService(store, core.WithMetricsRecorder(metrics), core.WithTracer(tracer))

				for i := 0; i < 3; i++ {
					if _, err := svc.Create(ctx, domain.WidgetDraft{X: i, Y: i, Width: 1, Height: 1}); err != nil {
						t.Fatalf("create %d: %v", i, err)
					}
				}
				front, err := svc.Create(ctx, domain.WidgetDraft{X: 9, Y: 9, Width: 2, Height: 2, Index: intPtr(1)})
				if err != nil {
					t.Fatalf("create at front: %v", err)
				}

				page, err := svc.List(ctx, core.ListRequest{})
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				if page.Total == nil || *page.Total != 4 {
					t.Fatalf("expected total 4, got %+v", page.Total)
				}
				if page.Content[0].ID != front.ID {
					t.Fatalf("expected inserted widget first, got %+v", page.Content[0])
				}
				for i, w := range page.Content {
					if w.Index != i+1 {
						t.Fatalf("expected contiguous indices after shift, got %+v", page.Content)
					}
				}

				info, err := svc.Backup(ctx, blobs)
				if err != nil {
					t.Fatalf("backup: %v", err)
				}
				if !strings.HasPrefix(info.Key, core.SnapshotPrefix) {
					t.Fatalf("unexpected snapshot key %s", info.Key)
				}

				restored := core.NewInMemoryService()
				snap, err := restored.Restore(ctx, blobs, "")
				if err != nil {
					t.Fatalf("restore: %v", err)
				}
				if len(snap.Widgets) != 4 || snap.LastID != front.ID {
					t.Fatalf("unexpected snapshot %+v", snap)
				}
				got, err := restored.Get(ctx, front.ID)
				if err != nil || got.Index != 1 {
					t.Fatalf("expected restored widget at index 1, got %+v err=%v", got, err)
				}

				stats := metrics.Snapshot()
				if c := stats.Operations[core.OpCreate]; c.Calls != 4 || c.Errors != 0 || c.Shifted != 3 {
					t.Fatalf("unexpected create stats %+v", c)
				}
				if b := stats.Operations[core.OpBackup]; b.Calls != 1 || b.Errors != 0 {
					t.Fatalf("unexpected backup stats %+v", b)
				}

				lines := strings.Split(strings.TrimSpace(traceBuf.String()), "\n")
				if len(lines) != 6 {
					t.Fatalf("expected 6 trace lines, got %d: %s", len(lines), traceBuf.String())
				}
				var last core.SpanRecord
				if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
					t.Fatalf("decode trace line: %v", err)
				}
				if last.Op != core.OpBackup || !last.OK || last.Widgets != 4 {
					t.Fatalf("unexpected trailing trace entry %+v", last)
				}
			})
		}
	}
}
