package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-adapters/migrations"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	logs := []*Log{
		{Action: ActionCommand, EntityType: EntityDevice, EntityID: "lock.front_door", AdapterID: "home",
			Source: "api", Decision: "REQUIRE_CONFIRMATION", RiskLevel: "HIGH", Reason: "unlock",
			Outcome: OutcomeConfirmationPending, CreatedAt: base},
		{Action: ActionCommand, EntityType: EntityDevice, EntityID: "lock.front_door", AdapterID: "home",
			Source: "api", Decision: "REQUIRE_CONFIRMATION", RiskLevel: "HIGH",
			Outcome: OutcomeExecuted, Details: map[string]any{"action": "unlock", "confirmed": true},
			CreatedAt: base.Add(time.Second)},
		{Action: ActionScene, EntityType: EntityScene, EntityID: "scene.movie_night", AdapterID: "hub",
			Source: "api", Decision: "ALLOW", RiskLevel: "SAFE",
			Outcome: OutcomeFailed, Error: "adapter: not connected", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, l := range logs {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if l.ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Logs) != 3 || all.Limit != 50 {
		t.Fatalf("List() = total %d, %d logs, limit %d", all.Total, len(all.Logs), all.Limit)
	}
	if all.Logs[0].EntityID != "scene.movie_night" {
		t.Errorf("first log = %s, want newest first", all.Logs[0].EntityID)
	}
	if all.Logs[0].Error != "adapter: not connected" || all.Logs[0].AdapterID != "hub" {
		t.Errorf("scene log = %+v", all.Logs[0])
	}
	if got := all.Logs[1].Details["confirmed"]; got != true {
		t.Errorf("details confirmed = %v, want true", got)
	}
	if !all.Logs[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", all.Logs[2].CreatedAt, base)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	for i, outcome := range []string{OutcomeExecuted, OutcomeDenied, OutcomeExecuted, OutcomeFailed} {
		adapterID := "home"
		if i%2 == 1 {
			adapterID = "zigbee"
		}
		if err := repo.Create(ctx, &Log{
			Action: ActionCommand, EntityType: EntityDevice, EntityID: "switch.a",
			AdapterID: adapterID, Source: "api", Outcome: outcome,
		}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		total  int
		page   int
	}{
		{"by outcome", Filter{Outcome: OutcomeExecuted}, 2, 2},
		{"by adapter", Filter{AdapterID: "zigbee"}, 2, 2},
		{"combined", Filter{AdapterID: "zigbee", Outcome: OutcomeDenied}, 1, 1},
		{"by entity type", Filter{EntityType: EntityScene}, 0, 0},
		{"paged", Filter{Limit: 3, Offset: 2}, 4, 2},
		{"limit clamp", Filter{Limit: 1000}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total || len(res.Logs) != tt.page {
				t.Errorf("List() = total %d, page %d, want %d, %d", res.Total, len(res.Logs), tt.total, tt.page)
			}
			if res.Limit > 200 {
				t.Errorf("Limit = %d, want clamped to 200", res.Limit)
			}
		})
	}
}
