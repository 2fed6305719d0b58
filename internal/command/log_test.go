package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
	"github.com/nerrad567/gridcontrol/internal/infrastructure/database"
	"github.com/nerrad567/gridcontrol/migrations"
)

// setupTestDB creates an in-memory database with the gateway schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func TestSQLiteLog_AppendAndList(t *testing.T) {
	log := NewSQLiteLog(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := Record{
			ID:       fmt.Sprintf("cmd-%d", i),
			DeviceID: "P1",
			Command:  KindSetActivePowerLimit,
			Envelope: json.RawMessage(fmt.Sprintf(`{"command":"SET_ACTIVE_POWER_LIMIT","payload":{"limit":%d}}`, 90-i)),
			Source:   SourceEngine,
			Status:   StatusPublished,
			IssuedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := log.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	failed := Record{
		ID:       "cmd-other",
		DeviceID: "P2",
		Command:  KindSetPowerState,
		Envelope: json.RawMessage(`{}`),
		Source:   SourceOperator,
		Status:   StatusFailed,
		Error:    "transport unavailable",
		IssuedAt: base,
	}
	if err := log.Append(ctx, failed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := log.ListByDevice(ctx, "P1", 2)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (limit)", len(records))
	}
	if records[0].ID != "cmd-2" || records[1].ID != "cmd-1" {
		t.Errorf("order = %s, %s; want newest first", records[0].ID, records[1].ID)
	}
	if !records[0].IssuedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("IssuedAt = %v", records[0].IssuedAt)
	}

	other, err := log.ListByDevice(ctx, "P2", 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(other) != 1 || other[0].Status != StatusFailed || other[0].Error != "transport unavailable" {
		t.Errorf("P2 records = %+v", other)
	}
}

func TestSQLiteLog_ListEmpty(t *testing.T) {
	log := NewSQLiteLog(setupTestDB(t))

	records, err := log.ListByDevice(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", records)
	}
}

func TestSQLiteLog_RejectsUnknownSource(t *testing.T) {
	log := NewSQLiteLog(setupTestDB(t))

	err := log.Append(context.Background(), Record{
		ID: "x", DeviceID: "P1", Command: KindSetPowerState, Envelope: json.RawMessage(`{}`),
		Source: "cron", Status: StatusPublished, IssuedAt: time.Now(),
	})
	if err == nil {
		t.Error("Append() should reject a source outside engine/operator")
	}
}

// TestDispatcherWithSQLiteLog exercises the dispatcher against the real table.
func TestDispatcherWithSQLiteLog(t *testing.T) {
	log := NewSQLiteLog(setupTestDB(t))
	d := newTestDispatcher(&mockPublisher{}, log, nil)

	intent := Intent{DeviceID: "P9", Kind: KindSetTariffSchedule, Payload: TariffSchedulePayload{Schedule: json.RawMessage(`{"peak":"17:00-21:00"}`)}}
	if _, err := d.Send(context.Background(), intent, SourceOperator); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	records, err := log.ListByDevice(context.Background(), "P9", 10)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(records) != 1 || records[0].Command != KindSetTariffSchedule {
		t.Fatalf("records = %+v", records)
	}

	var env struct {
		Payload struct {
			Schedule map[string]string `json:"schedule"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(records[0].Envelope, &env); err != nil {
		t.Fatalf("stored envelope: %v", err)
	}
	if env.Payload.Schedule["peak"] != "17:00-21:00" {
		t.Errorf("stored schedule = %v", env.Payload.Schedule)
	}
}
