package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/gridcontrol/internal/metrics"
)

// =============================================================================
// Test Helpers
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockPublisher records publishes and can be told to fail.
type mockPublisher struct {
	mu        sync.Mutex
	messages  []published
	publishFn func(topic string) error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishFn != nil {
		if err := m.publishFn(topic); err != nil {
			return err
		}
	}
	m.messages = append(m.messages, published{topic, payload, qos, retained})
	return nil
}

// memoryLog is an in-memory command Log.
type memoryLog struct {
	records []Record
	err     error
}

func (l *memoryLog) Append(_ context.Context, rec Record) error {
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

// blockingLog waits for its context, like a SQLite file held locked.
type blockingLog struct {
	ctxErr error
}

func (l *blockingLog) Append(ctx context.Context, _ Record) error {
	<-ctx.Done()
	l.ctxErr = ctx.Err()
	return ctx.Err()
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(pub Publisher, log Log, m *metrics.Metrics) *Dispatcher {
	d := NewDispatcher(DispatcherDeps{
		Publisher: pub,
		Topics:    mqtt.NewTopics("prod", "solar"),
		QoS:       1,
		Log:       log,
		Metrics:   m,
	})
	d.now = func() time.Time { return fixedNow }
	d.newID = func() string { return "cmd-1" }
	return d
}

// =============================================================================
// Send Tests
// =============================================================================

func TestSend_PublishesEnvelopeOnCommandTopic(t *testing.T) {
	pub := &mockPublisher{}
	log := &memoryLog{}
	d := newTestDispatcher(pub, log, nil)

	intent := Intent{
		DeviceID: "P42",
		Kind:     KindBatteryDischarge,
		Payload:  BatteryDischargePayload{TargetKW: 20},
		IssuedAt: fixedNow,
	}

	env, err := d.Send(context.Background(), intent, SourceEngine)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if env.ID != "cmd-1" || env.Command != KindBatteryDischarge {
		t.Errorf("envelope = %+v", env)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.topic != "prod/solar/P42/command" {
		t.Errorf("topic = %q, want prod/solar/P42/command", msg.topic)
	}
	if msg.qos != 1 || msg.retained {
		t.Errorf("qos=%d retained=%v, want 1/false", msg.qos, msg.retained)
	}

	var wire struct {
		ID        string          `json:"id"`
		DeviceID  string          `json:"deviceId"`
		Command   string          `json:"command"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.payload, &wire); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if wire.Command != "BATTERY_DISCHARGE" || wire.DeviceID != "P42" {
		t.Errorf("wire envelope = %+v", wire)
	}
	if string(wire.Payload) != `{"targetKw":20}` {
		t.Errorf("payload = %s, want {\"targetKw\":20}", wire.Payload)
	}
	if _, err := time.Parse(time.RFC3339, wire.Timestamp); err != nil {
		t.Errorf("timestamp %q is not ISO-8601: %v", wire.Timestamp, err)
	}

	if len(log.records) != 1 {
		t.Fatalf("command log records = %d, want 1", len(log.records))
	}
	if rec := log.records[0]; rec.Status != StatusPublished || rec.Source != SourceEngine {
		t.Errorf("record = %+v, want published/engine", rec)
	}
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name    string
		intent  Intent
		wantErr error
	}{
		{"empty device", Intent{DeviceID: "", Kind: KindSetPowerState}, ErrInvalidDeviceID},
		{"separator in device", Intent{DeviceID: "P1/x", Kind: KindSetPowerState}, ErrInvalidDeviceID},
		{"wildcard in device", Intent{DeviceID: "+", Kind: KindSetPowerState}, ErrInvalidDeviceID},
		{"padded device", Intent{DeviceID: " P1", Kind: KindSetPowerState}, ErrInvalidDeviceID},
		{"unknown kind", Intent{DeviceID: "P1", Kind: "SELF_DESTRUCT"}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			d := newTestDispatcher(pub, nil, nil)

			_, err := d.Send(context.Background(), tt.intent, SourceOperator)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if len(pub.messages) != 0 {
				t.Error("invalid intent must not be published")
			}
		})
	}
}

func TestSend_TransportUnavailable(t *testing.T) {
	pub := &mockPublisher{publishFn: func(string) error { return mqtt.ErrNotConnected }}
	log := &memoryLog{}
	m := metrics.New(prometheus.NewRegistry())
	d := newTestDispatcher(pub, log, m)

	intent := Intent{DeviceID: "P1", Kind: KindSetPowerState, Payload: PowerStatePayload{State: PowerOn}}
	_, err := d.Send(context.Background(), intent, SourceOperator)

	if !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Send() error = %v, want ErrTransportUnavailable", err)
	}
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Send() error = %v, should still wrap mqtt.ErrNotConnected", err)
	}

	if len(log.records) != 1 || log.records[0].Status != StatusFailed || log.records[0].Error == "" {
		t.Errorf("records = %+v, want one failed record with error text", log.records)
	}

	got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("SET_POWER_STATE", "operator", metrics.ResultFailed))
	if got != 1 {
		t.Errorf("failed command counter = %v, want 1", got)
	}
}

func TestSend_LogFailureDoesNotFailSend(t *testing.T) {
	pub := &mockPublisher{}
	d := newTestDispatcher(pub, &memoryLog{err: errors.New("disk full")}, nil)

	intent := Intent{DeviceID: "P1", Kind: KindSetActivePowerLimit, Payload: PowerLimitPayload{Limit: 80}}
	if _, err := d.Send(context.Background(), intent, SourceEngine); err != nil {
		t.Errorf("Send() error = %v, want nil when only the log fails", err)
	}
	if len(pub.messages) != 1 {
		t.Error("command should still be published")
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{
		KindSetPowerState, KindSetActivePowerLimit, KindSetPeakShaving,
		KindBatteryDischarge, KindSetExportLimit, KindSetTariffSchedule,
	} {
		if !k.Valid() {
			t.Errorf("%s.Valid() = false", k)
		}
	}
	if Kind("set_power_state").Valid() {
		t.Error("kinds are case sensitive")
	}
}

func TestSend_CommandLogWriteIsBounded(t *testing.T) {
	pub := &mockPublisher{}
	log := &blockingLog{}
	d := NewDispatcher(DispatcherDeps{
		Publisher:  pub,
		Topics:     mqtt.NewTopics("prod", "solar"),
		Log:        log,
		LogTimeout: 20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := d.Send(context.Background(), Intent{
			DeviceID: "P42",
			Kind:     KindSetPowerState,
			Payload:  PowerStatePayload{State: PowerOn},
		}, SourceEngine)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Send() error = %v, want nil when only the log write times out", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send() blocked on a stalled command log")
	}
	if !errors.Is(log.ctxErr, context.DeadlineExceeded) {
		t.Errorf("log context error = %v, want deadline exceeded", log.ctxErr)
	}
	if len(pub.messages) != 1 {
		t.Errorf("published = %d, want 1", len(pub.messages))
	}
}
