package control

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gridcontrol/internal/command"
)

// Result is the synchronous outcome of an operator command. Success means
// the command was handed to the transport, not that the device applied it.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Controller executes operator commands against devices.
type Controller struct {
	store      *Store
	dispatcher Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewController creates an operator controller.
func NewController(store *Store, dispatcher Dispatcher, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Start switches the device's inverter on.
func (c *Controller) Start(ctx context.Context, deviceID string) (Result, error) {
	return c.send(ctx, deviceID, command.KindSetPowerState,
		command.PowerStatePayload{State: command.PowerOn},
		fmt.Sprintf("start command sent to %s", deviceID))
}

// Stop switches the device's inverter off.
func (c *Controller) Stop(ctx context.Context, deviceID string) (Result, error) {
	return c.send(ctx, deviceID, command.KindSetPowerState,
		command.PowerStatePayload{State: command.PowerOff},
		fmt.Sprintf("stop command sent to %s", deviceID))
}

// SetPowerLimit sets the active power limit, a percentage in [0, 100].
func (c *Controller) SetPowerLimit(ctx context.Context, deviceID string, limit float64) (Result, error) {
	if limit < 0 || limit > maxPowerLimit || math.IsNaN(limit) {
		return rejected(fmt.Errorf("%w: power limit %v outside [0, %v]", ErrInvalidLimit, limit, maxPowerLimit))
	}
	return c.send(ctx, deviceID, command.KindSetActivePowerLimit,
		command.PowerLimitPayload{Limit: limit},
		fmt.Sprintf("power limit %v sent to %s", limit, deviceID))
}

// SetPeakShaving updates the stored configuration and forwards it to the
// device. A nil threshold keeps the stored threshold.
func (c *Controller) SetPeakShaving(ctx context.Context, deviceID string, enabled bool, thresholdKW *float64) (Result, error) {
	if err := validDevice(deviceID); err != nil {
		return rejected(err)
	}

	cfg, err := c.store.UpdatePeakShaving(deviceID, enabled, thresholdKW)
	if err != nil {
		return rejected(err)
	}
	c.logger.Info("peak shaving configured",
		"device_id", deviceID,
		"enabled", cfg.PeakShavingEnabled,
		"threshold_kw", cfg.ThresholdKW,
	)

	state := "disabled"
	if cfg.PeakShavingEnabled {
		state = fmt.Sprintf("enabled at %v kW", cfg.ThresholdKW)
	}
	return c.send(ctx, deviceID, command.KindSetPeakShaving,
		command.PeakShavingPayload{Enabled: cfg.PeakShavingEnabled, Threshold: cfg.ThresholdKW},
		fmt.Sprintf("peak shaving %s for %s", state, deviceID))
}

// SetExportLimit sets the device's grid export ceiling for the engine and
// forwards it to the device.
func (c *Controller) SetExportLimit(ctx context.Context, deviceID string, limitKW float64) (Result, error) {
	if err := validDevice(deviceID); err != nil {
		return rejected(err)
	}
	if err := c.store.SetExportLimit(deviceID, limitKW); err != nil {
		return rejected(err)
	}
	c.logger.Info("export limit configured", "device_id", deviceID, "limit_kw", limitKW)

	return c.send(ctx, deviceID, command.KindSetExportLimit,
		command.ExportLimitPayload{Limit: limitKW},
		fmt.Sprintf("export limit %v kW sent to %s", limitKW, deviceID))
}

// SetTariff forwards a tariff schedule, which must be a JSON object.
func (c *Controller) SetTariff(ctx context.Context, deviceID string, schedule json.RawMessage) (Result, error) {
	var obj map[string]any
	if err := json.Unmarshal(schedule, &obj); err != nil || obj == nil {
		return rejected(fmt.Errorf("%w: schedule must be a JSON object", ErrInvalidSchedule))
	}
	return c.send(ctx, deviceID, command.KindSetTariffSchedule,
		command.TariffSchedulePayload{Schedule: schedule},
		fmt.Sprintf("tariff schedule sent to %s", deviceID))
}

// send dispatches one operator intent.
func (c *Controller) send(ctx context.Context, deviceID string, kind command.Kind, payload any, okMessage string) (Result, error) {
	if err := validDevice(deviceID); err != nil {
		return rejected(err)
	}

	_, err := c.dispatcher.Send(ctx, command.Intent{
		DeviceID: deviceID,
		Kind:     kind,
		Payload:  payload,
		IssuedAt: c.now().UTC(),
	}, command.SourceOperator)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, err
	}
	return Result{Success: true, Message: okMessage}, nil
}

// validDevice maps command ID validation onto ErrInvalidDeviceID.
func validDevice(deviceID string) error {
	if err := command.ValidateDeviceID(deviceID); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidDeviceID, deviceID, err)
	}
	return nil
}

func rejected(err error) (Result, error) {
	return Result{Success: false, Message: err.Error()}, err
}
