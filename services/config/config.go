package config

import (
	"context"
	"maps"
	"slices"

	"usb-epaper-go/bus"
	"usb-epaper-go/errcode"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) (map[string]any, bool) {
	f, ok := embeddedConfigs[device]
	if !ok {
		return nil, false
	}
	return f(), true
}

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig publishes every top-level key of the device's config as a
// retained config/<key> message, in key order.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "missing device ID in context"}
	}
	m, ok := EmbeddedConfigLookup(device)
	if !ok || len(m) == 0 {
		return &errcode.E{C: errcode.NotReady, Op: "config", Msg: "no embedded config for device: " + device}
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), m[k], true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}
