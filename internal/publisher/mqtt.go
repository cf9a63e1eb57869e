// internal/publisher/mqtt.go
package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	cfg "github.com/tamzrod/bmbus/internal/config"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// sendFunc publishes one payload on one topic.
type sendFunc func(topic string, payload []byte) error

// Telemetry is the JSON document published per module and cycle.
type Telemetry struct {
	CycleID string    `json:"cycle_id"`
	At      time.Time `json:"at"`

	Address string `json:"address"`
	Name    string `json:"name"`
	State   string `json:"state"`

	Health        uint16 `json:"health"`
	LastErrorCode uint16 `json:"last_error_code,omitempty"`

	CellsMV       []uint16 `json:"cells_mv"`
	VoltagesStale bool     `json:"voltages_stale"`

	MinMV         uint16 `json:"min_mv"`
	MaxMV         uint16 `json:"max_mv"`
	AvgMV         uint16 `json:"avg_mv"`
	MinLocation   uint8  `json:"min_location"`
	MaxLocation   uint8  `json:"max_location"`
	Temp1         uint16 `json:"temp1"`
	Temp2         uint16 `json:"temp2"`
	Status        uint8  `json:"status"`
	SummaryStale  bool   `json:"summary_stale"`
}

// Publisher sends per-module telemetry to an MQTT broker.
type Publisher struct {
	prefix string
	send   sendFunc
	client mqtt.Client
	log    *zap.Logger

	mu        sync.RWMutex
	connected bool
	lastError string
}

// Connect dials the broker described by c.
func Connect(c cfg.MQTTConfig, log *zap.Logger) (*Publisher, error) {
	if c.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Publisher{prefix: c.TopicPrefix, log: log}

	clientID := c.ClientID
	if clientID == "" {
		clientID = "bmbus_" + c.TopicPrefix
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(clientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.setConnected(true, "")
		log.Info("mqtt connected", zap.String("broker", c.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false, err.Error())
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}

	qos := c.QoS
	p.send = func(topic string, payload []byte) error {
		t := p.client.Publish(topic, qos, false, payload)
		if !t.WaitTimeout(publishTimeout) {
			return fmt.Errorf("mqtt: publish %s timed out", topic)
		}
		return t.Error()
	}
	return p, nil
}

func newWithSender(prefix string, send sendFunc, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{prefix: prefix, send: send, log: log, connected: true}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
}

// Connected returns connection status.
func (p *Publisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// LastError returns the last connection error message.
func (p *Publisher) LastError() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

func (p *Publisher) setConnected(ok bool, msg string) {
	p.mu.Lock()
	p.connected = ok
	p.lastError = msg
	p.mu.Unlock()
}

// Topic is <prefix>/<addr>/telemetry with addr as two hex digits.
func (p *Publisher) Topic(addr byte) string {
	return fmt.Sprintf("%s/%02X/telemetry", strings.TrimSuffix(p.prefix, "/"), addr)
}

// Publish sends one document per module. Failures are collected; one
// module failing does not stop the others.
func (p *Publisher) Publish(cycleID string, at time.Time, modules []registry.Module, snaps func(addr byte) status.Snapshot) error {
	var errs []string
	for _, m := range modules {
		doc := NewTelemetry(cycleID, at, m, snaps(m.Address))
		payload, err := json.Marshal(doc)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := p.send(p.Topic(m.Address), payload); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// NewTelemetry flattens a module record into its published form.
func NewTelemetry(cycleID string, at time.Time, m registry.Module, s status.Snapshot) Telemetry {
	sum := m.Summary.Value
	return Telemetry{
		CycleID:       cycleID,
		At:            at,
		Address:       fmt.Sprintf("0x%02X", m.Address),
		Name:          m.Name,
		State:         m.State.String(),
		Health:        s.Health,
		LastErrorCode: s.LastErrorCode,
		CellsMV:       append([]uint16(nil), m.Voltages.Value[:]...),
		VoltagesStale: m.Voltages.Stale,
		MinMV:         sum.MinMV,
		MaxMV:         sum.MaxMV,
		AvgMV:         sum.AvgMV,
		MinLocation:   sum.MinLocation,
		MaxLocation:   sum.MaxLocation,
		Temp1:         sum.Temp1,
		Temp2:         sum.Temp2,
		Status:        sum.Status,
		SummaryStale:  m.Summary.Stale,
	}
}
