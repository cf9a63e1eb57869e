// internal/publisher/mqtt_test.go
package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
)

type sent struct {
	topic   string
	payload []byte
}

func TestPublisher_TopicLayout(t *testing.T) {
	p := newWithSender("site/rack1/", nil, nil)
	assert.Equal(t, "site/rack1/0A/telemetry", p.Topic(0x0A))
}

func TestPublisher_PublishPerModule(t *testing.T) {
	var out []sent
	p := newWithSender("bmbus", func(topic string, payload []byte) error {
		out = append(out, sent{topic, payload})
		return nil
	}, nil)

	m1 := registry.Module{Address: 0x01, Name: "BM-01", State: registry.StatePrimed}
	m1.Voltages.Value[0] = 3301
	m1.Summary.Value = protocol.Summary{MinMV: 3300, MaxMV: 3400, AvgMV: 3350, MaxLocation: 11, Temp1: 0x190}
	m2 := registry.Module{Address: 0x02, Name: "BM-02", State: registry.StatePrimed}
	m2.Summary.Stale = true

	snaps := func(addr byte) status.Snapshot {
		if addr == 0x02 {
			return status.Snapshot{Health: status.HealthStale, LastErrorCode: 0x0103}
		}
		return status.Snapshot{Health: status.HealthOK}
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.Publish("cycle-1", at, []registry.Module{m1, m2}, snaps))
	require.Len(t, out, 2)
	assert.Equal(t, "bmbus/01/telemetry", out[0].topic)
	assert.Equal(t, "bmbus/02/telemetry", out[1].topic)

	var doc Telemetry
	require.NoError(t, json.Unmarshal(out[0].payload, &doc))
	assert.Equal(t, "cycle-1", doc.CycleID)
	assert.Equal(t, "0x01", doc.Address)
	assert.Equal(t, "primed", doc.State)
	assert.Equal(t, status.HealthOK, doc.Health)
	assert.Len(t, doc.CellsMV, protocol.CellsPerModule)
	assert.Equal(t, uint16(3301), doc.CellsMV[0])
	assert.Equal(t, uint8(11), doc.MaxLocation)
	assert.True(t, doc.At.Equal(at))

	require.NoError(t, json.Unmarshal(out[1].payload, &doc))
	assert.True(t, doc.SummaryStale)
	assert.Equal(t, uint16(0x0103), doc.LastErrorCode)
}

func TestPublisher_ContinuesAfterFailure(t *testing.T) {
	calls := 0
	p := newWithSender("bmbus", func(topic string, _ []byte) error {
		calls++
		if topic == "bmbus/01/telemetry" {
			return errors.New("broker gone")
		}
		return nil
	}, nil)

	mods := []registry.Module{{Address: 0x01}, {Address: 0x02}}
	err := p.Publish("c", time.Now(), mods, func(byte) status.Snapshot { return status.Snapshot{} })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
	assert.Equal(t, 2, calls)
}

func TestPublisher_ConnectionState(t *testing.T) {
	p := newWithSender("bmbus", func(string, []byte) error { return nil }, nil)
	assert.True(t, p.Connected())
	assert.Empty(t, p.LastError())

	p.setConnected(false, "EOF")
	assert.False(t, p.Connected())
	assert.Equal(t, "EOF", p.LastError())

	p.setConnected(true, "")
	assert.True(t, p.Connected())
	assert.Empty(t, p.LastError())
}
