package shape

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes committed shape placements to MQTT so external map
// clients can mirror placement state. If client is nil, publishing is
// disabled (the service runs fine without a broker).
type Publisher struct {
	client     mqtt.Client
	prefix     string
	qos        byte
	retain     bool
	placements map[string]Placement
	mu         sync.RWMutex
}

// NewPublisher creates a placement publisher with the given topic prefix.
// An empty prefix defaults to "geoshift".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "geoshift"
	}
	return &Publisher{
		client:     client,
		prefix:     prefix,
		qos:        0,    // placement updates are fire and forget
		retain:     true, // retain latest placement for late joiners
		placements: make(map[string]Placement),
	}
}

// Enabled reports whether a connected MQTT client is attached.
func (p *Publisher) Enabled() bool {
	return p.client != nil && p.client.IsConnected()
}

// PublishPlacement publishes one shape's committed placement to its
// per-shape topic and refreshes the combined placements topic.
func (p *Publisher) PublishPlacement(pl Placement) error {
	if !p.Enabled() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.placements[pl.ShapeID] = pl
	p.mu.Unlock()

	if err := p.publishIndividual(pl); err != nil {
		log.Printf("Error publishing placement for %s: %v", pl.ShapeID, err)
		return err
	}
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined placements: %v", err)
		return err
	}
	return nil
}

// PublishRemoval clears a removed shape's retained topic and drops it from
// the combined payload.
func (p *Publisher) PublishRemoval(shapeID string) error {
	if !p.Enabled() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	delete(p.placements, shapeID)
	p.mu.Unlock()

	topic := fmt.Sprintf("%s/%s", p.prefix, shapeID)
	token := p.client.Publish(topic, p.qos, true, []byte{})
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("clearing %s: %w", topic, token.Error())
	}
	return p.publishCombined()
}

func (p *Publisher) publishIndividual(pl Placement) error {
	topic := fmt.Sprintf("%s/%s", p.prefix, pl.ShapeID)

	payload, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("marshaling placement: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	all := make([]Placement, 0, len(p.placements))
	for _, pl := range p.placements {
		all = append(all, pl)
	}
	p.mu.RUnlock()

	payload, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshaling placements: %w", err)
	}

	topic := fmt.Sprintf("%s/placements", p.prefix)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// ConnectMQTT dials the broker from config and returns a connected client.
// Returns nil without error when no broker is configured.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("geoshift-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, err)
	}
	return client, nil
}
