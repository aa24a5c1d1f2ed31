// Package telemetry publishes calibration progress to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopic    = "dishrunrilla"
	DefaultClientID = "dishrunrilla-calibrator"

	publishTimeout = 5 * time.Second
)

// Publisher receives search results and fitted models as they are produced.
type Publisher interface {
	PublishSearch(obs models.CalibrationObservation, res models.SearchResult) error
	PublishModel(m models.PointingModel) error
	Close()
}

// Nop discards everything; used when no broker is configured.
type Nop struct{}

func (Nop) PublishSearch(models.CalibrationObservation, models.SearchResult) error { return nil }

func (Nop) PublishModel(models.PointingModel) error { return nil }

func (Nop) Close() {}

// client is the subset of mqtt.Client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client client
	topic  string
}

// New connects to cfg.BROKER, or returns Nop when cfg is empty.
func New(cfg *models.MQTT) (Publisher, error) {
	if cfg == nil || strings.TrimSpace(cfg.BROKER) == "" {
		return Nop{}, nil
	}
	clientID := cfg.CLIENT_ID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BROKER).
		SetClientID(clientID).
		SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BROKER, token.Error())
	}
	return newMQTTPublisher(c, cfg.TOPIC), nil
}

func newMQTTPublisher(c client, topic string) *MQTTPublisher {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{client: c, topic: topic}
}

// SearchMessage is the JSON payload on <topic>/search. Strength is null when
// the scan produced no valid reading.
type SearchMessage struct {
	Target   string               `json:"target,omitempty"`
	Platonic models.Direction     `json:"platonic"`
	Peak     models.Direction     `json:"peak"`
	Offset   models.AngularOffset `json:"offset"`
	Strength *float64             `json:"strength"`
	Samples  int                  `json:"samples"`
	Invalid  int                  `json:"invalid"`
	Time     time.Time            `json:"time"`
}

func (p *MQTTPublisher) PublishSearch(obs models.CalibrationObservation, res models.SearchResult) error {
	msg := SearchMessage{
		Target:   obs.Target,
		Platonic: obs.Platonic,
		Peak:     obs.Peak,
		Offset:   res.BestOffset,
		Samples:  res.Samples,
		Invalid:  res.Invalid,
		Time:     time.Now().UTC(),
	}
	if !math.IsNaN(res.BestStrength) && !math.IsInf(res.BestStrength, 0) {
		s := res.BestStrength
		msg.Strength = &s
	}
	return p.publish(p.topic+"/search", false, msg)
}

// PublishModel publishes the latest model retained, so late subscribers get it.
func (p *MQTTPublisher) PublishModel(m models.PointingModel) error {
	return p.publish(p.topic+"/model", true, m)
}

func (p *MQTTPublisher) publish(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() { p.client.Disconnect(250) }
