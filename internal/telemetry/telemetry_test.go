package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/CK6170/Dishrunrilla-go/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	msgs         []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestPublishSearch(t *testing.T) {
	c := &fakeClient{}
	p := newMQTTPublisher(c, "station/")
	obs := models.CalibrationObservation{Target: "beacon", Platonic: models.Direction{Az: 10, El: 20}, Peak: models.Direction{Az: 10.5, El: 20}}
	res := models.SearchResult{BestOffset: models.AngularOffset{Az: 0.5}, BestStrength: -42.5, Samples: 27}
	if err := p.PublishSearch(obs, res); err != nil {
		t.Fatal(err)
	}
	if len(c.msgs) != 1 || c.msgs[0].topic != "station/search" || c.msgs[0].retained {
		t.Fatalf("published %+v", c.msgs)
	}
	var got SearchMessage
	if err := json.Unmarshal(c.msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Target != "beacon" || got.Strength == nil || *got.Strength != -42.5 || got.Samples != 27 {
		t.Fatalf("payload %+v", got)
	}
}

func TestPublishSearchWithoutValidReading(t *testing.T) {
	c := &fakeClient{}
	p := newMQTTPublisher(c, "")
	if err := p.PublishSearch(models.CalibrationObservation{}, models.SearchResult{BestStrength: math.NaN()}); err != nil {
		t.Fatal(err)
	}
	if c.msgs[0].topic != DefaultTopic+"/search" {
		t.Fatalf("topic %q", c.msgs[0].topic)
	}
	var got SearchMessage
	if err := json.Unmarshal(c.msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Strength != nil {
		t.Fatalf("strength %v want null", *got.Strength)
	}
}

func TestPublishModelRetained(t *testing.T) {
	c := &fakeClient{}
	p := newMQTTPublisher(c, "station")
	if err := p.PublishModel(models.PointingModel{AZ0: 0.25, Rank: 7}); err != nil {
		t.Fatal(err)
	}
	if c.msgs[0].topic != "station/model" || !c.msgs[0].retained {
		t.Fatalf("published %+v", c.msgs[0])
	}
	var m models.PointingModel
	if err := json.Unmarshal(c.msgs[0].payload, &m); err != nil || m.AZ0 != 0.25 {
		t.Fatalf("model %+v err=%v", m, err)
	}
	p.Close()
	if !c.disconnected {
		t.Fatal("Close did not disconnect")
	}
}

func TestPublishError(t *testing.T) {
	boom := errors.New("broker gone")
	p := newMQTTPublisher(&fakeClient{err: boom}, "x")
	if err := p.PublishModel(models.PointingModel{}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestNewWithoutBrokerIsNop(t *testing.T) {
	for _, cfg := range []*models.MQTT{nil, {BROKER: "  "}} {
		p, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(Nop); !ok {
			t.Fatalf("got %T want Nop", p)
		}
	}
}
