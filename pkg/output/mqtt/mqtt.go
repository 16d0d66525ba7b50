package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/golightmeter/pkg/calc"
	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/config"
	"github.com/itohio/golightmeter/pkg/output"
	"github.com/itohio/golightmeter/pkg/sample"
)

const (
	DefaultServer       = "tcp://localhost:1883"
	DefaultClientID     = "lightmeter"
	DefaultStateTopic   = "lightmeter/state"
	DefaultProfileTopic = "lightmeter/profile"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyUniqueID            = "unique_id"
	unitLux                = "lx"
	deviceClassIlluminance = "illuminance"
	stateClassMeasurement  = "measurement"
	valueTemplateLux       = "{{ value_json.lux }}"
)

// publisher is the part of mqtt.Client the output uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client       publisher
	stateTopic   string
	profileTopic string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := newMQTT(client, cfg)

	if cfg.DiscoveryTopic != "" {
		payload := discoveryPayload(cfg, m.stateTopic)
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			log.Printf("mqtt discovery publish error: %v", err)
		}
	}

	return m, nil
}

func newMQTT(client publisher, cfg config.MQTTConfig) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, profileTopic: cfg.ProfileTopic}
	if m.stateTopic == "" {
		m.stateTopic = DefaultStateTopic
	}
	if m.profileTopic == "" {
		m.profileTopic = DefaultProfileTopic
	}
	return m
}

func (m *MQTTOutput) Publish(samples []sample.Sample) error {
	for _, s := range samples {
		if err := publishJSON(m.client, m.stateTopic, false, samplePayload(s)); err != nil {
			return err
		}
	}
	return nil
}

// PublishProfile publishes the profile retained so late subscribers see the
// last calibration.
func (m *MQTTOutput) PublishProfile(p calibration.Profile) error {
	return publishJSON(m.client, m.profileTopic, true, profilePayload(p))
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// samplePayload omits basic and lux when they are not finite, since JSON has
// no NaN.
func samplePayload(s sample.Sample) map[string]interface{} {
	payload := map[string]interface{}{
		"at":     s.At.UTC().Format(time.RFC3339Nano),
		"raw":    s.Raw,
		"gain":   s.Gain.String(),
		"status": s.Status.String(),
	}
	if s.Valid() {
		payload["basic"] = s.Basic
		if calc.IsValid(s.Lux) {
			payload["lux"] = s.Lux
		}
	}
	return payload
}

func profilePayload(p calibration.Profile) map[string]interface{} {
	return map[string]interface{}{
		"turn_on_delay_ms":   p.TurnOnDelay.Milliseconds(),
		"rise_time_ms":       p.RiseTime.Milliseconds(),
		"rise_time_equiv_ms": p.RiseTimeEquiv.Milliseconds(),
		"turn_off_delay_ms":  p.TurnOffDelay.Milliseconds(),
		"fall_time_ms":       p.FallTime.Milliseconds(),
		"fall_time_equiv_ms": p.FallTimeEquiv.Milliseconds(),
		"min_exposure_ms":    p.MinExposure().Milliseconds(),
	}
}

func discoveryPayload(cfg config.MQTTConfig, stateTopic string) map[string]interface{} {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("Light meter %s", cfg.ClientID)
	}
	payload := map[string]interface{}{
		keyName:              name,
		keyStateTopic:        stateTopic,
		keyUnitOfMeasurement: unitLux,
		keyDeviceClass:       deviceClassIlluminance,
		keyStateClass:        stateClassMeasurement,
		keyValueTemplate:     valueTemplateLux,
	}
	if cfg.ClientID != "" {
		payload[keyUniqueID] = cfg.ClientID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client publisher, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
