package mqtt

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"weather-card/internal/widget"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	discovered  map[string]bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
		discovered:  map[string]bool{},
	}, nil
}

// CardValues flattens a card into per-topic values.
func CardValues(card *widget.Card) map[string]interface{} {
	values := map[string]interface{}{
		"moment": string(card.Moment),
		"theme":  card.Theme,
	}
	if card.Sunrise != nil && card.Sunset != nil {
		values["sunrise"] = card.Sunrise.Format(time.RFC3339)
		values["sunset"] = card.Sunset.Format(time.RFC3339)
	}
	if card.Weather != nil {
		obs := card.Weather.Observation
		values["temperature"] = obs.Temperature
		values["humidity"] = obs.Humidity
		values["wind_speed"] = obs.WindSpeed
		values["summary"] = card.Summary
		if p := card.Weather.RainProbability(); p >= 0 {
			values["rain_probability"] = p
		}
	}
	return values
}

func (p *Publisher) cityTopic(city, name string) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, city, name)
}

func (p *Publisher) Publish(card *widget.Card) error {
	if !p.enabled {
		return nil
	}

	if !p.discovered[card.CityName] {
		if err := p.PublishHomeAssistantDiscovery(card.CityName); err != nil {
			log.Warn().Err(err).Str("city", card.CityName).Msg("MQTT discovery failed")
		} else {
			p.discovered[card.CityName] = true
		}
	}

	for name, value := range CardValues(card) {
		topic := p.cityTopic(card.CityName, name)
		token := p.client.Publish(topic, 0, false, fmt.Sprintf("%v", value))
		token.Wait()
		if token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}

	cardJSON, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}

	token := p.client.Publish(p.cityTopic(card.CityName, "card"), 0, true, cardJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish card: %w", token.Error())
	}

	return nil
}

type discoverySensor struct {
	Name        string
	ID          string
	Unit        string
	DeviceClass string
}

var discoverySensors = []discoverySensor{
	{"Temperature", "temperature", "°C", "temperature"},
	{"Humidity", "humidity", "%", "humidity"},
	{"Wind Speed", "wind_speed", "m/s", "wind_speed"},
	{"Rain Probability", "rain_probability", "%", ""},
	{"Moment", "moment", "", ""},
	{"Summary", "summary", "", ""},
}

// deviceID is a stable ASCII identifier for a city.
func deviceID(city string) string {
	h := fnv.New32a()
	h.Write([]byte(city))
	return fmt.Sprintf("weather_card_%08x", h.Sum32())
}

func (p *Publisher) discoveryConfig(city string, sensor discoverySensor) map[string]interface{} {
	id := deviceID(city)
	config := map[string]interface{}{
		"name":        fmt.Sprintf("%s %s", city, sensor.Name),
		"unique_id":   fmt.Sprintf("%s_%s", id, sensor.ID),
		"state_topic": p.cityTopic(city, sensor.ID),
		"device": map[string]interface{}{
			"identifiers":  []string{id},
			"name":         fmt.Sprintf("Weather Card %s", city),
			"manufacturer": "weather-card",
		},
	}
	if sensor.Unit != "" {
		config["unit_of_measurement"] = sensor.Unit
	}
	if sensor.DeviceClass != "" {
		config["device_class"] = sensor.DeviceClass
	}
	return config
}

func (p *Publisher) PublishHomeAssistantDiscovery(city string) error {
	if !p.enabled {
		return nil
	}

	for _, sensor := range discoverySensors {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", deviceID(city), sensor.ID)
		payload, err := json.Marshal(p.discoveryConfig(city, sensor))
		if err != nil {
			return err
		}
		token := p.client.Publish(discoveryTopic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
