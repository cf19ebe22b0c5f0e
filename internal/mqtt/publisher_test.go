package mqtt

import (
	"testing"
	"time"

	"weather-card/internal/sunrise"
	"weather-card/internal/weather"
	"weather-card/internal/widget"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewPublisher(PublisherConfig{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, p.Publish(&widget.Card{CityName: "臺北市"}))
	assert.NoError(t, p.PublishHomeAssistantDiscovery("臺北市"))
	assert.False(t, p.IsConnected())
	p.Close()
}

func TestCardValues(t *testing.T) {
	rise := time.Date(2019, 10, 8, 5, 46, 0, 0, time.UTC)
	set := time.Date(2019, 10, 8, 17, 53, 0, 0, time.UTC)

	values := CardValues(&widget.Card{
		CityName: "臺北市",
		Moment:   sunrise.Day,
		Theme:    "light",
		Sunrise:  &rise,
		Sunset:   &set,
		Summary:  "晴",
		Weather: &weather.Report{
			Observation: weather.Observation{Temperature: 28, Humidity: 60, WindSpeed: 2},
			Forecast:    []weather.ForecastPeriod{{RainProbability: 30}},
		},
	})

	assert.Equal(t, "day", values["moment"])
	assert.Equal(t, "light", values["theme"])
	assert.Equal(t, "2019-10-08T05:46:00Z", values["sunrise"])
	assert.Equal(t, 28.0, values["temperature"])
	assert.Equal(t, 30, values["rain_probability"])
	assert.Equal(t, "晴", values["summary"])

	bare := CardValues(&widget.Card{Moment: sunrise.Unknown, Theme: "dark"})
	assert.Len(t, bare, 2)
}

func TestDiscoveryConfig(t *testing.T) {
	p := &Publisher{topicPrefix: "weather-card"}

	cfg := p.discoveryConfig("臺北市", discoverySensors[0])
	assert.Equal(t, "weather-card/臺北市/temperature", cfg["state_topic"])
	assert.Equal(t, "°C", cfg["unit_of_measurement"])
	assert.Equal(t, deviceID("臺北市")+"_temperature", cfg["unique_id"])

	assert.Equal(t, deviceID("臺北市"), deviceID("臺北市"))
	assert.NotEqual(t, deviceID("臺北市"), deviceID("高雄市"))
	assert.Regexp(t, `^weather_card_[0-9a-f]{8}$`, deviceID("臺北市"))
}
