package census

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// DefaultPushURL is the public Census event streaming endpoint.
const DefaultPushURL = "wss://push.planetside2.com/streaming"

// Subscription is the request sent once after every (re)connect.
type Subscription struct {
	Service    string   `json:"service"`
	Action     string   `json:"action"`
	Worlds     []string `json:"worlds"`
	EventNames []string `json:"eventNames"`
}

// TrackerSubscription subscribes to facility captures and metagame events on all worlds.
func TrackerSubscription() Subscription {
	return Subscription{
		Service:    "event",
		Action:     "subscribe",
		Worlds:     []string{"all"},
		EventNames: []string{EventFacilityControl, EventMetagame},
	}
}

// Marshal returns the JSON text frame for the subscription.
func (s Subscription) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// StreamURL builds the push endpoint with the environment and service id embedded.
func StreamURL(base, environment, serviceID string) (string, error) {
	if base == "" {
		base = DefaultPushURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("push url scheme %q: want ws or wss", u.Scheme)
	}
	q := u.Query()
	if environment != "" {
		q.Set("environment", environment)
	}
	if serviceID != "" {
		if !strings.HasPrefix(serviceID, "s:") {
			serviceID = "s:" + serviceID
		}
		q.Set("service-id", serviceID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MaskURL hides the service id so the URL can be logged.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if sid := q.Get("service-id"); sid != "" {
		masked := "***"
		if len(sid) > 6 {
			masked = "***" + sid[len(sid)-3:]
		}
		q.Set("service-id", masked)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
