package messaging

import (
	"context"
	"regexp"
	"strings"

	"trace-rescue/internal/util/timezone"
)

// Publisher is the part of the MQTT client the transport needs.
type Publisher interface {
	PublishMessage(topic string, payload interface{}, retain bool) error
}

type mqttMessage struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Person    string `json:"person"`
	Location  string `json:"location"`
	Timestamp string `json:"timestamp"`
	Snapshot  string `json:"snapshot,omitempty"`
}

var topicUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// MQTTTransport publishes each message to <base>/<recipient>, where a
// messaging bridge subscribed to that topic forwards it to the phone.
type MQTTTransport struct {
	publisher Publisher
	base      string
}

// NewMQTTTransport creates a transport publishing under base.
func NewMQTTTransport(p Publisher, base string) *MQTTTransport {
	return &MQTTTransport{publisher: p, base: strings.TrimSuffix(base, "/")}
}

func (t *MQTTTransport) Name() string { return "mqtt" }

// Topic returns the topic used for recipient.
func (t *MQTTTransport) Topic(recipient string) string {
	return t.base + "/" + strings.Trim(topicUnsafe.ReplaceAllString(recipient, "_"), "_")
}

func (t *MQTTTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.publisher.PublishMessage(t.Topic(msg.Recipient), mqttMessage{
		Recipient: msg.Recipient,
		Text:      msg.Text,
		Person:    msg.Alert.PersonName,
		Location:  msg.Alert.Location,
		Timestamp: timezone.RFC3339(msg.Alert.Timestamp),
		Snapshot:  msg.Alert.SnapshotPath,
	}, false)
}
