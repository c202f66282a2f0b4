package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trace-rescue/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// ErrNotConnected wird zurückgegeben, wenn ohne Brokerverbindung veröffentlicht wird.
var ErrNotConnected = errors.New("MQTT client is not connected")

const publishTimeout = 10 * time.Second

// Client ist der MQTT-Client, über den Alarme veröffentlicht werden.
type Client struct {
	config      config.MQTTConfig
	statusTopic string
	client      mqtt.Client

	mu          sync.RWMutex
	isConnected bool
}

// NewClient erstellt einen neuen MQTT-Client. statusTopic erhält "online"
// bzw. als Last Will "offline".
func NewClient(cfg config.MQTTConfig, statusTopic string) *Client {
	return &Client{
		config:      cfg,
		statusTopic: statusTopic,
	}
}

// Start verbindet den Client mit dem Broker.
func (c *Client) Start() error {
	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	if c.statusTopic != "" {
		opts.SetWill(c.statusTopic, "offline", 1, true)
	}

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectTimeout(publishTimeout)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop meldet den Client ab und trennt die Verbindung.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		if c.statusTopic != "" {
			if err := c.PublishMessage(c.statusTopic, "offline", true); err != nil {
				log.Debugf("Failed to publish offline status: %v", err)
			}
		}
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
		c.setConnected(false)
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.isConnected && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	c.setConnected(true)

	if c.statusTopic != "" {
		token := client.Publish(c.statusTopic, 1, true, "online")
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			log.Warnf("Failed to publish online status: %v", token.Error())
		}
	}
}

func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
	c.setConnected(false)
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic. Strukturen
// werden als JSON kodiert.
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	var payloadBytes []byte
	switch p := payload.(type) {
	case string:
		payloadBytes = []byte(p)
	case []byte:
		payloadBytes = p
	default:
		var err error
		payloadBytes, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}
