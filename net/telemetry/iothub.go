package telemetry

// References:
// https://learn.microsoft.com/azure/iot-hub/iot-hub-devguide-messages-construct
// https://learn.microsoft.com/azure/iot-hub/authenticate-authorize-sas

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackendIoTHub = "iothub"

	iotHubAPIVersion = "2020-03-13"

	DefaultTokenTTL = time.Hour
)

var errInvalidConnectionString = errors.New("invalid IoT Hub device connection string")

// ConnectionString holds the parts of a device connection string
// "HostName=...;DeviceId=...;SharedAccessKey=...".
type ConnectionString struct {
	HostName        string
	DeviceID        string
	SharedAccessKey string
}

func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, errInvalidConnectionString
		}
		switch k {
		case "HostName":
			cs.HostName = v
		case "DeviceId":
			cs.DeviceID = v
		case "SharedAccessKey":
			cs.SharedAccessKey = v
		}
	}
	if cs.HostName == "" || cs.DeviceID == "" || cs.SharedAccessKey == "" {
		return ConnectionString{}, errInvalidConnectionString
	}
	if _, err := base64.StdEncoding.DecodeString(cs.SharedAccessKey); err != nil {
		return ConnectionString{}, errInvalidConnectionString
	}
	return cs, nil
}

func (cs ConnectionString) resourceURI() string {
	return cs.HostName + "/devices/" + url.PathEscape(cs.DeviceID)
}

// SASToken signs resourceURI with the base64 encoded key, valid until
// expiry.
func SASToken(resourceURI, key string, expiry time.Time) (string, error) {
	k, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	sr := url.QueryEscape(resourceURI)
	se := strconv.FormatInt(expiry.Unix(), 10)
	mac := hmac.New(sha256.New, k)
	mac.Write([]byte(sr + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return "SharedAccessSignature sr=" + sr + "&sig=" + url.QueryEscape(sig) + "&se=" + se, nil
}

// IoTHub sends device-to-cloud messages over the IoT Hub HTTPS endpoint.
type IoTHub struct {
	Conn     ConnectionString
	Client   *http.Client
	TokenTTL time.Duration

	// Endpoint overrides "https://<HostName>".
	Endpoint string
}

func NewIoTHub(connectionString string, client *http.Client) (*IoTHub, error) {
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	return &IoTHub{Conn: cs, Client: client, TokenTTL: DefaultTokenTTL}, nil
}

func (h *IoTHub) eventsURL() string {
	base := h.Endpoint
	if base == "" {
		base = "https://" + h.Conn.HostName
	}
	return base + "/devices/" + url.PathEscape(h.Conn.DeviceID) +
		"/messages/events?api-version=" + iotHubAPIVersion
}

func (h *IoTHub) Transmit(ctx context.Context, m Message) error {
	body, err := m.Encode()
	if err != nil {
		return &TransmissionError{Backend: BackendIoTHub, Cause: err}
	}
	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	tok, err := SASToken(h.Conn.resourceURI(), h.Conn.SharedAccessKey, time.Now().Add(ttl))
	if err != nil {
		return &TransmissionError{Backend: BackendIoTHub, Cause: err}
	}
	hdr := http.Header{}
	hdr.Set("Authorization", tok)
	hdr.Set("iothub-messageid", uuid.NewString())
	hdr.Set("iothub-contenttype", "application/json")
	hdr.Set("iothub-contentencoding", "utf-8")
	err = post(ctx, h.Client, h.eventsURL(), body, hdr)
	if err != nil {
		return &TransmissionError{Backend: BackendIoTHub, Cause: err}
	}
	return nil
}
