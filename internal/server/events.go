package server

import (
	"encoding/json"

	"github.com/rennlabs/pitwall/internal/engineer"
)

// Client → server events.
const (
	evEngineerStart     = "engineer:start"
	evEngineerStop      = "engineer:stop"
	evEngineerVerbosity = "engineer:verbosity"
	evDriverAudio       = "engineer:audio:in"
	evDriverAudioEnd    = "engineer:audio:end"
	evConfigSetAPIKey   = "config:setApiKey"
	evConfigTestKey     = "config:testKey"
	evConfigDeleteKey   = "config:deleteKey"
	evConfigSetEnabled  = "config:setEngineerEnabled"
)

// Server → client events.
const (
	evTelemetry      = "telemetry"
	evSnapshot       = "telemetry:snapshot"
	evModelAudio     = "engineer:audio:out"
	evEngineerText   = "engineer:text"
	evEngineerStatus = "engineer:status"
	evEngineerError  = "engineer:error"
	evConfigState    = "config:state"
	evAck            = "ack"
)

// envelope is the wire shape of every WebSocket message in both directions.
// ID is set by the client on requests that expect an acknowledgement and
// echoed back on the matching ack.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// encodeEvent marshals one envelope. A nil data means an event with no
// payload, such as a bare ack.
func encodeEvent(event string, data any, id string) ([]byte, error) {
	env := envelope{Event: event, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// startRequest is the engineer:start payload. All fields are optional: an
// empty request starts the configured default personality.
type startRequest struct {
	PersonalityID string                `json:"personalityId"`
	Custom        *engineer.Personality `json:"customPersonality"`
	Instructions  string                `json:"instructions"`
	Verbosity     int                   `json:"verbosity"`
}

// verbosityRequest is the engineer:verbosity payload.
type verbosityRequest struct {
	Level int `json:"level"`
}

// driverAudio is the engineer:audio:in payload. Data is base64 16-bit PCM.
// SampleRate and Channels describe the capture format; zero values mean the
// audio is already 16 kHz mono, which is what the dashboard normally sends.
type driverAudio struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// decodeDriverAudio accepts both payload spellings: a bare base64 string, or
// an object carrying the capture format alongside the data.
func decodeDriverAudio(raw json.RawMessage) (driverAudio, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var b64 string
		if err := json.Unmarshal(raw, &b64); err != nil {
			return driverAudio{}, err
		}
		return driverAudio{Data: b64}, nil
	}
	var p driverAudio
	err := json.Unmarshal(raw, &p)
	return p, err
}

// setAPIKeyRequest is the config:setApiKey payload.
type setAPIKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// setEnabledRequest is the config:setEngineerEnabled payload.
type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// keyAck answers config:setApiKey and config:testKey. Error carries the
// validation failure category when Valid is false.
type keyAck struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// errorEvent is the engineer:error payload.
type errorEvent struct {
	Message string `json:"message"`
}
