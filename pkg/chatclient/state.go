package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chatcore/internal/cryptocore"
	"chatcore/internal/jwk"

	"github.com/google/uuid"
)

// State is the on-disk record of one device: its private key, the relay it
// talks to and, once registered, the device key id the relay assigned.
type State struct {
	path string
	file stateFile
	keys *cryptocore.DeviceKeyPair
}

type stateFile struct {
	UserID      string  `json:"user_id"`
	DeviceID    string  `json:"device_id"`
	DeviceKeyID string  `json:"device_key_id,omitempty"`
	BaseURL     string  `json:"base_url"`
	Device      jwk.Key `json:"device"`
}

// NewState generates a fresh device key pair.
func NewState(userID uuid.UUID, deviceID, baseURL string) (*State, error) {
	keys, err := cryptocore.GenerateDeviceKeyPair()
	if err != nil {
		return nil, err
	}
	return &State{
		file: stateFile{
			UserID:   userID.String(),
			DeviceID: deviceID,
			BaseURL:  normalizeBaseURL(baseURL),
			Device:   keys.PrivateJWK(),
		},
		keys: keys,
	}, nil
}

func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := LoadStateFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

func LoadStateFromJSON(data []byte) (*State, error) {
	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Device.D == "" {
		return nil, errors.New("state file missing device private key")
	}
	if _, err := uuid.Parse(file.UserID); err != nil {
		return nil, fmt.Errorf("state file user_id: %w", err)
	}
	keys, err := cryptocore.ImportDeviceKeyPair(file.Device)
	if err != nil {
		return nil, err
	}
	return &State{file: file, keys: keys}, nil
}

func (s *State) Marshal() ([]byte, error) {
	return json.MarshalIndent(s.file, "", "  ")
}

// Save writes the state with owner-only permissions.
func (s *State) Save() error {
	if s.path == "" {
		return errors.New("state path not set")
	}
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *State) SetPath(path string) { s.path = path }

func (s *State) UserID() uuid.UUID {
	id, _ := uuid.Parse(s.file.UserID)
	return id
}

func (s *State) DeviceID() string { return s.file.DeviceID }

func (s *State) BaseURL() string { return s.file.BaseURL }

func (s *State) Keys() *cryptocore.DeviceKeyPair { return s.keys }

// SetIdentity records the registration result.
func (s *State) SetIdentity(id Identity) { s.file.DeviceKeyID = id.DeviceKeyID.String() }

// Identity returns the registered device identity. It fails until the device
// has been registered.
func (s *State) Identity() (Identity, error) {
	if s.file.DeviceKeyID == "" {
		return Identity{}, errors.New("device not registered yet")
	}
	deviceKeyID, err := uuid.Parse(s.file.DeviceKeyID)
	if err != nil {
		return Identity{}, fmt.Errorf("state file device_key_id: %w", err)
	}
	return Identity{UserID: s.UserID(), DeviceKeyID: deviceKeyID, Keys: s.keys}, nil
}
