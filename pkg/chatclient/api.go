package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatcore/internal/domain"
	"chatcore/internal/dto"
	"chatcore/internal/jwk"

	"github.com/google/uuid"
)

// API is the relay surface the client depends on.
type API interface {
	RegisterDeviceKey(ctx context.Context, deviceID string, pub jwk.Key) (dto.DeviceKey, error)
	ListDeviceKeys(ctx context.Context, userID uuid.UUID) ([]dto.DeviceKey, error)

	CreateDirect(ctx context.Context, other uuid.UUID) (dto.Conversation, error)
	CreateGroup(ctx context.Context, name string, members []uuid.UUID) (dto.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (dto.Conversation, error)
	ListConversations(ctx context.Context) ([]dto.ConversationSummary, error)
	ListParticipants(ctx context.Context, id uuid.UUID) ([]dto.Participant, error)
	AddMembers(ctx context.Context, id uuid.UUID, userIDs []uuid.UUID) ([]string, error)
	MarkRead(ctx context.Context, id uuid.UUID) error

	DistributeRoomKeys(ctx context.Context, id uuid.UUID, items []dto.WrappedKeyItem) (int, error)
	MyRoomKeys(ctx context.Context, id uuid.UUID) ([]dto.WrappedRoomKey, error)

	SendMessage(ctx context.Context, id uuid.UUID, req dto.SendMessageRequest) (dto.Message, error)
	ListMessages(ctx context.Context, id uuid.UUID, before *time.Time, limit int) ([]dto.Message, error)
}

// APIError is a non-2xx relay response. It unwraps to the matching domain
// sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatclient: relay returned %d", e.Status)
	}
	return fmt.Sprintf("chatclient: relay returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrMissingRoomKey
	default:
		return nil
	}
}

// HTTPAPI talks to the relay REST endpoints with a bearer token.
type HTTPAPI struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: normalizeBaseURL(baseURL),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient swaps the underlying client.
func (a *HTTPAPI) WithHTTPClient(c *http.Client) *HTTPAPI {
	a.http = c
	return a
}

func (a *HTTPAPI) RegisterDeviceKey(ctx context.Context, deviceID string, pub jwk.Key) (dto.DeviceKey, error) {
	raw, err := json.Marshal(pub.Public())
	if err != nil {
		return dto.DeviceKey{}, err
	}
	var out dto.DeviceKey
	err = a.do(ctx, http.MethodPost, "/v1/devices/keys", dto.RegisterDeviceKeyRequest{DeviceID: deviceID, PublicKey: raw}, &out)
	return out, err
}

func (a *HTTPAPI) ListDeviceKeys(ctx context.Context, userID uuid.UUID) ([]dto.DeviceKey, error) {
	var out dto.DeviceKeyList
	err := a.do(ctx, http.MethodGet, "/v1/users/"+userID.String()+"/device-keys", nil, &out)
	return out.Keys, err
}

func (a *HTTPAPI) CreateDirect(ctx context.Context, other uuid.UUID) (dto.Conversation, error) {
	var out dto.Conversation
	err := a.do(ctx, http.MethodPost, "/v1/conversations/direct", dto.CreateDirectRequest{OtherUserID: other.String()}, &out)
	return out, err
}

func (a *HTTPAPI) CreateGroup(ctx context.Context, name string, members []uuid.UUID) (dto.Conversation, error) {
	var out dto.Conversation
	err := a.do(ctx, http.MethodPost, "/v1/conversations/group", dto.CreateGroupRequest{Name: name, MemberIDs: idStrings(members)}, &out)
	return out, err
}

func (a *HTTPAPI) GetConversation(ctx context.Context, id uuid.UUID) (dto.Conversation, error) {
	var out dto.Conversation
	err := a.do(ctx, http.MethodGet, "/v1/conversations/"+id.String(), nil, &out)
	return out, err
}

func (a *HTTPAPI) ListConversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	var out dto.ConversationList
	err := a.do(ctx, http.MethodGet, "/v1/conversations", nil, &out)
	return out.Conversations, err
}

func (a *HTTPAPI) ListParticipants(ctx context.Context, id uuid.UUID) ([]dto.Participant, error) {
	var out dto.ParticipantList
	err := a.do(ctx, http.MethodGet, "/v1/conversations/"+id.String()+"/participants", nil, &out)
	return out.Participants, err
}

func (a *HTTPAPI) AddMembers(ctx context.Context, id uuid.UUID, userIDs []uuid.UUID) ([]string, error) {
	var out dto.AddMembersResponse
	err := a.do(ctx, http.MethodPost, "/v1/conversations/"+id.String()+"/members", dto.AddMembersRequest{UserIDs: idStrings(userIDs)}, &out)
	return out.Added, err
}

func (a *HTTPAPI) MarkRead(ctx context.Context, id uuid.UUID) error {
	return a.do(ctx, http.MethodPost, "/v1/conversations/"+id.String()+"/read", nil, nil)
}

func (a *HTTPAPI) DistributeRoomKeys(ctx context.Context, id uuid.UUID, items []dto.WrappedKeyItem) (int, error) {
	var out dto.DistributeRoomKeysResponse
	err := a.do(ctx, http.MethodPost, "/v1/conversations/"+id.String()+"/room-keys", dto.DistributeRoomKeysRequest{Items: items}, &out)
	return out.Written, err
}

func (a *HTTPAPI) MyRoomKeys(ctx context.Context, id uuid.UUID) ([]dto.WrappedRoomKey, error) {
	var out dto.WrappedRoomKeyList
	err := a.do(ctx, http.MethodGet, "/v1/conversations/"+id.String()+"/room-keys/mine", nil, &out)
	return out.Keys, err
}

func (a *HTTPAPI) SendMessage(ctx context.Context, id uuid.UUID, req dto.SendMessageRequest) (dto.Message, error) {
	var out dto.Message
	err := a.do(ctx, http.MethodPost, "/v1/conversations/"+id.String()+"/messages", req, &out)
	return out, err
}

func (a *HTTPAPI) ListMessages(ctx context.Context, id uuid.UUID, before *time.Time, limit int) ([]dto.Message, error) {
	q := url.Values{}
	if before != nil {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/conversations/" + id.String() + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out dto.MessageList
	err := a.do(ctx, http.MethodGet, path, nil, &out)
	return out.Messages, err
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb dto.ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Message != "" {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("chatclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
