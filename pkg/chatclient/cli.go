package chatclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatcore/internal/authz"
	"chatcore/internal/cryptocore"
	"chatcore/internal/dto"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	defaultStatePath = "chatctl-state.json"
	defaultBaseURL   = "http://localhost:8085"
	requestTimeout   = 15 * time.Second
)

// RunCLI executes one chatctl command. Output goes to stdout, failures are
// reported on stderr and returned.
func RunCLI(prog string, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return UsageError{Program: prog}
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	cmd := args[0]
	rest := args[1:]
	cli := &cli{out: stdout, errOut: stderr}
	var err error
	switch cmd {
	case "keygen":
		err = cli.runKeygen(rest)
	case "register":
		err = cli.runRegister(rest)
	case "token":
		err = cli.runToken(rest)
	case "fingerprint":
		err = cli.runFingerprint(rest)
	case "conversations":
		err = cli.runConversations(rest)
	case "direct":
		err = cli.runDirect(rest)
	case "group":
		err = cli.runGroup(rest)
	case "add":
		err = cli.runAdd(rest)
	case "share":
		err = cli.runShare(rest)
	case "rotate":
		err = cli.runRotate(rest)
	case "send":
		err = cli.runSend(rest)
	case "history":
		err = cli.runHistory(rest)
	case "listen":
		err = cli.runListen(rest)
	default:
		return UsageError{Program: prog}
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

type UsageError struct {
	Program string
}

func (u UsageError) Error() string {
	if u.Program == "" {
		u.Program = "chatctl"
	}
	return fmt.Sprintf("Usage: %s <command> [options]", u.Program)
}

func (UsageError) UsageLines() []string {
	return []string{
		"Commands:",
		"  keygen         Generate a device key pair and write the state file",
		"  register       Publish the device public key to the relay",
		"  token          Issue a development token signed with AUTH_HMAC_SECRET",
		"  fingerprint    Print the device safety code and a QR code of it",
		"  conversations  List conversations with unread counts",
		"  direct         Open the direct conversation with another user",
		"  group          Create a group conversation",
		"  add            Add members to a group",
		"  share          Share the current room key with users",
		"  rotate         Replace the room key of a conversation",
		"  send           Encrypt and send a message",
		"  history        Fetch and decrypt message history",
		"  listen         Stream and decrypt realtime events",
	}
}

type cli struct {
	out    io.Writer
	errOut io.Writer
}

// session is a loaded state file plus an authenticated client.
type session struct {
	state  *State
	client *Client
	api    *HTTPAPI
	token  string
}

func newFlagSet(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", getenv("CHATCTL_STATE_PATH", defaultStatePath), "state file path")
	token := fs.String("token", os.Getenv("CHATCTL_TOKEN"), "bearer token")
	return fs, statePath, token
}

func openSession(statePath, token string) (*session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("a bearer token is required (-token or CHATCTL_TOKEN)")
	}
	state, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}
	id, err := state.Identity()
	if err != nil {
		return nil, err
	}
	api := NewHTTPAPI(state.BaseURL(), token)
	return &session{state: state, client: New(api, id), api: api, token: token}, nil
}

func (c *cli) runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", getenv("CHATCTL_STATE_PATH", defaultStatePath), "state file path")
	baseURL := fs.String("url", getenv("CHATCTL_URL", defaultBaseURL), "relay base URL")
	userID := fs.String("user", "", "user UUID the device belongs to")
	deviceID := fs.String("device", "", "device name (at least 8 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid, err := uuid.Parse(*userID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	if _, err := os.Stat(*statePath); err == nil {
		return fmt.Errorf("state file already exists at %s", *statePath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	name := *deviceID
	if name == "" {
		host, _ := os.Hostname()
		name = "chatctl-" + host
	}
	state, err := NewState(uid, name, *baseURL)
	if err != nil {
		return err
	}
	state.SetPath(*statePath)
	if err := state.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "device key written to %s\n", *statePath)
	fmt.Fprintf(c.out, "fingerprint: %s\n", cryptocore.Fingerprint(state.Keys().Public))
	return nil
}

// runRegister publishes the state file's public key. Registering again is
// idempotent and refreshes the key.
func (c *cli) runRegister(args []string) error {
	fs, statePath, token := newFlagSet("register")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*token) == "" {
		return errors.New("a bearer token is required (-token or CHATCTL_TOKEN)")
	}
	state, err := LoadState(*statePath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	id, err := RegisterDevice(ctx, NewHTTPAPI(state.BaseURL(), *token), state.UserID(), state.DeviceID(), state.Keys())
	if err != nil {
		return err
	}
	state.SetIdentity(id)
	if err := state.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "device registered: user=%s device=%s key=%s\n", id.UserID, state.DeviceID(), id.DeviceKeyID)
	return nil
}

func (c *cli) runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	secret := fs.String("secret", os.Getenv("AUTH_HMAC_SECRET"), "HS256 signing secret")
	issuer := fs.String("issuer", os.Getenv("AUTH_ISSUER"), "token issuer")
	userID := fs.String("user", "", "user UUID (random when empty)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	uid := uuid.New()
	if *userID != "" {
		var err error
		if uid, err = uuid.Parse(*userID); err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}
	signer, err := authz.NewSigner(*secret, *issuer)
	if err != nil {
		return err
	}
	tok, err := signer.Issue(uid, *ttl, nil)
	if err != nil {
		return err
	}
	return printJSON(c.out, map[string]string{"user_id": uid.String(), "token": tok})
}

func (c *cli) runFingerprint(args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", getenv("CHATCTL_STATE_PATH", defaultStatePath), "state file path")
	pngPath := fs.String("png", "", "also write the QR code as a PNG file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	state, err := LoadState(*statePath)
	if err != nil {
		return err
	}
	code := cryptocore.Fingerprint(state.Keys().Public)
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, code)
	fmt.Fprint(c.out, qr.ToSmallString(false))
	if *pngPath != "" {
		if err := qrcode.WriteFile(code, qrcode.Medium, 256, *pngPath); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) runConversations(args []string) error {
	fs, statePath, token := newFlagSet("conversations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range list {
		name := conv.Type
		if conv.Name != nil {
			name = *conv.Name
		}
		fmt.Fprintf(c.out, "%s  %-6s  %-20s  unread=%d\n", conv.ID, conv.Type, name, conv.UnreadCount)
	}
	return nil
}

func (c *cli) runDirect(args []string) error {
	fs, statePath, token := newFlagSet("direct")
	with := fs.String("with", "", "other user UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	other, err := uuid.Parse(*with)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	conv, err := s.api.CreateDirect(ctx, other)
	if err != nil {
		return err
	}
	return printJSON(c.out, conv)
}

func (c *cli) runGroup(args []string) error {
	fs, statePath, token := newFlagSet("group")
	name := fs.String("name", "", "group name")
	members := fs.String("members", "", "comma separated member UUIDs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseUUIDList(*members)
	if err != nil {
		return err
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	conv, err := s.api.CreateGroup(ctx, *name, ids)
	if err != nil {
		return err
	}
	return printJSON(c.out, conv)
}

func (c *cli) runAdd(args []string) error {
	fs, statePath, token := newFlagSet("add")
	convStr := fs.String("conv", "", "conversation UUID")
	users := fs.String("users", "", "comma separated user UUIDs")
	share := fs.Bool("share", true, "share the room key with the new members")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(*convStr)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	ids, err := parseUUIDList(*users)
	if err != nil {
		return err
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	added, err := s.api.AddMembers(ctx, convID, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %d member(s)\n", len(added))
	if !*share || len(added) == 0 {
		return nil
	}
	newIDs, err := parseUUIDList(strings.Join(added, ","))
	if err != nil {
		return err
	}
	n, err := s.client.ShareRoomKey(ctx, convID, newIDs...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "shared room key with %d device(s)\n", n)
	return nil
}

func (c *cli) runShare(args []string) error {
	fs, statePath, token := newFlagSet("share")
	convStr := fs.String("conv", "", "conversation UUID")
	users := fs.String("users", "", "comma separated user UUIDs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(*convStr)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	ids, err := parseUUIDList(*users)
	if err != nil {
		return err
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	n, err := s.client.ShareRoomKey(ctx, convID, ids...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "shared room key with %d device(s)\n", n)
	return nil
}

func (c *cli) runRotate(args []string) error {
	fs, statePath, token := newFlagSet("rotate")
	convStr := fs.String("conv", "", "conversation UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(*convStr)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := s.client.RotateRoomKey(ctx, convID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "room key rotated")
	return nil
}

func (c *cli) runSend(args []string) error {
	fs, statePath, token := newFlagSet("send")
	convStr := fs.String("conv", "", "conversation UUID")
	message := fs.String("message", "", "message text (if empty, read stdin)")
	fileURL := fs.String("file", "", "send a file reference instead of text")
	mime := fs.String("mime", "", "file mime type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(*convStr)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	var p Payload
	if *fileURL != "" {
		p = FilePayload(FileRef{URL: *fileURL, MimeType: *mime}, *message)
	} else {
		text, err := resolveText(*message)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("message must not be empty")
		}
		p = TextPayload(text)
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	msg, err := s.client.Send(ctx, convID, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "message sent: %s\n", msg.ID)
	return nil
}

func (c *cli) runHistory(args []string) error {
	fs, statePath, token := newFlagSet("history")
	convStr := fs.String("conv", "", "conversation UUID")
	limit := fs.Int("limit", 50, "page size")
	before := fs.String("before", "", "RFC3339 cursor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(*convStr)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	var cursor *time.Time
	if *before != "" {
		t, err := time.Parse(time.RFC3339Nano, *before)
		if err != nil {
			return fmt.Errorf("invalid before cursor: %w", err)
		}
		cursor = &t
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	entries, err := s.client.DecryptHistory(ctx, convID, cursor, *limit)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(c.out)
	for _, e := range entries {
		writeMessage(w, e.Message, e.Payload, e.Err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return s.api.MarkRead(ctx, convID)
}

func (c *cli) runListen(args []string) error {
	fs, statePath, token := newFlagSet("listen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(*statePath, *token)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := Dial(ctx, s.state.BaseURL(), s.token)
	if err != nil {
		return err
	}
	defer func() {
		_ = stream.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	w := bufio.NewWriter(c.out)
	for env := range stream.Events() {
		c.handleEvent(ctx, s, w, env)
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}

func (c *cli) handleEvent(ctx context.Context, s *session, w io.Writer, env dto.Envelope) {
	switch env.Type {
	case "message", "message_updated":
		var m dto.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			fmt.Fprintf(c.errOut, "invalid %s event: %v\n", env.Type, err)
			return
		}
		convID, err := uuid.Parse(m.ConversationID)
		if err != nil {
			fmt.Fprintf(c.errOut, "invalid conversation id %q\n", m.ConversationID)
			return
		}
		p, err := c.decryptLive(ctx, s, convID, m)
		writeMessage(w, m, p, err)
	case "message_deleted":
		var d dto.MessageDeleted
		_ = json.Unmarshal(env.Data, &d)
		fmt.Fprintf(w, "[deleted] %s in %s\n", d.ID, d.ConversationID)
	case "typing":
		var t dto.TypingEvent
		_ = json.Unmarshal(env.Data, &t)
		if t.IsTyping {
			fmt.Fprintf(w, "[typing] %s in %s\n", t.UserID, t.ConversationID)
		}
	case "conversation_joined":
		var conv dto.Conversation
		_ = json.Unmarshal(env.Data, &conv)
		fmt.Fprintf(w, "[joined] %s (%s)\n", conv.ID, conv.Type)
	case "call_incoming":
		var call dto.CallIncomingEvent
		_ = json.Unmarshal(env.Data, &call)
		fmt.Fprintf(w, "[call] %s %s call from %s\n", call.CallID, call.CallType, call.FromUserID)
	case "call_response":
		var resp dto.CallResponseEvent
		_ = json.Unmarshal(env.Data, &resp)
		fmt.Fprintf(w, "[call] %s answered by %s accepted=%t\n", resp.CallID, resp.FromUserID, resp.Accepted)
	}
}

// decryptLive refetches room keys once when a live message does not open
// with the cached ones, which covers a rotation by another member.
func (c *cli) decryptLive(ctx context.Context, s *session, convID uuid.UUID, m dto.Message) (Payload, error) {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if _, err := s.client.EnsureRoomKey(rctx, convID); err != nil {
		return Payload{}, err
	}
	p, err := s.client.Decrypt(convID, m)
	if err == nil {
		return p, nil
	}
	s.client.Forget(convID)
	if _, err := s.client.EnsureRoomKey(rctx, convID); err != nil {
		return Payload{}, err
	}
	return s.client.Decrypt(convID, m)
}

func writeMessage(w io.Writer, m dto.Message, p Payload, err error) {
	ts := m.CreatedAt.Format(time.RFC3339)
	switch {
	case err != nil:
		fmt.Fprintf(w, "[%s] %s: <undecryptable: %v>\n", ts, m.SenderID, err)
	default:
		edited := ""
		if m.EditedAt != nil {
			edited = " (edited)"
		}
		fmt.Fprintf(w, "[%s] %s: %s%s\n", ts, m.SenderID, p.Preview(), edited)
	}
}

func parseUUIDList(raw string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func resolveText(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
