package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mcoot/gamelobby/internal/model"
)

// Request commands
const (
	CmdDevRegister    = "DEV_REGISTER"
	CmdDevLogin       = "DEV_LOGIN"
	CmdGameUpload     = "GAME_UPLOAD"
	CmdGameListMine   = "GAME_LIST_MY"
	CmdGameDelete     = "GAME_DELETE"
	CmdPlayerRegister = "PLAYER_REGISTER"
	CmdPlayerLogin    = "PLAYER_LOGIN"
	CmdLogout         = "LOGOUT"
	CmdStoreList      = "STORE_LIST"
	CmdGameDetail     = "GAME_DETAIL"
	CmdGameDownload   = "GAME_DOWNLOAD"
	CmdPlayerList     = "PLAYER_LIST"
	CmdRoomCreate     = "ROOM_CREATE"
	CmdRoomList       = "ROOM_LIST"
	CmdRoomJoin       = "ROOM_JOIN"
	CmdRoomStart      = "ROOM_START"
	CmdRoomEnd        = "ROOM_END"
	CmdGameRating     = "GAME_RATING"
)

// Push commands sent by the server without a matching request
const (
	PushGameStart       = "GAME_START"
	PushSessionReplaced = "SESSION_REPLACED"
)

// Reply statuses
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request is a client command
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers exactly one request
type Reply struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Payload  any    `json:"payload,omitempty"`
	Token    string `json:"token,omitempty"`
	FileSize int64  `json:"file_size,omitempty"` // raw bytes following this reply
}

// Push is an unsolicited server notification, tagged by command
type Push struct {
	Command string `json:"command"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound is a server frame as seen by a client: either a Reply or a Push
type Inbound struct {
	Command  string          `json:"command,omitempty"`
	Status   string          `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Token    string          `json:"token,omitempty"`
	FileSize int64           `json:"file_size,omitempty"`
}

// IsPush reports whether the frame is a notification rather than a reply
func (in *Inbound) IsPush() bool {
	return in.Command != ""
}

// OK reports whether a reply carries StatusOK
func (in *Inbound) OK() bool {
	return in.Status == StatusOK
}

// DecodePayload unmarshals the payload into v
func (in *Inbound) DecodePayload(v any) error {
	if len(in.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return json.Unmarshal(in.Payload, v)
}

// OKReply builds a successful reply
func OKReply(message string) *Reply {
	return &Reply{Status: StatusOK, Message: message}
}

// PayloadReply builds a successful reply carrying a payload
func PayloadReply(payload any) *Reply {
	return &Reply{Status: StatusOK, Payload: payload}
}

// ErrorReply builds an error reply
func ErrorReply(message string) *Reply {
	return &Reply{Status: StatusError, Message: message}
}

// WriteMessage JSON-encodes v and writes it as one frame
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// DecodeRequest parses a request frame body
func DecodeRequest(body []byte) (*Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return &req, nil
}

// DecodeInbound parses a server frame body
func DecodeInbound(body []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &in, nil
}

// Auth carries the caller-asserted identity. Older clients send it as "token".
type Auth struct {
	Identity string `json:"identity,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Who returns the asserted username
func (a Auth) Who() string {
	if a.Identity != "" {
		return a.Identity
	}
	return a.Token
}

// RoomID accepts both string and numeric JSON room ids
type RoomID string

// UnmarshalJSON implements json.Unmarshaler
func (id *RoomID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*id = RoomID(str)
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("room_id must be a string or integer: %w", err)
	}
	*id = RoomID(strconv.FormatInt(n, 10))
	return nil
}

// Credentials is the register/login payload
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IdentityPayload is used by commands that only need the caller
type IdentityPayload struct {
	Auth
}

// UploadPayload precedes FileSize raw archive bytes
type UploadPayload struct {
	Auth
	GameMeta model.GameMeta `json:"game_meta"`
	FileSize int64          `json:"file_size"`
}

// GamePayload addresses a single game
type GamePayload struct {
	Auth
	GameID model.GameID `json:"game_id"`
}

// RoomPayload addresses a single room
type RoomPayload struct {
	Auth
	RoomID RoomID `json:"room_id"`
}

// RatingPayload submits a review
type RatingPayload struct {
	Auth
	GameID  model.GameID `json:"game_id"`
	Rating  int          `json:"rating"`
	Comment string       `json:"comment"`
}

// RoomCreated is the ROOM_CREATE reply payload
type RoomCreated struct {
	RoomID string `json:"room_id"`
}

// DownloadInfo is the GAME_DOWNLOAD reply payload; the archive follows the reply
type DownloadInfo struct {
	GameID  model.GameID `json:"game_id"`
	Version string       `json:"version"`
}

// GameStart tells room members where the game server is listening.
// The host gets it as the ROOM_START reply payload, everyone else as a push.
type GameStart struct {
	Port    int    `json:"port"`
	Address string `json:"ip"`
}

// SessionReplaced is pushed to a connection whose player session was taken over
type SessionReplaced struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}
