package client

import (
	"context"
	"fmt"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// Identity returns the username this client logged in as for class
func (c *Client) Identity(class model.AccountClass) string {
	c.identMu.Lock()
	defer c.identMu.Unlock()
	return c.identities[string(class)]
}

func (c *Client) setIdentity(class model.AccountClass, username string) {
	c.identMu.Lock()
	defer c.identMu.Unlock()
	if username == "" {
		delete(c.identities, string(class))
		return
	}
	c.identities[string(class)] = username
}

func (c *Client) auth(class model.AccountClass) protocol.Auth {
	return protocol.Auth{Identity: c.Identity(class)}
}

func registerCommand(class model.AccountClass) string {
	if class == model.ClassPublisher {
		return protocol.CmdDevRegister
	}
	return protocol.CmdPlayerRegister
}

func loginCommand(class model.AccountClass) string {
	if class == model.ClassPublisher {
		return protocol.CmdDevLogin
	}
	return protocol.CmdPlayerLogin
}

// Register creates an account of the given class
func (c *Client) Register(ctx context.Context, class model.AccountClass, username, password string) error {
	_, err := c.Call(ctx, registerCommand(class), protocol.Credentials{Username: username, Password: password}, nil)
	return err
}

// Login authenticates this connection; the returned token is the username
func (c *Client) Login(ctx context.Context, class model.AccountClass, username, password string) (string, error) {
	reply, err := c.Call(ctx, loginCommand(class), protocol.Credentials{Username: username, Password: password}, nil)
	if err != nil {
		return "", err
	}
	c.setIdentity(class, reply.Token)
	return reply.Token, nil
}

// Logout ends every identity held by this connection
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Call(ctx, protocol.CmdLogout, protocol.IdentityPayload{}, nil); err != nil {
		return err
	}
	c.setIdentity(model.ClassPlayer, "")
	c.setIdentity(model.ClassPublisher, "")
	return nil
}

// Upload publishes a game archive as the logged-in publisher
func (c *Client) Upload(ctx context.Context, meta model.GameMeta, archive []byte) (*model.GameRecord, error) {
	reply, err := c.UploadRaw(ctx, protocol.UploadPayload{
		Auth:     c.auth(model.ClassPublisher),
		GameMeta: meta,
	}, archive)
	if err != nil {
		return nil, err
	}
	var rec model.GameRecord
	if err := checkReply(protocol.CmdGameUpload, reply, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MyGames lists the logged-in publisher's games
func (c *Client) MyGames(ctx context.Context) ([]*model.GameRecord, error) {
	var games []*model.GameRecord
	_, err := c.Call(ctx, protocol.CmdGameListMine, protocol.IdentityPayload{Auth: c.auth(model.ClassPublisher)}, &games)
	return games, err
}

// DeleteGame removes one of the logged-in publisher's games
func (c *Client) DeleteGame(ctx context.Context, id model.GameID) error {
	_, err := c.Call(ctx, protocol.CmdGameDelete, protocol.GamePayload{Auth: c.auth(model.ClassPublisher), GameID: id}, nil)
	return err
}

// ListGames returns the whole store
func (c *Client) ListGames(ctx context.Context) ([]*model.GameRecord, error) {
	var games []*model.GameRecord
	_, err := c.Call(ctx, protocol.CmdStoreList, nil, &games)
	return games, err
}

// GameDetail returns one catalog record
func (c *Client) GameDetail(ctx context.Context, id model.GameID) (*model.GameRecord, error) {
	var rec model.GameRecord
	if _, err := c.Call(ctx, protocol.CmdGameDetail, protocol.GamePayload{GameID: id}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Download fetches a game's archive as the logged-in player, or publisher if no player is logged in
func (c *Client) Download(ctx context.Context, id model.GameID) (protocol.DownloadInfo, []byte, error) {
	class := model.ClassPlayer
	if c.Identity(class) == "" {
		class = model.ClassPublisher
	}
	reply, archive, err := c.DownloadRaw(ctx, protocol.GamePayload{Auth: c.auth(class), GameID: id})
	if err != nil {
		return protocol.DownloadInfo{}, nil, err
	}
	var info protocol.DownloadInfo
	if err := checkReply(protocol.CmdGameDownload, reply, &info); err != nil {
		return protocol.DownloadInfo{}, nil, err
	}
	return info, archive, nil
}

// Rate reviews a game as the logged-in player
func (c *Client) Rate(ctx context.Context, id model.GameID, rating int, comment string) error {
	_, err := c.Call(ctx, protocol.CmdGameRating, protocol.RatingPayload{
		Auth:    c.auth(model.ClassPlayer),
		GameID:  id,
		Rating:  rating,
		Comment: comment,
	}, nil)
	return err
}

// OnlinePlayers lists usernames with a live session
func (c *Client) OnlinePlayers(ctx context.Context) ([]string, error) {
	var players []string
	_, err := c.Call(ctx, protocol.CmdPlayerList, nil, &players)
	return players, err
}

// CreateRoom opens a room for a game, hosted by the logged-in player
func (c *Client) CreateRoom(ctx context.Context, id model.GameID) (string, error) {
	var created protocol.RoomCreated
	if _, err := c.Call(ctx, protocol.CmdRoomCreate, protocol.GamePayload{Auth: c.auth(model.ClassPlayer), GameID: id}, &created); err != nil {
		return "", err
	}
	return created.RoomID, nil
}

// ListRooms returns every room
func (c *Client) ListRooms(ctx context.Context) ([]model.RoomSummary, error) {
	var rooms []model.RoomSummary
	_, err := c.Call(ctx, protocol.CmdRoomList, nil, &rooms)
	return rooms, err
}

// JoinRoom joins a waiting room
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.Call(ctx, protocol.CmdRoomJoin, c.roomPayload(roomID), nil)
	return err
}

// StartRoom starts the game server for a room the logged-in player hosts
func (c *Client) StartRoom(ctx context.Context, roomID string) (protocol.GameStart, error) {
	var start protocol.GameStart
	_, err := c.Call(ctx, protocol.CmdRoomStart, c.roomPayload(roomID), &start)
	return start, err
}

// EndRoom ends a room the logged-in player hosts
func (c *Client) EndRoom(ctx context.Context, roomID string) error {
	_, err := c.Call(ctx, protocol.CmdRoomEnd, c.roomPayload(roomID), nil)
	return err
}

// WaitGameStart blocks until the server pushes GAME_START
func (c *Client) WaitGameStart(ctx context.Context) (protocol.GameStart, error) {
	push, err := c.WaitPush(ctx, protocol.PushGameStart)
	if err != nil {
		return protocol.GameStart{}, err
	}
	var start protocol.GameStart
	if err := push.DecodePayload(&start); err != nil {
		return protocol.GameStart{}, fmt.Errorf("decode GAME_START: %w", err)
	}
	return start, nil
}

func (c *Client) roomPayload(roomID string) protocol.RoomPayload {
	return protocol.RoomPayload{Auth: c.auth(model.ClassPlayer), RoomID: protocol.RoomID(roomID)}
}
