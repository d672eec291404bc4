package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// roomCreate handles ROOM_CREATE
func (d *Dispatcher) roomCreate(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.GamePayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	player, err := d.authorize(peer, model.ClassPlayer, p.Auth)
	if err != nil {
		return Response{}, err
	}
	if _, err := d.catalog.GetGame(ctx, p.GameID); err != nil {
		return Response{}, err
	}

	room, err := d.rooms.CreateRoom(player, p.GameID)
	if err != nil {
		return Response{}, err
	}
	return reply(&protocol.Reply{
		Status:  protocol.StatusOK,
		Message: "Room created",
		Payload: protocol.RoomCreated{RoomID: room.ID},
	}), nil
}

// roomList handles ROOM_LIST
func (d *Dispatcher) roomList(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	return reply(protocol.PayloadReply(d.rooms.ListRooms())), nil
}

// roomJoin handles ROOM_JOIN
func (d *Dispatcher) roomJoin(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.RoomPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	player, err := d.authorize(peer, model.ClassPlayer, p.Auth)
	if err != nil {
		return Response{}, err
	}
	if err := d.rooms.JoinRoom(string(p.RoomID), player); err != nil {
		return Response{}, err
	}
	return reply(protocol.OKReply("Joined room")), nil
}

// roomStart handles ROOM_START. The host gets {port, ip} in the reply; every
// other participant gets the same payload as a GAME_START push. The room
// manager lock is already released when the pushes go out.
func (d *Dispatcher) roomStart(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.RoomPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	host, err := d.authorize(peer, model.ClassPlayer, p.Auth)
	if err != nil {
		return Response{}, err
	}

	result, err := d.rooms.StartGame(ctx, string(p.RoomID), host)
	if err != nil {
		return Response{}, err
	}
	start := protocol.GameStart{Port: result.Port, Address: result.Address}

	for _, participant := range result.Participants {
		if participant == host {
			continue
		}
		d.notify(participant, start)
	}

	return reply(&protocol.Reply{
		Status:  protocol.StatusOK,
		Message: "Game started",
		Payload: start,
	}), nil
}

// notify pushes GAME_START to one participant, best-effort
func (d *Dispatcher) notify(username string, start protocol.GameStart) {
	h, ok := d.sessions.Lookup(username)
	if !ok {
		d.logger.Info("participant offline, GAME_START not delivered", slog.String("username", username))
		return
	}
	if err := h.Push(protocol.PushGameStart, start); err != nil {
		d.logger.Warn("failed to push GAME_START",
			slog.String("username", username),
			slog.String("conn", h.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// roomEnd handles ROOM_END; only the host may end a room
func (d *Dispatcher) roomEnd(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.RoomPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	host, err := d.authorize(peer, model.ClassPlayer, p.Auth)
	if err != nil {
		return Response{}, err
	}
	if err := d.rooms.EndRoomAs(string(p.RoomID), host); err != nil {
		return Response{}, err
	}
	return reply(protocol.OKReply("Room ended")), nil
}
