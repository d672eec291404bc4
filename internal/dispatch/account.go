package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
	"github.com/mcoot/gamelobby/internal/services/session"
)

// register handles DEV_REGISTER and PLAYER_REGISTER
func (d *Dispatcher) register(class model.AccountClass) commandFunc {
	return func(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
		var p protocol.Credentials
		if err := decode(payload, &p); err != nil {
			return Response{}, err
		}

		created, err := d.catalog.Register(ctx, class, p.Username, p.Password)
		if err != nil {
			return Response{}, err
		}
		if !created {
			return Response{}, model.ErrUsernameExists
		}
		return reply(protocol.OKReply("Registered successfully")), nil
	}
}

// login handles DEV_LOGIN and PLAYER_LOGIN. The token is the username.
func (d *Dispatcher) login(class model.AccountClass) commandFunc {
	return func(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
		var p protocol.Credentials
		if err := decode(payload, &p); err != nil {
			return Response{}, err
		}
		if !d.catalog.Validate(ctx, class, p.Username, p.Password) {
			return Response{}, model.ErrInvalidCredentials
		}

		if class == model.ClassPlayer {
			// Switching identity on one connection logs the old one out first
			if prev := peer.Identity(model.ClassPlayer); prev != "" && prev != p.Username {
				d.releasePlayer(peer, prev)
			}
			peer.SetIdentity(class, p.Username)
			if replaced := d.sessions.Bind(p.Username, peer); replaced != nil {
				d.evict(replaced, p.Username)
			}
		} else {
			peer.SetIdentity(class, p.Username)
		}

		d.logger.Info("login",
			slog.String("conn", peer.ID()),
			slog.String("class", string(class)),
			slog.String("username", p.Username),
		)
		return reply(&protocol.Reply{
			Status:  protocol.StatusOK,
			Message: "Login successful",
			Token:   p.Username,
		}), nil
	}
}

// evict strips the player identity from a connection whose session was taken
// over by a newer login and tells it so. Its rooms are left alone; they belong
// to the username, which is still online.
func (d *Dispatcher) evict(old session.Handle, username string) {
	if p, ok := old.(Peer); ok {
		p.ClearIdentity(model.ClassPlayer)
	}
	err := old.Push(protocol.PushSessionReplaced, protocol.SessionReplaced{
		Username: username,
		Message:  "Logged in from another connection",
	})
	attrs := []any{slog.String("conn", old.ID()), slog.String("username", username)}
	if err != nil {
		attrs = append(attrs, slog.String("push_error", err.Error()))
	}
	d.logger.Info("session replaced", attrs...)
}

// releasePlayer ends the player session held by peer and runs the disconnect cascade
func (d *Dispatcher) releasePlayer(peer Peer, username string) {
	peer.ClearIdentity(model.ClassPlayer)
	if d.sessions.UnbindIf(username, peer) {
		d.rooms.HandleDisconnect(username)
	}
}

// logout handles LOGOUT for either account class
func (d *Dispatcher) logout(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.IdentityPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	who := p.Who()

	loggedOut := false
	if player := peer.Identity(model.ClassPlayer); player != "" && (who == "" || who == player) {
		d.releasePlayer(peer, player)
		loggedOut = true
	}
	if publisher := peer.Identity(model.ClassPublisher); publisher != "" && (who == "" || who == publisher) {
		peer.ClearIdentity(model.ClassPublisher)
		loggedOut = true
	}
	if !loggedOut {
		return Response{}, model.ErrNotLoggedIn
	}
	return reply(protocol.OKReply("Logged out")), nil
}

// playerList handles PLAYER_LIST
func (d *Dispatcher) playerList(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	return reply(protocol.PayloadReply(d.sessions.ListOnline())), nil
}
