package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// gameUpload handles GAME_UPLOAD. The archive bytes are always consumed
// before any reply so the stream stays framed even when the upload is refused.
func (d *Dispatcher) gameUpload(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.UploadPayload
	if err := json.Unmarshal(orEmpty(payload), &p); err != nil {
		// Without file_size the raw bytes that follow cannot be skipped
		return Response{}, fatal(fmt.Errorf("%w: upload payload: %v", protocol.ErrMalformed, err))
	}
	if p.FileSize < 0 {
		return Response{}, fatal(fmt.Errorf("%w: negative file_size", protocol.ErrMalformed))
	}
	if d.maxUploadBytes > 0 && p.FileSize > d.maxUploadBytes {
		return Response{}, fatal(fmt.Errorf("%w: upload of %d bytes exceeds %d", protocol.ErrFrameTooLarge, p.FileSize, d.maxUploadBytes))
	}

	archive, err := peer.ReadRaw(p.FileSize)
	if err != nil {
		return Response{}, fatal(err)
	}

	publisher, err := d.authorize(peer, model.ClassPublisher, p.Auth)
	if err != nil {
		return Response{}, err
	}
	if len(archive) == 0 {
		return Response{}, invalidRequest("Archive is empty")
	}

	meta := p.GameMeta
	if meta.GameID == "" {
		if meta.Name == "" {
			return Response{}, invalidRequest("Game name or game_id is required")
		}
		meta.GameID = model.DeriveGameID(meta.Name)
	}
	if !meta.GameID.Valid() {
		return Response{}, fmt.Errorf("%w: %q", model.ErrInvalidGameID, meta.GameID)
	}

	d.uploadMu.Lock()
	defer d.uploadMu.Unlock()

	// Refuse before touching installed files
	if existing, err := d.catalog.GetGame(ctx, meta.GameID); err == nil && existing.Owner != publisher {
		return Response{}, model.ErrNotOwner
	}

	manifest, err := d.packages.Install(meta.GameID, archive)
	if err != nil {
		return Response{}, err
	}
	if meta.Name == "" {
		meta.Name = manifest.Name
	}
	if meta.Version == "" {
		meta.Version = manifest.Version
	}
	if meta.Description == "" {
		meta.Description = manifest.Description
	}

	rec, err := d.catalog.UpsertGame(ctx, publisher, meta)
	if err != nil {
		return Response{}, err
	}

	d.logger.Info("game uploaded",
		slog.String("conn", peer.ID()),
		slog.String("publisher", publisher),
		slog.String("game_id", string(rec.GameID)),
		slog.String("version", rec.CurrentVersion),
		slog.Int("bytes", len(archive)),
	)
	return reply(&protocol.Reply{
		Status:  protocol.StatusOK,
		Message: "Upload successful",
		Payload: rec,
	}), nil
}

// gameListMine handles GAME_LIST_MY
func (d *Dispatcher) gameListMine(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.IdentityPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	publisher, err := d.authorize(peer, model.ClassPublisher, p.Auth)
	if err != nil {
		return Response{}, err
	}
	return reply(protocol.PayloadReply(d.catalog.ListGamesByOwner(ctx, publisher))), nil
}

// gameDelete handles GAME_DELETE. Rooms already created for the game are not affected.
func (d *Dispatcher) gameDelete(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.GamePayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	publisher, err := d.authorize(peer, model.ClassPublisher, p.Auth)
	if err != nil {
		return Response{}, err
	}

	d.uploadMu.Lock()
	defer d.uploadMu.Unlock()

	if err := d.catalog.DeleteGame(ctx, publisher, p.GameID); err != nil {
		return Response{}, err
	}
	if err := d.packages.Remove(p.GameID); err != nil {
		d.logger.Warn("failed to remove game files", slog.String("game_id", string(p.GameID)), slog.String("error", err.Error()))
	}
	return reply(protocol.OKReply("Game deleted")), nil
}

// storeList handles STORE_LIST
func (d *Dispatcher) storeList(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	return reply(protocol.PayloadReply(d.catalog.ListGames(ctx))), nil
}

// gameDetail handles GAME_DETAIL
func (d *Dispatcher) gameDetail(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.GamePayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	rec, err := d.catalog.GetGame(ctx, p.GameID)
	if err != nil {
		return Response{}, err
	}
	return reply(protocol.PayloadReply(rec)), nil
}

// gameDownload handles GAME_DOWNLOAD for players and publishers: the reply
// carries file_size and the archive is streamed raw right after it
func (d *Dispatcher) gameDownload(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.GamePayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	if _, err := d.authorizeAny(peer, p.Auth, model.ClassPlayer, model.ClassPublisher); err != nil {
		return Response{}, err
	}

	rec, err := d.catalog.GetGame(ctx, p.GameID)
	if err != nil {
		return Response{}, err
	}
	archive, err := d.packages.Archive(p.GameID)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Reply: &protocol.Reply{
			Status:   protocol.StatusOK,
			Payload:  protocol.DownloadInfo{GameID: rec.GameID, Version: rec.CurrentVersion},
			FileSize: int64(len(archive)),
		},
		Stream: archive,
	}, nil
}

// gameRating handles GAME_RATING
func (d *Dispatcher) gameRating(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error) {
	var p protocol.RatingPayload
	if err := decode(payload, &p); err != nil {
		return Response{}, err
	}
	player, err := d.authorize(peer, model.ClassPlayer, p.Auth)
	if err != nil {
		return Response{}, err
	}
	if err := d.catalog.AddReview(ctx, p.GameID, player, p.Rating, p.Comment); err != nil {
		return Response{}, err
	}
	return reply(protocol.OKReply("Rating submitted")), nil
}

func orEmpty(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 || string(payload) == "null" {
		return json.RawMessage("{}")
	}
	return payload
}
