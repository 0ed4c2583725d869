// Package pokerserver coordinates room requests from connected clients: it
// applies each mutation through the room registry and fans the resulting
// state out to the room's broadcast group.
package pokerserver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrumpoker/internal/poker"
)

const tracerName = "github.com/cory-johannsen/scrumpoker/internal/pokerserver"

// Broadcaster delivers events to groups of connections. Groups are named by
// room id. Implementations must not block on slow receivers.
type Broadcaster interface {
	GroupAdd(connID, group string)
	GroupRemove(connID, group string)
	SendToGroup(group string, ev Event)
	SendToGroupExcept(group, exceptConnID string, ev Event)
}

// Options tunes a Coordinator. The zero value uses the default deck,
// permissive votes and the global tracer provider.
type Options struct {
	Deck           []string
	StrictVotes    bool
	TracerProvider trace.TracerProvider
}

// Coordinator handles room requests. It holds no room state of its own.
type Coordinator struct {
	rooms       *poker.Registry
	out         Broadcaster
	deck        poker.Deck
	strictVotes bool
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewCoordinator creates a Coordinator over rooms that publishes through out.
//
// Precondition: rooms, out and logger must be non-nil.
// Postcondition: Returns a Coordinator or an error if opts.Deck is invalid.
func NewCoordinator(rooms *poker.Registry, out Broadcaster, opts Options, logger *zap.Logger) (*Coordinator, error) {
	labels := opts.Deck
	if len(labels) == 0 {
		labels = poker.DefaultDeckLabels()
	}
	deck, err := poker.NewDeck(labels)
	if err != nil {
		return nil, fmt.Errorf("building deck: %w", err)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Coordinator{
		rooms:       rooms,
		out:         out,
		deck:        deck,
		strictVotes: opts.StrictVotes,
		tracer:      tp.Tracer(tracerName),
		logger:      logger,
	}, nil
}

// Deck returns the cards offered to clients.
func (c *Coordinator) Deck() []poker.Card {
	return c.deck.Cards()
}

// CreateRoom opens a new room seeded with userName bound to connID.
//
// Postcondition: On success the room exists, holds one player and connID is a
// member of its group. On failure no room is left behind.
func (c *Coordinator) CreateRoom(ctx context.Context, connID, userName string) CreateRoomResult {
	_, span := c.tracer.Start(ctx, "pokerserver.CreateRoom")
	defer span.End()

	if !poker.ValidName(userName) {
		recordError(span, poker.ErrInvalidName)
		return CreateRoomResult{ErrorMessage: MsgInvalidName}
	}

	sess := c.rooms.Create()
	roomID := sess.ID()
	span.SetAttributes(attribute.String("room.id", roomID))

	joined, err := sess.Join(userName, connID)
	if err != nil {
		c.rooms.Remove(roomID)
		recordError(span, err)
		c.logger.Warn("seeding room creator", zap.String("room", roomID), zap.Error(err))
		return CreateRoomResult{ErrorMessage: UserMessage(err)}
	}

	c.rooms.Bind(connID, roomID)
	c.out.GroupAdd(connID, roomID)
	c.out.SendToGroup(roomID, updateSession(joined.Snapshot))

	c.logger.Info("room created",
		zap.String("room", roomID),
		zap.String("conn", connID),
		zap.String("user", userName),
	)
	return CreateRoomResult{Success: true, RoomID: roomID}
}

// JoinRoom adds userName to roomID under connID, following the join protocol
// of poker.Session.Join.
//
// Postcondition: Failures are reported only in the returned result. A newly
// added player triggers UserJoined to the other members and UpdateSession to all.
func (c *Coordinator) JoinRoom(ctx context.Context, connID, roomID, userName string) JoinResult {
	_, span := c.tracer.Start(ctx, "pokerserver.JoinRoom",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	sess, ok := c.rooms.Get(roomID)
	if !ok {
		recordError(span, poker.ErrRoomNotFound)
		return JoinResult{ErrorMessage: MsgRoomNotFound}
	}

	joined, err := sess.Join(userName, connID)
	if err != nil {
		recordError(span, err)
		c.logger.Debug("join rejected",
			zap.String("room", roomID),
			zap.String("conn", connID),
			zap.String("user", userName),
			zap.Error(err),
		)
		return JoinResult{ErrorMessage: UserMessage(err)}
	}

	c.rooms.Bind(connID, roomID)
	c.out.GroupAdd(connID, roomID)
	span.SetAttributes(attribute.String("join.kind", joined.Kind.String()))

	switch joined.Kind {
	case poker.JoinAdded:
		c.out.SendToGroupExcept(roomID, connID, userJoined(userName))
		c.out.SendToGroup(roomID, updateSession(joined.Snapshot))
	case poker.JoinCreated:
		c.out.SendToGroup(roomID, updateSession(joined.Snapshot))
	}

	c.logger.Info("player joined",
		zap.String("room", roomID),
		zap.String("conn", connID),
		zap.String("user", userName),
		zap.Stringer("kind", joined.Kind),
	)
	snap := joined.Snapshot
	return JoinResult{Success: true, Session: &snap}
}

// Vote records vote for userName in roomID. An unknown player is a no-op.
//
// Postcondition: Returns an error wrapping poker.ErrRoomNotFound for an unknown
// room, or poker.ErrInvalidVote when strict votes reject the value.
func (c *Coordinator) Vote(ctx context.Context, connID, roomID, userName, vote string) error {
	_, span := c.tracer.Start(ctx, "pokerserver.Vote",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	// An empty vote retracts and is always allowed.
	if c.strictVotes && vote != "" && !c.deck.Contains(vote) {
		err := fmt.Errorf("voting %q in room %s: %w", vote, roomID, poker.ErrInvalidVote)
		recordError(span, err)
		return err
	}

	sess, ok := c.rooms.Get(roomID)
	if !ok {
		err := fmt.Errorf("voting in room %s: %w", roomID, poker.ErrRoomNotFound)
		recordError(span, err)
		return err
	}

	res, err := sess.Vote(userName, vote)
	if err != nil {
		recordError(span, err)
		return err
	}
	if !res.Applied {
		c.logger.Debug("vote for unknown player ignored",
			zap.String("room", roomID),
			zap.String("conn", connID),
			zap.String("user", userName),
		)
		return nil
	}

	c.out.SendToGroup(roomID, voteReceived(res.UserName, vote))
	if res.AutoRevealed {
		span.SetAttributes(attribute.Bool("votes.auto_revealed", true))
		c.out.SendToGroup(roomID, votesRevealed())
	}
	c.out.SendToGroup(roomID, updateSession(res.Snapshot))
	return nil
}

// RevealVotes exposes every vote in roomID.
func (c *Coordinator) RevealVotes(ctx context.Context, roomID string) error {
	_, span := c.tracer.Start(ctx, "pokerserver.RevealVotes",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	sess, ok := c.rooms.Get(roomID)
	if !ok {
		err := fmt.Errorf("revealing room %s: %w", roomID, poker.ErrRoomNotFound)
		recordError(span, err)
		return err
	}
	snap, err := sess.Reveal()
	if err != nil {
		recordError(span, err)
		return err
	}

	c.out.SendToGroup(roomID, votesRevealed())
	c.out.SendToGroup(roomID, updateSession(snap))
	return nil
}

// ResetVotes clears every vote in roomID and hides votes.
func (c *Coordinator) ResetVotes(ctx context.Context, roomID string) error {
	_, span := c.tracer.Start(ctx, "pokerserver.ResetVotes",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	sess, ok := c.rooms.Get(roomID)
	if !ok {
		err := fmt.Errorf("resetting room %s: %w", roomID, poker.ErrRoomNotFound)
		recordError(span, err)
		return err
	}
	snap, err := sess.Reset()
	if err != nil {
		recordError(span, err)
		return err
	}

	c.out.SendToGroup(roomID, votesReset())
	c.out.SendToGroup(roomID, updateSession(snap))
	return nil
}

// CheckRoom reports whether roomID exists. It never mutates.
func (c *Coordinator) CheckRoom(ctx context.Context, roomID string) RoomCheckResult {
	_, span := c.tracer.Start(ctx, "pokerserver.CheckRoom",
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	return RoomCheckResult{Success: true, RoomExists: c.rooms.Exists(roomID)}
}

// Disconnect removes connID from every room it joined.
//
// Precondition: Called exactly once per connection, after its last request.
// Postcondition: connID holds no player and no group membership. Rooms left
// empty are destroyed.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	_, span := c.tracer.Start(ctx, "pokerserver.Disconnect")
	defer span.End()

	for _, roomID := range c.rooms.Release(connID) {
		c.out.GroupRemove(connID, roomID)

		sess, ok := c.rooms.Get(roomID)
		if !ok {
			continue
		}

		left := sess.Leave(connID)
		for _, name := range left.Removed {
			c.out.SendToGroup(roomID, playerLeft(name))
			c.logger.Info("player left",
				zap.String("room", roomID),
				zap.String("conn", connID),
				zap.String("user", name),
			)
		}
		if len(left.Removed) > 0 {
			c.out.SendToGroup(roomID, updateSession(left.Snapshot))
		}

		if left.Empty && c.rooms.RemoveIfEmpty(roomID) {
			span.AddEvent("room destroyed", trace.WithAttributes(attribute.String("room.id", roomID)))
			c.logger.Info("room destroyed", zap.String("room", roomID))
		}
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
