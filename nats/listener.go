package nats

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"voyager.com/tiltengine/logging"
	"voyager.com/tiltengine/personality"
)

var natsLogger = log.With().Str("logger_name", "nats::listener").Logger()

const requestTimeout = 5 * time.Second

// Listener feeds pressure events and hand boundaries received over NATS
// into the personality manager.
//
//	personality.<gameID>.event  PressureEvent
//	personality.<gameID>.tick   {"hand_number": N}
//	personality.<gameID>.join   {"player_name": "...", "character": "..."}
//	personality.<gameID>.leave  {"player_name": "..."}
//	personality.<gameID>.end    {}
type Listener struct {
	nc      *natsgo.Conn
	manager *personality.Manager
	subs    []*natsgo.Subscription
}

func NewListener(nc *natsgo.Conn, manager *personality.Manager) *Listener {
	return &Listener{nc: nc, manager: manager}
}

func (l *Listener) Subscribe() error {
	for _, action := range []string{EventAction, TickAction, JoinAction, LeaveAction, EndAction} {
		subject := WildcardSubject(action)
		sub, err := l.nc.Subscribe(subject, l.onMessage)
		if err != nil {
			natsLogger.Error().Msg(fmt.Sprintf("Failed to subscribe to %s", subject))
			l.Unsubscribe()
			return err
		}
		natsLogger.Info().Msg(fmt.Sprintf("Subscribed to %s", subject))
		l.subs = append(l.subs, sub)
	}
	return nil
}

func (l *Listener) Unsubscribe() {
	for _, sub := range l.subs {
		sub.Unsubscribe()
	}
	l.subs = nil
}

func (l *Listener) onMessage(msg *natsgo.Msg) {
	resp := l.Handle(msg.Subject, msg.Data)
	if msg.Reply == "" || l.nc == nil {
		return
	}
	data, err := jsoniter.Marshal(resp)
	if err != nil {
		natsLogger.Error().Err(err).Msg("Unable to marshal response")
		return
	}
	l.nc.Publish(msg.Reply, data)
}

// Handle processes one inbound message and returns the reply.
func (l *Listener) Handle(subject string, data []byte) Response {
	gameID, action, err := ParseSubject(subject)
	if err != nil {
		natsLogger.Warn().Msg(err.Error())
		return failed(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch action {
	case EventAction:
		var event personality.PressureEvent
		if err := jsoniter.Unmarshal(data, &event); err != nil {
			return failed(errors.Wrap(err, "Invalid pressure event"))
		}
		engine, ok := l.manager.GetEngine(gameID)
		if !ok {
			return failed(fmt.Errorf("Game %d has no personality engine", gameID))
		}
		if err := engine.ApplyEvent(event); err != nil {
			return failed(err)
		}
		return Response{Status: StatusOk}

	case TickAction:
		var tick TickMessage
		if err := jsoniter.Unmarshal(data, &tick); err != nil {
			return failed(errors.Wrap(err, "Invalid tick message"))
		}
		engine, ok := l.manager.GetEngine(gameID)
		if !ok {
			return failed(fmt.Errorf("Game %d has no personality engine", gameID))
		}
		results, err := engine.Tick(ctx, tick.HandNumber)
		resp := Response{Status: StatusOk}
		for _, r := range results {
			resp.Views = append(resp.Views, r.View)
		}
		if err != nil {
			natsLogger.Warn().Uint64(logging.GameIDKey, gameID).
				Uint32(logging.HandNumKey, tick.HandNumber).Msg(err.Error())
			resp.Status = StatusDegraded
			resp.Error = err.Error()
		}
		return resp

	case JoinAction:
		var join JoinMessage
		if err := jsoniter.Unmarshal(data, &join); err != nil {
			return failed(errors.Wrap(err, "Invalid join message"))
		}
		view, err := l.manager.Engine(gameID).Join(ctx, join.PlayerName, join.Character)
		if err != nil {
			var unavailable personality.PersistenceUnavailableError
			if errors.As(err, &unavailable) {
				return Response{Status: StatusDegraded, Error: err.Error(), Views: []personality.PersonalityView{view}}
			}
			return failed(err)
		}
		return Response{Status: StatusOk, Views: []personality.PersonalityView{view}}

	case LeaveAction:
		var leave LeaveMessage
		if err := jsoniter.Unmarshal(data, &leave); err != nil {
			return failed(errors.Wrap(err, "Invalid leave message"))
		}
		engine, ok := l.manager.GetEngine(gameID)
		if !ok {
			return failed(fmt.Errorf("Game %d has no personality engine", gameID))
		}
		if err := engine.Leave(ctx, leave.PlayerName); err != nil {
			return failed(err)
		}
		return Response{Status: StatusOk}

	case EndAction:
		if err := l.manager.EndGame(ctx, gameID); err != nil {
			return Response{Status: StatusDegraded, Error: err.Error()}
		}
		return Response{Status: StatusOk}
	}
	return failed(fmt.Errorf("Unknown action %s", action))
}

func failed(err error) Response {
	return Response{Status: StatusFailed, Error: err.Error()}
}
