package nats

import (
	jsoniter "github.com/json-iterator/go"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"voyager.com/tiltengine/personality"
)

// StatePublisher broadcasts resolved views on personality.<game>.state.<player>.
type StatePublisher struct {
	nc *natsgo.Conn
}

func NewStatePublisher(nc *natsgo.Conn) *StatePublisher {
	return &StatePublisher{nc: nc}
}

func (p *StatePublisher) PublishState(view personality.PersonalityView) error {
	data, err := jsoniter.Marshal(view)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal personality view")
	}
	subject := StateSubject(view.GameID, view.PlayerName)
	if err := p.nc.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "Unable to publish to %s", subject)
	}
	return nil
}
