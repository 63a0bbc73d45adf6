package activitypub

import (
	"encoding/json"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/go-playground/validator/v10"
)

// ErrUnsupported is wrapped by Decode for activity types the inbox does not handle.
var ErrUnsupported = errors.NewPlain("unsupported activity")

var validate = validator.New()

type envelope struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// embeddedType returns the "type" of an embedded object, or "" when the
// object is a bare IRI.
func embeddedType(raw json.RawMessage) string {
	var obj struct {
		Type string `json:"type"`
	}
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.Type
}

// Decode selects the activity variant from the top-level type and the type
// of the embedded object, then decodes and validates it. Every error is
// KindMalformed.
func Decode(body []byte) (Activity, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.Malformed("decode", errors.WithStack(err))
	}

	object := embeddedType(env.Object)
	var act Activity
	switch env.Type {
	case "Follow":
		act = &Follow{}
	case "Accept":
		if object == "Follow" {
			act = &Accept{}
		}
	case "Reject":
		if object == "Follow" {
			act = &Reject{}
		}
	case "Undo":
		switch object {
		case "Follow":
			act = &UndoFollow{}
		case "Like":
			act = &UndoLike{}
		case "Announce":
			act = &UndoAnnounce{}
		}
	case "Like":
		act = &Like{}
	case "Announce":
		act = &Announce{}
	case "Create":
		if object == "Note" {
			act = &Create{}
		}
	case "Update":
		switch {
		case isActorType(object):
			act = &Update{}
		case object == "Note":
			act = &UpdateNote{}
		}
	case "Delete":
		act = &Delete{}
	}
	if act == nil {
		return nil, domain.Malformed("decode", errors.WithDetails(ErrUnsupported, "type", env.Type, "object", object))
	}

	if err := json.Unmarshal(body, act); err != nil {
		return nil, domain.Malformed("decode "+act.Kind(), errors.WithStack(err))
	}
	if err := validate.Struct(act); err != nil {
		return nil, domain.Malformed("validate "+act.Kind(), err)
	}
	return act, nil
}
