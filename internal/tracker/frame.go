package tracker

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Client events.
const (
	EventJoin     = "join_order"
	EventLeave    = "leave_order"
	EventLocation = "realtime_location"
)

// Server events.
const (
	EventJoined         = "joined"
	EventShareWithUser  = "share_with_user"
	EventUpdateShipment = "updateShipment"
	EventError          = "error"
)

// inbound is a decoded client frame: {"event": ..., "data": {...}}.
type inbound struct {
	Event     string
	OrderID   string
	Latitude  float64
	Longitude float64
	hasLat    bool
	hasLng    bool
}

func decodeInbound(b []byte) (inbound, error) {
	var in inbound
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			v, err := d.Str()
			in.Event = v
			return err
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "orderId":
					in.OrderID, err = d.Str()
				case "latitude":
					in.Latitude, err = d.Float64()
					in.hasLat = err == nil
				case "longitude":
					in.Longitude, err = d.Float64()
					in.hasLng = err == nil
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return in, errors.Wrap(err, "decode frame")
	}
	return in, nil
}

// validate checks the fields each event needs.
func (in inbound) validate() error {
	switch in.Event {
	case EventJoin, EventLeave:
	case EventLocation:
		if !in.hasLat || !in.hasLng {
			return errors.New("latitude and longitude are required")
		}
		if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
			return errors.New("coordinates out of range")
		}
	default:
		return errors.Errorf("unknown event %q", in.Event)
	}
	if in.OrderID == "" {
		return errors.New("orderId is required")
	}
	return nil
}

func encodeFrame(event string, data func(e *jx.Encoder)) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(event)
	e.FieldStart("data")
	e.ObjStart()
	data(&e)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeLocation(event string, lat, lng float64) []byte {
	return encodeFrame(event, func(e *jx.Encoder) {
		e.FieldStart("lat")
		e.Float64(lat)
		e.FieldStart("lng")
		e.Float64(lng)
	})
}

func encodeJoined(orderID string) []byte {
	return encodeFrame(EventJoined, func(e *jx.Encoder) {
		e.FieldStart("orderId")
		e.Str(orderID)
	})
}

func encodeError(msg string) []byte {
	return encodeFrame(EventError, func(e *jx.Encoder) {
		e.FieldStart("message")
		e.Str(msg)
	})
}
