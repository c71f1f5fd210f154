package session

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/storybox/internal/app/playback"
)

// Intent names handled by the host itself rather than the engine.
const (
	IntentToggleGroup = "toggle_group"
	IntentClose       = "close"
	IntentSwitchGroup = "switch_group"
)

// IntentRequest is a transport-neutral intent, decoded from RPC or websocket payloads.
type IntentRequest struct {
	Type      string `mapstructure:"type" json:"type" validate:"required"`
	GroupID   string `mapstructure:"group_id" json:"group_id,omitempty"`
	Direction string `mapstructure:"direction" json:"direction,omitempty" default:"next" validate:"oneof=next previous prev"`
	PageIndex int    `mapstructure:"page_index" json:"page_index,omitempty" validate:"gte=0"`
	URL       string `mapstructure:"url" json:"url,omitempty" validate:"omitempty,url"`
}

// DecodeIntent decodes and validates an intent payload.
// Scalars are weakly typed so that "2" and 2.0 both decode into page_index.
func DecodeIntent(payload map[string]any) (IntentRequest, error) {
	var req IntentRequest
	if len(payload) == 0 {
		return req, errors.New("intent payload is empty")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err != nil {
		return req, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(payload); err != nil {
		return req, errors.Wrap(err, "failed to decode intent")
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Validate applies defaults and validates the request.
func (r *IntentRequest) Validate() error {
	if err := defaults.Set(r); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(r); err != nil {
		return errors.Wrap(err, "intent validation failed")
	}
	switch r.Type {
	case IntentToggleGroup, IntentSwitchGroup:
		if r.GroupID == "" {
			return errors.Newf("intent %s requires group_id", r.Type)
		}
	case playback.IntentTappedLink.String():
		if r.URL == "" {
			return errors.Newf("intent %s requires url", r.Type)
		}
	}
	return nil
}

// Map returns the request as a JSON-like map.
func (r IntentRequest) Map() map[string]any {
	m := map[string]any{"type": r.Type}
	if r.GroupID != "" {
		m["group_id"] = r.GroupID
	}
	if r.Direction != "" {
		m["direction"] = r.Direction
	}
	if r.PageIndex != 0 {
		m["page_index"] = float64(r.PageIndex)
	}
	if r.URL != "" {
		m["url"] = r.URL
	}
	return m
}

// toPlayback converts an engine intent request.
func (r IntentRequest) toPlayback() (playback.Intent, error) {
	t, err := playback.ParseIntentType(r.Type)
	if err != nil {
		return playback.Intent{}, errors.Mark(err, ErrUnknownIntent)
	}
	in := playback.Intent{Type: t, PageIndex: r.PageIndex, URL: r.URL, GroupID: r.GroupID}
	if t == playback.IntentSwitchedGroup {
		d, err := playback.ParseDirection(r.Direction)
		if err != nil {
			return playback.Intent{}, err
		}
		in.Direction = d
	}
	return in, nil
}
