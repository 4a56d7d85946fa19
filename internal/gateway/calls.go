package gateway

import (
	"encoding/json"

	"go.uber.org/zap"
)

// callRelayMap pairs inbound signaling commands with the event name the
// other peers receive. The gateway never interprets the SDP/ICE payload,
// it only moves it between browser tabs.
var callRelayMap = map[string]string{
	"call_user":     "call_made",
	"answer_call":   "call_answered",
	"reject_call":   "call_rejected",
	"ice_candidate": "ice_candidate_received",
	"end_call":      "call_ended",
}

type callOffer struct {
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	IsVideo    bool            `json:"isVideo"`
}

type callAnswer struct {
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to"`
}

// relayCall forwards one signaling frame to every client except the
// sender, reshaping offer and answer payloads the way peers expect.
func (g *Gateway) relayCall(c *Client, env Envelope) {
	out, ok := callRelayMap[env.Event]
	if !ok {
		return
	}

	switch env.Event {
	case "call_user":
		var offer callOffer
		if err := json.Unmarshal(env.Data, &offer); err != nil {
			g.logger.Warn("malformed call offer", zap.String("client_id", c.id), zap.Error(err))
			return
		}
		g.hub.BroadcastExcept(c.id, out, map[string]any{
			"signal":  offer.SignalData,
			"from":    offer.From,
			"isVideo": offer.IsVideo,
		})
	case "answer_call":
		var answer callAnswer
		if err := json.Unmarshal(env.Data, &answer); err != nil {
			g.logger.Warn("malformed call answer", zap.String("client_id", c.id), zap.Error(err))
			return
		}
		g.hub.BroadcastExcept(c.id, out, map[string]any{
			"signal": answer.Signal,
			"to":     answer.To,
		})
	case "end_call":
		g.hub.BroadcastExcept(c.id, out, nil)
	default:
		// reject_call and ice_candidate pass through untouched.
		g.hub.BroadcastExcept(c.id, out, env.Data)
	}
}
