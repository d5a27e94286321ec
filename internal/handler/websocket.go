package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"mapchat/internal/domain"
	"mapchat/internal/hub"
	"mapchat/internal/scene"
	"mapchat/internal/sim"
	"mapchat/internal/store"
	"mapchat/internal/viewport"
)

type WSHandler struct {
	hub    *hub.Hub
	store  *store.Store
	engine *sim.Engine
	logger *slog.Logger

	tileZoom    int
	flyZoom     float64
	flyDuration time.Duration
}

func NewWSHandler(h *hub.Hub, s *store.Store, engine *sim.Engine, tileZoom int, flyZoom float64, flyDuration time.Duration, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:         h,
		store:       s,
		engine:      engine,
		logger:      logger,
		tileZoom:    tileZoom,
		flyZoom:     flyZoom,
		flyDuration: flyDuration,
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TilesPayload struct {
	TileIDs []string `json:"tileIds"`
}

type ViewportPayload struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

type SelectPayload struct {
	VenueID string `json:"venueId"`
}

type SelectAgentPayload struct {
	AgentID string `json:"agentId"`
}

type HoverPayload struct {
	VenueID       string `json:"venueId"`
	ViewportWidth int    `json:"viewportWidth"`
}

type ToggleLayerPayload struct {
	Name string `json:"name"`
}

type SnapshotMessage struct {
	Type    string         `json:"type"`
	Payload scene.Snapshot `json:"payload"`
}

type CameraMessage struct {
	Type    string              `json:"type"`
	Payload []viewport.Keyframe `json:"payload"`
}

type SelectedMessage struct {
	Type    string        `json:"type"`
	Payload *domain.Venue `json:"payload"`
}

type LayerMessage struct {
	Type    string       `json:"type"`
	Payload LayerPayload `json:"payload"`
}

type LayerPayload struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

type PongMessage struct {
	Type string `json:"type"`
}

// session is the per-connection view state: one camera, one selection
// state machine. The compositor's select callback feeds the camera
// fly-to, never the other way around.
type session struct {
	client     *hub.Client
	controller *viewport.Controller
	composer   *scene.Compositor
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	sess := &session{
		client:     client,
		controller: viewport.NewController(viewport.Camera{Zoom: h.flyZoom}, h.flyZoom, h.flyDuration),
	}
	sess.composer = scene.NewCompositor(func(v *domain.Venue) {
		frames := sess.controller.FlyTo(v.Lat, v.Lng, nil)
		h.send(client, CameraMessage{Type: "camera", Payload: frames})
		h.send(client, SelectedMessage{Type: "selected", Payload: v})
	})

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, sess)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) {
	client := sess.client
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload TilesPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.TileIDs) > 0 {
				h.hub.Subscribe(client, payload.TileIDs)
				h.sendSnapshot(sess, payload.TileIDs)
			}

		case "unsubscribe":
			var payload TilesPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.TileIDs) > 0 {
				h.hub.Unsubscribe(client, payload.TileIDs)
			}

		case "viewport":
			var payload ViewportPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			h.applyViewport(sess, payload)

		case "select":
			var payload SelectPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if venue, ok := h.store.GetVenue(payload.VenueID); ok {
				// the click is consumed here; no background clear follows
				sess.composer.ClickVenue(venue)
			}

		case "select_agent":
			var payload SelectAgentPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			sess.composer.ClickAgent(payload.AgentID)

		case "hover":
			var payload HoverPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			sess.composer.HoverVenue(payload.VenueID, payload.ViewportWidth)

		case "hover_end":
			sess.composer.ClearHover()

		case "clear":
			sess.composer.ClickBackground()

		case "toggle_layer":
			var payload ToggleLayerPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			visible := sess.controller.ToggleLayer(payload.Name)
			h.send(client, LayerMessage{
				Type:    "layer",
				Payload: LayerPayload{Name: payload.Name, Visible: visible},
			})

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

// applyViewport moves the camera and re-derives tile subscriptions from
// the new visible area, then pushes a fresh snapshot for it.
func (h *WSHandler) applyViewport(sess *session, payload ViewportPayload) {
	sess.controller.SetCamera(viewport.Camera{Lat: payload.Lat, Lng: payload.Lng, Zoom: payload.Zoom})

	visible := sess.controller.VisibleTiles(h.tileZoom)
	visibleSet := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		visibleSet[id] = struct{}{}
	}

	var stale []string
	for _, id := range sess.client.GetTiles() {
		if _, ok := visibleSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		h.hub.Unsubscribe(sess.client, stale)
	}
	h.hub.Subscribe(sess.client, visible)

	h.sendSnapshot(sess, visible)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(sess *session, tileIDs []string) {
	venues := h.store.VenuesForTiles(tileIDs)
	presence := h.store.PresenceForTiles(tileIDs)

	tileSet := make(map[string]struct{}, len(tileIDs))
	for _, id := range tileIDs {
		tileSet[id] = struct{}{}
	}
	var agents []*domain.AgentMarker
	for _, a := range h.engine.Agents() {
		if _, ok := tileSet[a.TileID]; ok {
			agents = append(agents, a)
		}
	}

	cam := sess.controller.Camera()
	snap := sess.composer.Compose(time.Now(), venues, agents, presence, scene.ComposeOptions{
		Zoom:        cam.Zoom,
		ShowHeatmap: sess.controller.LayerVisible(viewport.LayerHeatmap),
	})

	h.send(sess.client, SnapshotMessage{Type: "snapshot", Payload: snap})
}

func (h *WSHandler) send(client *hub.Client, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}
