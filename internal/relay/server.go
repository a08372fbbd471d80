package relay

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type SendResponse struct {
	Status  string   `json:"status"`
	AlertID string   `json:"alert_id"`
	SIDs    []string `json:"sids"`
}

type Handler struct {
	svc      *Service
	dec      *Decoder
	upgrader websocket.Upgrader
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc: svc,
		dec: NewDecoder(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NewServer wires the relay routes. path is the alert intake route.
func NewServer(h *Handler, path string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{StackSize: 4 << 10}))
	e.Use(middleware.BodyLimit("64K"))

	e.POST(path, h.HandleAlert)
	e.GET("/api/alerts", h.HandleRecent)
	e.GET("/api/alerts/ws", h.HandleFeed)
	e.GET("/healthz", h.HandleHealth)
	return e
}

// HandleAlert accepts a device payload and answers once every notification
// has been attempted.
func (h *Handler) HandleAlert(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "read body", Details: err.Error()})
	}
	p, err := h.dec.Decode(body)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: fe.Error()})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid JSON", Details: err.Error()})
	}

	a := h.svc.Dispatch(c.Request().Context(), "http", p)
	return c.JSON(http.StatusOK, SendResponse{Status: "sent", AlertID: a.ID, SIDs: a.SIDs})
}

func (h *Handler) HandleRecent(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Recent())
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": h.svc.hub.count(),
	})
}

// HandleFeed streams each processed alert as a JSON text frame.
func (h *Handler) HandleFeed(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	id, ch := h.svc.hub.subscribe(8)
	defer h.svc.hub.unsubscribe(id)

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case a, ok := <-ch:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(a); err != nil {
				return nil
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return nil
			}
		}
	}
}
