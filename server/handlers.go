package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/controller"
	"github.com/luma/tvremote/discovery"
	"github.com/luma/tvremote/protocol"
)

type connectRequest struct {
	Device string `json:"device"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

type secretRequest struct {
	Secret string `json:"secret" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes() {
	r := s.router

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/devices", s.listDevices)
	r.POST("/discovery/start", s.startDiscovery)
	r.POST("/discovery/stop", s.stopDiscovery)

	r.GET("/session", s.sessionStatus)
	r.POST("/session/connect", s.connect)
	r.POST("/session/disconnect", s.disconnect)
	r.POST("/session/secret", s.pairingSecret)

	r.GET("/keys", s.listKeys)
	r.POST("/keys/:action", s.pressKey)

	r.GET("/state/*path", s.state)
	r.GET("/events", s.events)
}

func (s *Server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"discovering": s.ctrl.Discovering(),
		"devices":     s.ctrl.Devices(),
	})
}

func (s *Server) startDiscovery(c *gin.Context) {
	if err := s.ctrl.StartDiscovery(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) stopDiscovery(c *gin.Context) {
	if err := s.ctrl.StopDiscovery(); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) sessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var err error
	switch {
	case req.Device != "":
		err = s.ctrl.ConnectDevice(c.Request.Context(), req.Device)
	case req.Host != "":
		err = s.ctrl.Connect(c.Request.Context(), req.Host, req.Port)
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Either device or host is required"})
		return
	}

	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, s.ctrl.Status())
}

func (s *Server) disconnect(c *gin.Context) {
	if err := s.ctrl.Disconnect(); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) pairingSecret(c *gin.Context) {
	var req secretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ctrl.SendPairingSecret(c.Request.Context(), req.Secret); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) listKeys(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.Actions())
}

// pressKey sends a key event. The optional direction query parameter is one
// of short, start_long or end_long.
func (s *Server) pressKey(c *gin.Context) {
	direction, ok := parseDirection(c.DefaultQuery("direction", "short"))
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Unknown direction " + c.Query("direction")})
		return
	}

	action := c.Param("action")
	if a, known := protocol.ParseAction(action); !known {
		s.log.Warn("Sending unknown action", zap.String("action", string(a)))
	}

	if err := s.ctrl.Key(c.Request.Context(), action, direction); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// state returns part of the state document. The path is in gjson syntax with
// slashes allowed for dots, so /state/session/state reads "session.state" and
// /state/ the whole document.
func (s *Server) state(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	path = strings.ReplaceAll(path, "/", ".")

	raw, err := s.ctrl.State(c.Request.Context(), path)
	if err != nil {
		s.fail(c, err)
		return
	}

	if raw == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Nothing at " + path})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// events streams the state document as server-sent events: one "snapshot"
// event, then an "update" event per change.
func (s *Server) events(c *gin.Context) {
	store := s.ctrl.Store()

	updates, unlisten := store.Listen()
	defer unlisten()

	snapshot, err := store.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}

	c.SSEvent("snapshot", json.RawMessage(snapshot))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false

		case <-s.streams.Done():
			return false

		case update, ok := <-updates:
			if !ok {
				return false
			}

			value := json.RawMessage("null")
			if update.Value != nil {
				value = update.Value
			}

			c.SSEvent("update", gin.H{"path": update.Path, "value": value})
			return true
		}
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, client.ErrNotConnected), errors.Is(err, client.ErrNotAuthenticated):
		return http.StatusConflict
	case errors.Is(err, client.ErrConnectFailed):
		return http.StatusBadGateway
	case errors.Is(err, discovery.ErrPlatformUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, discovery.ErrDiscoveryStartFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseDirection(name string) (protocol.Direction, bool) {
	switch strings.ToLower(name) {
	case "short", "":
		return protocol.Short, true
	case "start_long", "down":
		return protocol.StartLong, true
	case "end_long", "up":
		return protocol.EndLong, true
	default:
		return 0, false
	}
}
