package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/simmodem/internal/auth"
	"github.com/danmuck/simmodem/internal/modem"
	"github.com/danmuck/simmodem/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrModemNotFound = errors.New("modem not found")

type sendRequest struct {
	Target string `json:"target"`
	Port   int    `json:"port"`
	Args   []any  `json:"args"`
}

// SignalView is the JSON form of a delivered signal.
type SignalView struct {
	Name     string           `json:"name"`
	Receiver string           `json:"receiver"`
	Sender   string           `json:"sender"`
	Port     int              `json:"port"`
	Distance float64          `json:"distance"`
	Args     []protocol.Value `json:"args"`
}

func NewSignalView(sig modem.Signal) SignalView {
	args := sig.Args
	if args == nil {
		args = []protocol.Value{}
	}
	return SignalView{
		Name:     sig.Name,
		Receiver: string(sig.Receiver),
		Sender:   string(sig.Sender),
		Port:     sig.Port,
		Distance: sig.Distance,
		Args:     args,
	}
}

func (s *Server) registerRoutes() {
	routes := s.router

	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.node,
			"version": Version,
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/ready", func(c *gin.Context) {
		running, connected := 0, 0
		modems := s.machine.Modems()
		for _, md := range modems {
			if md.Phase() == modem.PhaseRunning {
				running++
			}
			if md.Connected() {
				connected++
			}
		}
		status := http.StatusOK
		if connected == 0 {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     connected > 0,
			"running":   running,
			"connected": connected,
			"modems":    len(modems),
			"node":      s.node,
		})
	})

	routes.GET("/modems", func(c *gin.Context) {
		modems := s.machine.Modems()
		statuses := make([]modem.Status, 0, len(modems))
		for _, md := range modems {
			statuses = append(statuses, md.Status())
		}
		c.JSON(http.StatusOK, gin.H{
			"modems":     statuses,
			"components": s.machine.Components(),
		})
	})

	routes.GET("/modems/:name", func(c *gin.Context) {
		md, ok := s.modem(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, md.Status())
	})

	guarded := routes.Group("/modems", auth.Require(s.guard))
	guarded.PUT("/:name/ports/:port", func(c *gin.Context) {
		s.setPort(c, true)
	})
	guarded.DELETE("/:name/ports/:port", func(c *gin.Context) {
		s.setPort(c, false)
	})
	guarded.POST("/:name/send", s.send)

	routes.GET("/signals", func(c *gin.Context) {
		signals := s.machine.Signals()
		views := make([]SignalView, 0, len(signals))
		for _, sig := range signals {
			views = append(views, NewSignalView(sig))
		}
		c.JSON(http.StatusOK, gin.H{"signals": views})
	})

	routes.GET("/signals/ws", s.signalTap)
}

func (s *Server) modem(c *gin.Context) (*modem.Modem, bool) {
	name := c.Param("name")
	md, ok := s.machine.Modem(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrModemNotFound.Error(), "modem": name})
		return nil, false
	}
	return md, true
}

func (s *Server) setPort(c *gin.Context, open bool) {
	md, ok := s.modem(c)
	if !ok {
		return
	}
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": protocol.ErrInvalidPort.Error(), "changed": false})
		return
	}

	var changed bool
	if open {
		changed, err = md.Open(port)
	} else {
		changed, err = md.Close(port)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "changed": false})
		return
	}
	isOpen, _ := md.IsOpen(port)
	log.Info().
		Str("modem", md.Name()).
		Int("port", port).
		Bool("open", isOpen).
		Bool("changed", changed).
		Msg("admin.setPort")
	c.JSON(http.StatusOK, gin.H{
		"modem":   md.Name(),
		"port":    port,
		"open":    isOpen,
		"changed": changed,
	})
}

func (s *Server) send(c *gin.Context) {
	md, ok := s.modem(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	values := make([]protocol.Value, 0, len(req.Args))
	for i, arg := range req.Args {
		v, err := protocol.FromAny(arg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		values = append(values, v)
	}

	var sent bool
	var err error
	kind := "broadcast"
	if req.Target == "" {
		sent, err = md.Broadcast(req.Port, values...)
	} else {
		kind = "send"
		sent, err = md.Send([]byte(req.Target), req.Port, values...)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "sent": false})
		return
	}
	if !sent {
		c.JSON(http.StatusBadGateway, gin.H{"error": "transport unavailable", "sent": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sent":           true,
		"kind":           kind,
		"modem":          md.Name(),
		"port":           req.Port,
		"accounted_size": protocol.AccountedSize(values),
	})
}
