package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/simmodem/internal/modem"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const tapWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// signalTap streams signals for one receiver address, or for every attached
// modem when none is given.
func (s *Server) signalTap(c *gin.Context) {
	addresses := []string{}
	if addr := strings.TrimSpace(c.Query("address")); addr != "" {
		addresses = append(addresses, addr)
	} else {
		for _, md := range s.machine.Modems() {
			addresses = append(addresses, string(md.Address()))
		}
	}
	if len(addresses) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrModemNotFound.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("admin.signalTap upgrade failed")
		return
	}
	defer conn.Close()

	bus := s.machine.Bus()
	sub := bus.Subscribe(addresses...)
	defer bus.Unsubscribe(sub)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Strs("addresses", addresses).Msg("admin.signalTap open")
	for {
		select {
		case <-closed:
			log.Debug().Strs("addresses", addresses).Msg("admin.signalTap closed by peer")
			return
		case msg, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "machine stopped"),
					time.Now().Add(tapWriteTimeout),
				)
				return
			}
			sig, ok := msg.(modem.Signal)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(tapWriteTimeout))
			if err := conn.WriteJSON(NewSignalView(sig)); err != nil {
				log.Debug().Err(err).Msg("admin.signalTap write failed")
				return
			}
		}
	}
}
