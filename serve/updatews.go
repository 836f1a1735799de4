package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"motioncam/notify"
)

const (
	// Time allowed to write a message to the client.
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

// UpdateServer streams "update" events over websockets whenever the recording
// archive changes, so a frontend can refresh its listing without polling.
type UpdateServer struct {
	upgrader websocket.Upgrader
	cs       map[chan bool]bool
	addc     chan chan bool
	delc     chan chan bool
	notify   chan bool
}

func NewUpdateServer() *UpdateServer {
	u := &UpdateServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan bool]bool),
		addc:   make(chan chan bool),
		delc:   make(chan chan bool),
		notify: make(chan bool),
	}
	go func() {
		for {
			select {
			case c := <-u.addc:
				u.cs[c] = true
			case c := <-u.delc:
				delete(u.cs, c)
			case <-u.notify:
				for k := range u.cs {
					// A departing client may already be blocked on delc;
					// drop the update rather than wait on it.
					select {
					case k <- true:
					default:
					}
				}
			}
		}
	}()
	return u
}

// FilesystemUpdated implements video.FilesystemListener.
func (u *UpdateServer) FilesystemUpdated() {
	u.notify <- true
}

// Notify implements notify.Listener so that published segments also wake
// connected clients.
func (u *UpdateServer) Notify(ctx context.Context, n *notify.Notification) error {
	select {
	case u.notify <- true:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *UpdateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for update stream: %v", err)
		}
		return
	}
	go u.serve(ws)
}

func (u *UpdateServer) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to archive update socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from archive update socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	// Buffered so a broadcast landing between writes is kept, not dropped.
	notifyc := make(chan bool, 1)
	u.addc <- notifyc
	defer func() { u.delc <- notifyc }()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				ws.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-notifyc:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, []byte("update")); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
