package websocket

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var (
	activeRooms = make(map[string]int)
	roomsMutex  sync.RWMutex
)

// GetActiveRooms returns a snapshot of room ids to connected user counts.
func GetActiveRooms() map[string]int {
	roomsMutex.RLock()
	defer roomsMutex.RUnlock()

	rooms := make(map[string]int, len(activeRooms))
	for k, v := range activeRooms {
		rooms[k] = v
	}
	return rooms
}

// SetupSocketIO builds the collaboration relay. Each canvas maps to one
// room; clients join with the canvas id and exchange scene updates through
// server-broadcast / server-volatile-broadcast.
func SetupSocketIO() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		myRoom := socketio.Room(me)
		_ = srv.To(myRoom).Emit("init-room")
		logrus.WithField("socket", me).Debug("init room")

		socket.On("join-room", func(datas ...any) {
			if len(datas) == 0 {
				logrus.WithField("socket", me).Error("join-room without a canvas id")
				return
			}
			roomID, ok := datas[0].(string)
			if !ok || roomID == "" {
				logrus.WithField("socket", me).Error("join-room with an invalid canvas id")
				return
			}

			room := socketio.Room(roomID)
			socket.Join(room)
			logrus.WithFields(logrus.Fields{
				"socket": me,
				"canvas": roomID,
			}).Debug("socket joined canvas room")

			srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					logrus.WithError(fetchErr).Error("failed to fetch room sockets")
					return
				}

				roomsMutex.Lock()
				activeRooms[roomID] = len(users)
				roomsMutex.Unlock()

				if len(users) <= 1 {
					_ = srv.To(myRoom).Emit("first-in-room")
				} else {
					_ = socket.Broadcast().To(room).Emit("new-user", me)
				}

				roomUsers := make([]socketio.SocketId, 0, len(users))
				for _, user := range users {
					roomUsers = append(roomUsers, user.Id())
				}
				srv.In(room).Emit("room-user-change", roomUsers)
			})
		})

		socket.On("server-broadcast", func(datas ...any) {
			if err := relayBroadcast(socket, datas, false); err != nil {
				logrus.WithError(err).WithField("socket", me).Error("broadcast dropped")
			}
		})

		socket.On("server-volatile-broadcast", func(datas ...any) {
			if err := relayBroadcast(socket, datas, true); err != nil {
				logrus.WithError(err).WithField("socket", me).Error("volatile broadcast dropped")
			}
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, currentRoom := range socket.Rooms().Keys() {
				roomID := string(currentRoom)
				srv.In(currentRoom).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
					otherClients := make([]socketio.SocketId, 0, len(users))
					for _, userInRoom := range users {
						if userInRoom.Id() != me {
							otherClients = append(otherClients, userInRoom.Id())
						}
					}

					roomsMutex.Lock()
					if len(otherClients) == 0 {
						delete(activeRooms, roomID)
					} else {
						activeRooms[roomID] = len(otherClients)
					}
					roomsMutex.Unlock()

					if len(otherClients) > 0 {
						srv.In(currentRoom).Emit("room-user-change", otherClients)
					}
				})
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

func relayBroadcast(socket *socketio.Socket, datas []any, volatile bool) error {
	if len(datas) < 3 {
		return fmt.Errorf("broadcast needs a canvas id, a payload and metadata")
	}
	roomID, ok := datas[0].(string)
	if !ok || roomID == "" {
		return fmt.Errorf("missing canvas id")
	}

	if volatile {
		return socket.Volatile().Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", datas[1], datas[2])
	}
	return socket.Broadcast().To(socketio.Room(roomID)).Emit("client-broadcast", datas[1], datas[2])
}
