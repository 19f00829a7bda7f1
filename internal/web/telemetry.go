package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/lensvcm/internal/logic/registry"
)

// DefaultTelemetryInterval is the period of /ws snapshots.
const DefaultTelemetryInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SocketCommand is a command sent by a /ws client.
type SocketCommand struct {
	Command  string `json:"command"` // "move", "init" or "softland"
	SensorID int    `json:"sensor_id"`
	Place    int    `json:"place"`
	Position int32  `json:"position"`
}

// Telemetry is one /ws frame.
type Telemetry struct {
	Time      string              `json:"t"`
	Actuators []registry.Snapshot `json:"actuators"`
	Error     string              `json:"error,omitempty"`
}

// TelemetryHandler streams a snapshot of every actuator at a fixed period and
// executes commands received on the same socket.
type TelemetryHandler struct {
	Actuators Actuators
	Interval  time.Duration
}

func (t *TelemetryHandler) poll(cmdErr error) Telemetry {
	entries := t.Actuators.Entries()
	frame := Telemetry{
		Time:      time.Now().Format(time.RFC3339Nano),
		Actuators: make([]registry.Snapshot, 0, len(entries)),
	}
	for _, e := range entries {
		frame.Actuators = append(frame.Actuators, e.Poll())
	}
	if cmdErr != nil {
		frame.Error = cmdErr.Error()
	}
	return frame
}

func (t *TelemetryHandler) run(cmd SocketCommand) error {
	e, err := t.Actuators.Lookup(cmd.SensorID, cmd.Place)
	if err != nil {
		return err
	}
	switch cmd.Command {
	case "move":
		return e.Move(cmd.Position)
	case "init":
		return e.Init()
	case "softland":
		_, err := e.SoftLand()
		return err
	}
	return fmt.Errorf("unknown command %q", cmd.Command)
}

func (t *TelemetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	cmds := make(chan SocketCommand, 8)
	go func() {
		defer cancel()
		for {
			var msg SocketCommand
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case cmds <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	interval := t.Interval
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := conn.WriteJSON(t.poll(nil)); err != nil {
		return
	}
	for {
		var frame Telemetry
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			frame = t.poll(t.run(cmd))
		case <-ticker.C:
			frame = t.poll(nil)
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}
