package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"

	"github.com/gorilla/websocket"

	"cyberfarm.ai/internal/protocol"
)

const defaultScript = `for i in range(3):
    plant('grass', i, 0)
    water(i, 0)
wait(10)
for i in range(3):
    harvest(i, 0)
`

type frame struct {
	Type     string          `json:"type"`
	Seq      int             `json:"seq"`
	Message  string          `json:"message"`
	Code     string          `json:"code"`
	Line     *int            `json:"line"`
	Event    json.RawMessage `json:"event"`
	Result   json.RawMessage `json:"result"`
	Aborted  bool            `json:"aborted"`
	Category string          `json:"category"`
}

func main() {
	var (
		wsURL  = flag.String("url", "ws://localhost:8000/ws/run", "ws url")
		user   = flag.String("user", "", "user id (optional)")
		script = flag.String("script", "", "script file (default: a small grass loop)")
		manual = flag.Bool("manual", false, "drive the run with step messages instead of acks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	code := defaultScript
	if *script != "" {
		b, err := os.ReadFile(*script)
		if err != nil {
			logger.Fatalf("read script: %v", err)
		}
		code = string(b)
	}

	u, err := url.Parse(*wsURL)
	if err != nil {
		logger.Fatalf("url: %v", err)
	}
	if *user != "" {
		q := u.Query()
		q.Set("user_id", *user)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	mode, next := protocol.ModeAuto, protocol.TypeAck
	if *manual {
		mode, next = protocol.ModeManual, protocol.TypeStep
	}

	// One writer at a time: the interrupt handler races the read loop.
	var wmu sync.Mutex
	send := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = send(protocol.ControlMsg{Type: protocol.TypeAbort})
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			logger.Printf("decode: %v", err)
			continue
		}
		switch f.Type {
		case protocol.TypeWelcome:
			logger.Printf("connected; starting %s run", mode)
			if err := send(protocol.StartMsg{Type: protocol.TypeStart, Mode: mode, Code: code}); err != nil {
				logger.Fatalf("send start: %v", err)
			}
		case protocol.TypeEvent:
			logger.Printf("event %d %s", f.Seq, f.Event)
			if err := send(protocol.ControlMsg{Type: next}); err != nil {
				logger.Fatalf("send %s: %v", next, err)
			}
		case protocol.TypeFarmState:
		case protocol.TypeDone:
			if f.Aborted {
				logger.Printf("aborted")
			} else {
				logger.Printf("done %s", f.Result)
			}
			return
		case protocol.TypeError:
			line := 0
			if f.Line != nil {
				line = *f.Line
			}
			logger.Printf("error %s (%s) line %d: %s", f.Code, f.Category, line, f.Message)
			return
		}
	}
}
