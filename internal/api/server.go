package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"aicoach/internal/config"
	"aicoach/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server WebSocket граница конвейера: принимает команды сессий и
// бинарные PCM чанки, отдаёт батчи событий
type Server struct {
	Config     *config.Config
	SessionMgr *session.Manager

	clients map[*websocket.Conn]string // conn -> id сессии ("" = нет)
	mu      sync.Mutex
}

// NewServer создаёт сервер
func NewServer(cfg *config.Config, sessMgr *session.Manager) *Server {
	return &Server{
		Config:     cfg,
		SessionMgr: sessMgr,
		clients:    make(map[*websocket.Conn]string),
	}
}

// Start запускает HTTP сервер (блокирует)
func (s *Server) Start() {
	http.HandleFunc("/ws", s.handleWebSocket)

	log.Printf("Backend listening on :%s", s.Config.Port)
	if err := http.ListenAndServe(":"+s.Config.Port, nil); err != nil {
		log.Fatal("ListenAndServe:", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		id := s.clients[conn]
		delete(s.clients, conn)
		s.mu.Unlock()
		// Обрыв соединения закрывает его сессию
		if id != "" {
			if _, err := s.SessionMgr.StopSession(id); err != nil && err != session.ErrSessionNotFound {
				log.Printf("stop on disconnect: %v", err)
			}
		}
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Println("Read:", err)
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.processAudio(conn, data)
		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				s.writeJSON(conn, Message{Type: "error", Error: "bad message"})
				continue
			}
			s.processMessage(conn, msg)
		}
	}
}

// processAudio обрабатывает бинарный чанк: 8 байт little-endian
// стартового семпла + PCM16
func (s *Server) processAudio(conn *websocket.Conn, data []byte) {
	s.mu.Lock()
	id := s.clients[conn]
	s.mu.Unlock()

	if id == "" {
		s.writeJSON(conn, Message{Type: "error", Error: "no active session"})
		return
	}
	if len(data) < 8 {
		s.writeJSON(conn, Message{Type: "error", Error: "chunk too short"})
		return
	}

	startSample := int64(binary.LittleEndian.Uint64(data[:8]))
	batch, err := s.SessionMgr.ProcessAudioChunk(id, startSample, data[8:])
	if err != nil {
		s.writeJSON(conn, Message{Type: "error", SessionID: id, Error: err.Error()})
		return
	}
	if !batch.Empty() {
		s.writeJSON(conn, Message{Type: "batch", SessionID: id, Batch: batch})
	}
}

func (s *Server) processMessage(conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "start_session":
		rate := msg.SampleRate
		if rate == 0 {
			rate = s.Config.SampleRate
		}
		id := msg.SessionID
		if id == "" {
			s.writeJSON(conn, Message{Type: "error", Error: "sessionId is required"})
			return
		}
		if err := s.SessionMgr.StartSession(context.Background(), id, rate); err != nil {
			s.writeJSON(conn, Message{Type: "error", Error: err.Error()})
			return
		}
		s.mu.Lock()
		s.clients[conn] = id
		s.mu.Unlock()
		s.writeJSON(conn, Message{Type: "session_started", SessionID: id, SampleRate: rate})

	case "stop_session":
		s.mu.Lock()
		id := s.clients[conn]
		s.clients[conn] = ""
		s.mu.Unlock()
		if id == "" {
			s.writeJSON(conn, Message{Type: "error", Error: "no active session"})
			return
		}
		batch, err := s.SessionMgr.StopSession(id)
		if err != nil {
			s.writeJSON(conn, Message{Type: "error", SessionID: id, Error: err.Error()})
			return
		}
		s.writeJSON(conn, Message{Type: "session_stopped", SessionID: id, Batch: batch})

	case "list_sessions":
		s.writeJSON(conn, Message{Type: "sessions", Sessions: s.SessionMgr.ActiveSessions()})

	default:
		s.writeJSON(conn, Message{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}

// writeJSON сериализует запись: WriteJSON не потокобезопасен для
// одного соединения
func (s *Server) writeJSON(conn *websocket.Conn, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Write error: %v", err)
	}
}
