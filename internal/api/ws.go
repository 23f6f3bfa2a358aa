package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/tree"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types from client.
const (
	wsMsgLoad     = "load"
	wsMsgVote     = "vote"
	wsMsgCollapse = "collapse"
	wsMsgExpand   = "expand"
	wsMsgSelect   = "select"
	wsMsgViewer   = "viewer"
	wsMsgClear    = "clear"
)

// WebSocket message types to client.
const (
	wsMsgSession = "session"
	wsMsgItems   = "items"
	wsMsgError   = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsLoad is the payload for "load" messages.
type wsLoad struct {
	PostID   int64         `json:"post_id,omitempty"`
	OP       string        `json:"op"`
	Comments []commentJSON `json:"comments"`
	Votes    []voteJSON    `json:"votes,omitempty"`
}

// wsCommentMsg is the payload for collapse/expand/select messages.
type wsCommentMsg struct {
	CommentID int64 `json:"comment_id"`
}

// wsVoteMsg is the payload for "vote" messages.
type wsVoteMsg struct {
	CommentID int64      `json:"comment_id"`
	Vote      model.Vote `json:"vote"`
}

// wsViewerMsg is the payload for "viewer" messages.
type wsViewerMsg struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// wsSessionResponse is sent once when the session opens.
type wsSessionResponse struct {
	ID string `json:"id"`
}

// wsItemsResponse is sent every time the thread is relinearized.
type wsItemsResponse struct {
	Items []itemJSON `json:"items"`
}

// viewSession holds the state for one WebSocket connection.
type viewSession struct {
	id     string
	conn   *websocket.Conn
	ctrl   *tree.Controller
	logger *slog.Logger

	writeMu sync.Mutex

	// votes is only touched by the read loop.
	votes model.Votes
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	logger := s.logger.With("session", id)
	session := &viewSession{
		id:     id,
		conn:   conn,
		logger: logger,
		ctrl:   tree.NewController(tree.WithLogger(logger), tree.WithClock(s.now)),
		votes:  make(model.Votes),
	}

	ctx, cancel := context.WithCancel(r.Context())
	// Hijacked connections outlive Shutdown; unblock the read loop.
	context.AfterFunc(ctx, func() { conn.Close() })
	updates, unsubscribe := session.ctrl.Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		session.ctrl.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for items := range updates {
			session.send(wsMsgItems, wsItemsResponse{Items: toItemsJSON(items)})
		}
	}()
	defer func() {
		cancel()
		unsubscribe()
		wg.Wait()
		logger.Debug("websocket session closed")
	}()

	logger.Debug("websocket session opened")
	session.send(wsMsgSession, wsSessionResponse{ID: id})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			session.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgLoad:
			session.handleLoad(msg.Data)
		case wsMsgVote:
			session.handleVote(msg.Data)
		case wsMsgCollapse:
			session.handleComment(msg.Data, session.ctrl.Collapse)
		case wsMsgExpand:
			session.handleComment(msg.Data, session.ctrl.Expand)
		case wsMsgSelect:
			session.handleComment(msg.Data, session.ctrl.Select)
		case wsMsgViewer:
			session.handleViewer(msg.Data)
		case wsMsgClear:
			session.ctrl.Clear()
		default:
			session.sendError("unknown message type: " + msg.Type)
		}
	}
}

func (vs *viewSession) handleLoad(data json.RawMessage) {
	var req wsLoad
	if err := json.Unmarshal(data, &req); err != nil {
		vs.sendError("invalid load data")
		return
	}

	// Every load is a new thread; ids are only unique within a post.
	comments := toComments(req.Comments)
	vs.votes = toVotes(req.Votes).Complete(comments)
	vs.ctrl.Reset()
	vs.ctrl.SetOP(req.OP)
	vs.ctrl.SetComments(comments, vs.votes)
	vs.logger.Debug("thread loaded", "post", req.PostID, "comments", len(req.Comments))
}

func (vs *viewSession) handleVote(data json.RawMessage) {
	var req wsVoteMsg
	if err := json.Unmarshal(data, &req); err != nil {
		vs.sendError("invalid vote data")
		return
	}
	if !vs.ctrl.Snapshot().Valid {
		vs.sendError("no thread loaded")
		return
	}

	votes := vs.votes.Clone()
	votes[req.CommentID] = req.Vote
	vs.votes = votes
	vs.ctrl.SetVotes(votes)
}

func (vs *viewSession) handleComment(data json.RawMessage, apply func(int64)) {
	var req wsCommentMsg
	if err := json.Unmarshal(data, &req); err != nil {
		vs.sendError("invalid comment data")
		return
	}
	apply(req.CommentID)
}

func (vs *viewSession) handleViewer(data json.RawMessage) {
	var req wsViewerMsg
	if err := json.Unmarshal(data, &req); err != nil {
		vs.sendError("invalid viewer data")
		return
	}
	vs.ctrl.SetViewer(req.Name, req.Admin)
}

// send writes one message. gorilla connections allow a single writer,
// so all writes go through writeMu.
func (vs *viewSession) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		vs.logger.Warn("ws marshal", "error", err)
		return
	}

	vs.writeMu.Lock()
	defer vs.writeMu.Unlock()
	if err := vs.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		vs.logger.Debug("ws write", "error", err)
	}
}

func (vs *viewSession) sendError(errMsg string) {
	vs.send(wsMsgError, map[string]string{"message": errMsg})
}
