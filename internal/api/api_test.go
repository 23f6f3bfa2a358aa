package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sprite-ai/cmtree/internal/config"
	"github.com/sprite-ai/cmtree/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testComments is a small thread: 1 (OP) with replies 2 and 3, and a
// second root 4. Every comment is two hours old.
func testComments() []commentJSON {
	created := testNow.Add(-2 * time.Hour).Unix()
	return []commentJSON{
		{ID: 1, Parent: 0, Name: "alice", Content: "first", Created: created, Up: 4, Confidence: 0.5},
		{ID: 2, Parent: 1, Name: "bob", Content: "low", Created: created, Up: 1, Confidence: 0.3},
		{ID: 3, Parent: 1, Name: "carol", Content: "high", Created: created, Up: 2, Down: 1, Confidence: 0.9},
		{ID: 4, Parent: 0, Name: "dave", Content: "second", Created: created, Confidence: 0.1},
	}
}

func newTestServer() *Server {
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0},
		WithClock(func() time.Time { return testNow }))
}

func postLinearize(t *testing.T, srv *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/linearize", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func itemIDs(items []itemJSON) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Comment.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestLinearizeEndpoint(t *testing.T) {
	srv := newTestServer()
	w := postLinearize(t, srv, linearizeRequest{Comments: testComments(), OP: "alice"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp linearizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}

	if resp.Total != 4 {
		t.Errorf("expected total 4, got %d", resp.Total)
	}
	if got := itemIDs(resp.Items); !equalIDs(got, []int64{1, 3, 2, 4}) {
		t.Errorf("unexpected order %v", got)
	}
	wantDepths := []int{1, 2, 2, 1}
	for i, it := range resp.Items {
		if it.Depth != wantDepths[i] {
			t.Errorf("item %d: expected depth %d, got %d", it.Comment.ID, wantDepths[i], it.Depth)
		}
	}
	if !resp.Items[0].OPBadge {
		t.Error("expected OP badge on alice")
	}
	if !resp.Items[0].ScoreVisible || resp.Items[0].Score != 4 {
		t.Errorf("expected visible score 4, got %d (visible=%v)", resp.Items[0].Score, resp.Items[0].ScoreVisible)
	}
}

func TestLinearizeCollapsed(t *testing.T) {
	srv := newTestServer()
	w := postLinearize(t, srv, linearizeRequest{Comments: testComments(), Collapsed: []int64{1}, Selected: 4})

	var resp linearizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if got := itemIDs(resp.Items); !equalIDs(got, []int64{1, 4}) {
		t.Fatalf("unexpected items %v", got)
	}
	if !resp.Items[0].Collapsed || resp.Items[0].HiddenCount != 2 {
		t.Errorf("expected collapsed with 2 hidden, got %+v", resp.Items[0])
	}
	if !resp.Items[1].Selected {
		t.Error("expected item 4 selected")
	}
}

func TestLinearizeVoteDelta(t *testing.T) {
	srv := newTestServer()

	// Without base votes the current votes are the baseline.
	w := postLinearize(t, srv, linearizeRequest{
		Comments: testComments(),
		Votes:    []voteJSON{{ID: 4, Vote: model.VoteUp}},
	})
	var resp linearizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if got := resp.Items[3].Score; got != 0 {
		t.Errorf("expected score 0 without base votes, got %d", got)
	}

	w = postLinearize(t, srv, linearizeRequest{
		Comments:  testComments(),
		Votes:     []voteJSON{{ID: 4, Vote: model.VoteUp}},
		BaseVotes: []voteJSON{},
	})
	resp = linearizeResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if got := resp.Items[3].Score; got != 1 {
		t.Errorf("expected score 1 over a neutral base, got %d", got)
	}
	if resp.Items[3].Vote != model.VoteUp {
		t.Errorf("expected vote up, got %v", resp.Items[3].Vote)
	}
}

func TestLinearizeMissingComments(t *testing.T) {
	srv := newTestServer()
	w := postLinearize(t, srv, map[string]any{"op": "alice"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestLinearizeInvalidJSON(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/linearize", strings.NewReader("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "cmtree_linearize_total") {
		t.Error("expected cmtree_linearize_total in metrics output")
	}
}

func TestServerAddr(t *testing.T) {
	srv := New(config.ServerConfig{Host: "0.0.0.0", Port: 6142})
	if srv.addr != "0.0.0.0:6142" {
		t.Errorf("expected addr 0.0.0.0:6142, got %q", srv.addr)
	}
}

// --- WebSocket ---

func dialSession(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	msg := readMsg(t, conn)
	if msg.Type != wsMsgSession {
		t.Fatalf("expected 'session' message, got %q", msg.Type)
	}
	var session wsSessionResponse
	if err := json.Unmarshal(msg.Data, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a session id")
	}
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	msg := wsMessage{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		msg.Data = raw
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ws read: %v", err)
	}
	return msg
}

// readItems reads item lists until one satisfies ok. Intermediate
// results may be coalesced or skipped by the controller.
func readItems(t *testing.T, conn *websocket.Conn, ok func([]itemJSON) bool) []itemJSON {
	t.Helper()
	for {
		msg := readMsg(t, conn)
		if msg.Type == wsMsgError {
			t.Fatalf("unexpected error message: %s", msg.Data)
		}
		if msg.Type != wsMsgItems {
			continue
		}
		var resp wsItemsResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			t.Fatalf("unmarshal items: %v", err)
		}
		if ok(resp.Items) {
			return resp.Items
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	conn := dialSession(t)

	sendMsg(t, conn, wsMsgLoad, wsLoad{PostID: 42, OP: "alice", Comments: testComments()})
	items := readItems(t, conn, func(items []itemJSON) bool { return len(items) == 4 })
	if got := itemIDs(items); !equalIDs(got, []int64{1, 3, 2, 4}) {
		t.Errorf("unexpected order %v", got)
	}

	sendMsg(t, conn, wsMsgCollapse, wsCommentMsg{CommentID: 1})
	items = readItems(t, conn, func(items []itemJSON) bool { return len(items) == 2 })
	if items[0].HiddenCount != 2 {
		t.Errorf("expected 2 hidden, got %d", items[0].HiddenCount)
	}

	sendMsg(t, conn, wsMsgExpand, wsCommentMsg{CommentID: 1})
	readItems(t, conn, func(items []itemJSON) bool { return len(items) == 4 })

	// A vote moves the score by one relative to the loaded baseline.
	sendMsg(t, conn, wsMsgVote, wsVoteMsg{CommentID: 4, Vote: model.VoteUp})
	items = readItems(t, conn, func(items []itemJSON) bool {
		return len(items) == 4 && items[3].Vote == model.VoteUp
	})
	if items[3].Score != 1 {
		t.Errorf("expected score 1 after upvote, got %d", items[3].Score)
	}

	sendMsg(t, conn, wsMsgSelect, wsCommentMsg{CommentID: 2})
	readItems(t, conn, func(items []itemJSON) bool {
		return len(items) == 4 && items[2].Selected
	})

	sendMsg(t, conn, wsMsgClear, nil)
	readItems(t, conn, func(items []itemJSON) bool { return len(items) == 0 })
}

func TestWebSocketViewer(t *testing.T) {
	conn := dialSession(t)

	// Fresh comments hide their scores unless the viewer wrote them.
	comments := testComments()
	comments[3].Created = testNow.Add(-time.Minute).Unix()
	sendMsg(t, conn, wsMsgLoad, wsLoad{OP: "alice", Comments: comments})
	items := readItems(t, conn, func(items []itemJSON) bool { return len(items) == 4 })
	if items[3].ScoreVisible {
		t.Fatal("expected hidden score for a fresh comment")
	}

	sendMsg(t, conn, wsMsgViewer, wsViewerMsg{Name: "dave"})
	readItems(t, conn, func(items []itemJSON) bool {
		return len(items) == 4 && items[3].ScoreVisible
	})
}

func TestWebSocketErrors(t *testing.T) {
	conn := dialSession(t)

	sendMsg(t, conn, "bogus", nil)
	msg := readMsg(t, conn)
	if msg.Type != wsMsgError {
		t.Errorf("expected 'error' message, got %q", msg.Type)
	}

	sendMsg(t, conn, wsMsgVote, wsVoteMsg{CommentID: 1, Vote: model.VoteUp})
	msg = readMsg(t, conn)
	if msg.Type != wsMsgError {
		t.Errorf("expected 'error' for a vote before load, got %q", msg.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{bad json")); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	msg = readMsg(t, conn)
	if msg.Type != wsMsgError {
		t.Errorf("expected 'error' for bad json, got %q", msg.Type)
	}
}

func TestWebSocketLoadNewPostStartsClean(t *testing.T) {
	conn := dialSession(t)

	sendMsg(t, conn, wsMsgLoad, wsLoad{PostID: 42, OP: "alice", Comments: testComments()})
	readItems(t, conn, func(items []itemJSON) bool { return len(items) == 4 })
	sendMsg(t, conn, wsMsgVote, wsVoteMsg{CommentID: 4, Vote: model.VoteUp})
	sendMsg(t, conn, wsMsgCollapse, wsCommentMsg{CommentID: 1})
	sendMsg(t, conn, wsMsgSelect, wsCommentMsg{CommentID: 4})
	readItems(t, conn, func(items []itemJSON) bool {
		return len(items) == 2 && items[1].Selected && items[1].Vote == model.VoteUp
	})

	// Post 43 reuses ids 1 and 4. Its server vote on 4 is the baseline.
	created := testNow.Add(-2 * time.Hour).Unix()
	other := []commentJSON{
		{ID: 1, Name: "erin", Content: "root", Created: created, Confidence: 0.5},
		{ID: 2, Parent: 1, Name: "fay", Content: "reply", Created: created, Confidence: 0.5},
		{ID: 4, Name: "gina", Content: "other root", Created: created, Up: 1, Confidence: 0.1},
	}
	sendMsg(t, conn, wsMsgLoad, wsLoad{
		PostID:   43,
		OP:       "erin",
		Comments: other,
		Votes:    []voteJSON{{ID: 4, Vote: model.VoteUp}},
	})
	items := readItems(t, conn, func(items []itemJSON) bool {
		return len(items) == 3 && items[0].Comment.Name == "erin"
	})

	if got := itemIDs(items); !equalIDs(got, []int64{1, 2, 4}) {
		t.Fatalf("unexpected items %v", got)
	}
	if items[0].Collapsed {
		t.Error("collapse state leaked from the previous post")
	}
	if items[2].Selected {
		t.Error("selection leaked from the previous post")
	}
	if items[2].Score != 1 {
		t.Errorf("expected score 1 over the server baseline, got %d", items[2].Score)
	}
}
