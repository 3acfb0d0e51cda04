package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lazypower/crisp/internal/engagement"
)

const itemBody = `{
	"question": "Tabs or spaces?",
	"answers": [
		{"id": "a1", "text": "tabs", "authorId": "u1", "totems": [{"name": "Funny"}, {"name": "Big Brain"}]},
		{"id": "a2", "text": "spaces", "authorId": "u2", "totems": [{"name": "Funny"}]}
	]
}`

func createItem(t *testing.T, srv *Server) engagement.ContentItem {
	t.Helper()
	w := do(t, srv, "POST", "/api/items", "", itemBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d; body: %s", w.Code, w.Body.String())
	}
	var item engagement.ContentItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.ID == "" {
		t.Fatal("created item has no id")
	}
	return item
}

func decodeItem(t *testing.T, body []byte) engagement.ContentItem {
	t.Helper()
	var item engagement.ContentItem
	if err := json.Unmarshal(body, &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	return item
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e
}

func TestCreateAndGetItem(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)

	w := do(t, srv, "GET", "/api/items/"+item.ID, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeItem(t, w.Body.Bytes())
	if got.Question != "Tabs or spaces?" || len(got.Answers) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestCreateItemInvalid(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/items", "", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", w.Code)
	}

	dup := `{"question": "q", "answers": [{"totems": [{"name": "A"}, {"name": "A"}]}]}`
	w = do(t, srv, "POST", "/api/items", "", dup)
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate label: status = %d, want 400", w.Code)
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "invalid_item" {
		t.Errorf("error = %q, want invalid_item", e.Error)
	}
}

func TestGetItemNotFound(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv, "GET", "/api/items/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "not_found" {
		t.Errorf("error = %q, want not_found", e.Error)
	}
}

func TestLikeUnlikeFlow(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)
	base := "/api/items/" + item.ID + "/labels/Funny"

	if w := do(t, srv, "POST", base+"/like", "alice", ""); w.Code != http.StatusOK {
		t.Fatalf("alice like: status = %d; body: %s", w.Code, w.Body.String())
	}
	if w := do(t, srv, "POST", base+"/like", "bob", ""); w.Code != http.StatusOK {
		t.Fatalf("bob like: status = %d", w.Code)
	}
	w := do(t, srv, "POST", base+"/unlike", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("alice unlike: status = %d", w.Code)
	}

	got := decodeItem(t, w.Body.Bytes())
	l := got.Answers[0].Labels[0]
	if l.Count != 1 || len(l.UserIDList) != 1 || l.UserIDList[0] != "bob" {
		t.Errorf("label = %+v, want only bob active", l)
	}
	if l.Crispness != 100 {
		t.Errorf("Crispness = %v, want 100", l.Crispness)
	}

	w = do(t, srv, "POST", base+"/unlike", "alice", "")
	if w.Code != http.StatusConflict {
		t.Errorf("second unlike: status = %d, want 409", w.Code)
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "already_inactive" {
		t.Errorf("error = %q, want already_inactive", e.Error)
	}
}

func TestLikeTargetsAnswerAndEscapedLabel(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)

	w := do(t, srv, "POST", "/api/items/"+item.ID+"/labels/Funny/like?answer_id=a2", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeItem(t, w.Body.Bytes())
	if got.Answers[0].Labels[0].Count != 0 || got.Answers[1].Labels[0].Count != 1 {
		t.Error("like applied to the wrong answer")
	}

	w = do(t, srv, "POST", "/api/items/"+item.ID+"/labels/Big%20Brain/like", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("escaped label: status = %d; body: %s", w.Code, w.Body.String())
	}
	got = decodeItem(t, w.Body.Bytes())
	if got.Answers[0].Labels[1].Count != 1 {
		t.Error("like on \"Big Brain\" not applied")
	}

	// Labels containing escape sequences must be decoded exactly once.
	body := `{"question": "q", "answers": [{"id": "a1", "totems": [
		{"name": "100%"}, {"name": "a%41"}, {"name": "aA"}, {"name": "a/b"}
	]}]}`
	w = do(t, srv, "POST", "/api/items", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d; body: %s", w.Code, w.Body.String())
	}
	reserved := decodeItem(t, w.Body.Bytes())

	for _, name := range []string{"100%", "a%41", "a/b"} {
		path := "/api/items/" + reserved.ID + "/labels/" + url.PathEscape(name) + "/like"
		w = do(t, srv, "POST", path, "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("label %q: status = %d; body: %s", name, w.Code, w.Body.String())
		}
		got = decodeItem(t, w.Body.Bytes())
		l, err := got.LocateLabel("", name)
		if err != nil {
			t.Fatalf("LocateLabel %q: %v", name, err)
		}
		if l.Count != 1 {
			t.Errorf("label %q: count = %d, want 1", name, l.Count)
		}
	}
	if l, _ := got.LocateLabel("", "aA"); l.Count != 0 {
		t.Errorf("like on \"a%%41\" leaked to \"aA\": count = %d", l.Count)
	}
}

func TestCreateItemRejectsLikes(t *testing.T) {
	srv := testServer(t)

	forged := `{"question": "q", "answers": [{"id": "a1", "totems": [{"name": "Funny", "likes": [
		{"userId": "bob", "originalTimestamp": 99999999999999, "lastUpdatedAt": 99999999999999, "isActive": true, "value": 7},
		{"userId": "carol", "originalTimestamp": 99999999999999, "lastUpdatedAt": 99999999999999, "isActive": true, "value": 7}
	]}]}]}`
	w := do(t, srv, "POST", "/api/items", "", forged)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "invalid_item" {
		t.Errorf("error = %q, want invalid_item", e.Error)
	}
}

func TestImportItem(t *testing.T) {
	srv := testServer(t)
	now := time.Now().UnixMilli()

	legacy := fmt.Sprintf(`{"question": "q", "answers": [{"id": "a1", "totems": [
		{"name": "Funny", "count": 5, "userIdList": ["alice", "bob", "alice"], "timestamps": [%d, %d, %d]}
	]}]}`, now, now, now-1000)

	if w := do(t, srv, "POST", "/api/items/import", "", legacy); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous import: status = %d, want 401", w.Code)
	}

	w := do(t, srv, "POST", "/api/items/import", "admin", legacy)
	if w.Code != http.StatusCreated {
		t.Fatalf("import: status = %d; body: %s", w.Code, w.Body.String())
	}
	got := decodeItem(t, w.Body.Bytes())
	l := got.Answers[0].Labels[0]
	if l.Count != 2 || len(l.Ledger) != 2 {
		t.Errorf("label = %+v, want two records", l)
	}

	future := fmt.Sprintf(`{"question": "q", "answers": [{"id": "a1", "totems": [
		{"name": "Funny", "userIdList": ["bob"], "timestamps": [%d]}
	]}]}`, now+int64(48*time.Hour/time.Millisecond))
	w = do(t, srv, "POST", "/api/items/import", "admin", future)
	if w.Code != http.StatusBadRequest {
		t.Errorf("future timestamp: status = %d, want 400", w.Code)
	}
}

func TestLabelNotFound(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)

	w := do(t, srv, "POST", "/api/items/"+item.ID+"/labels/Sad/like", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "label_not_found" {
		t.Errorf("error = %q, want label_not_found", e.Error)
	}
}

func TestMutationsRequireIdentity(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)
	base := "/api/items/" + item.ID + "/labels/Funny"

	for _, op := range []string{"/like", "/unlike", "/refresh"} {
		w := do(t, srv, "POST", base+op, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", op, w.Code)
		}
	}

	if w := do(t, srv, "GET", "/api/quota", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("quota: status = %d, want 401", w.Code)
	}
}

func TestRefreshFlow(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)
	base := "/api/items/" + item.ID + "/labels/Funny"

	w := do(t, srv, "POST", base+"/refresh", "alice", "")
	if w.Code != http.StatusConflict {
		t.Errorf("refresh without like: status = %d, want 409", w.Code)
	}
	if e := decodeError(t, w.Body.Bytes()); e.Error != "not_liked" {
		t.Errorf("error = %q, want not_liked", e.Error)
	}

	do(t, srv, "POST", base+"/like", "alice", "")
	if w := do(t, srv, "POST", base+"/refresh", "alice", ""); w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d; body: %s", w.Code, w.Body.String())
	}

	// Daily allowance in testServer is one.
	w = do(t, srv, "POST", base+"/refresh", "alice", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh: status = %d, want 429", w.Code)
	}
	e := decodeError(t, w.Body.Bytes())
	if e.Error != "quota_exhausted" || e.Remaining == nil || *e.Remaining != 0 {
		t.Errorf("error body = %+v, want quota_exhausted with remaining 0", e)
	}

	var quota map[string]any
	w = do(t, srv, "GET", "/api/quota", "alice", "")
	json.Unmarshal(w.Body.Bytes(), &quota)
	if quota["remaining"] != float64(0) || quota["user_id"] != "alice" {
		t.Errorf("quota = %v", quota)
	}
	if _, ok := quota["reset_at"]; !ok {
		t.Error("quota response missing reset_at")
	}
}

func TestInvalidTokenIsUnauthenticated(t *testing.T) {
	srv := testServer(t)
	item := createItem(t, srv)

	req := httptest.NewRequest("POST", "/api/items/"+item.ID+"/labels/Funny/like", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
