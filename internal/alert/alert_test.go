package alert

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	shown []string
}

func (r *recorder) Show(title, body, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, title+"|"+body+"|"+id)
}

func TestBellWritesLine(t *testing.T) {
	var buf bytes.Buffer
	NewBell(&buf).Show("Door", "opened", "c1")
	assert.Equal(t, "\aDoor: opened\n", buf.String())
}

func TestLogIncludesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	NewLog(log.New(&buf, "", 0)).Show("Door", "opened", "c1")
	assert.Equal(t, "alert [c1] Door: opened\n", buf.String())
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Show("t", "b", "id")
	assert.Equal(t, []string{"t|b|id"}, a.shown)
	assert.Equal(t, []string{"t|b|id"}, b.shown)
}

func TestTelegramSendsToChat(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
		chats []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"hn","username":"hn_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			mu.Lock()
			texts = append(texts, r.PostForm.Get("text"))
			chats = append(chats, r.PostForm.Get("chat_id"))
			mu.Unlock()
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("tok", srv.URL+"/bot%s/%s", srv.Client(), 42, nil)
	require.NoError(t, err)

	tg.Show("Water leak", "Kitchen sink", "c1")
	tg.Show("Door", "", "c2")
	tg.Close()
	tg.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Water leak\nKitchen sink", "Door"}, texts)
	assert.Equal(t, []string{"42", "42"}, chats)
}
