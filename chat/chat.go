package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/luoshu/livesaver/db"
	"github.com/luoshu/livesaver/recorder"
	"github.com/luoshu/livesaver/telemetry"
)

// Message is one chat line as written to the session's JSONL file.
type Message struct {
	AbsTimestamp time.Time      `json:"abs_timestamp"`
	RelTimestamp float64        `json:"rel_timestamp"`
	Username     string         `json:"username"`
	Message      string         `json:"message"`
	Badges       map[string]int `json:"badges,omitempty"`
	Emotes       []string       `json:"emotes,omitempty"`
	Color        string         `json:"color,omitempty"`
	ReplyToID    string         `json:"reply_to_id,omitempty"`
	ReplyToUser  string         `json:"reply_to_username,omitempty"`
	ReplyToMsg   string         `json:"reply_to_message,omitempty"`
}

// StartTwitchChatRecorder records chat for one live session until ctx is
// canceled. Blocks for the lifetime of the IRC connection.
func StartTwitchChatRecorder(ctx context.Context, dbc *sql.DB, channel string, sess *recorder.Session) error {
	if channel == "" {
		return fmt.Errorf("chat recorder: channel not set")
	}
	logger := slog.Default().With(
		slog.String("component", "chat_recorder"),
		slog.String("session_id", sess.ID),
		slog.String("channel", channel))

	sink, err := newChatSink(sess.ChatPath)
	if err != nil {
		return fmt.Errorf("open chat file: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close chat file", slog.Any("err", err))
		}
	}()

	username, oauth := resolveChatCredentials(ctx, dbc)
	var client *twitch.Client
	if username != "" && oauth != "" {
		client = twitch.NewClient(username, oauth)
	} else {
		logger.Info("twitch chat creds not set; using anonymous login")
		client = twitch.NewAnonymousClient()
	}

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		absTime := time.Now().UTC()
		m := Message{
			AbsTimestamp: absTime,
			RelTimestamp: absTime.Sub(sess.StartedAt).Seconds(),
			Username:     msg.User.Name,
			Message:      msg.Message,
			Badges:       msg.User.Badges,
			Color:        msg.User.Color,
		}
		if msg.Reply != nil {
			m.ReplyToID = msg.Reply.ParentMsgID
			m.ReplyToUser = msg.Reply.ParentUserLogin
			m.ReplyToMsg = msg.Reply.ParentMsgBody
		}
		for _, e := range msg.Emotes {
			m.Emotes = append(m.Emotes, e.Name)
		}
		if err := sink.Append(m); err != nil {
			logger.Error("failed to write chat line", slog.Any("err", err))
		}
		if _, err := dbc.Exec(`INSERT INTO chat_messages (session_id, username, message, abs_timestamp, rel_timestamp, badges, emotes, color, reply_to_id, reply_to_username, reply_to_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sess.ID, m.Username, m.Message, m.AbsTimestamp, m.RelTimestamp,
			formatBadges(m.Badges), strings.Join(m.Emotes, ","), m.Color,
			m.ReplyToID, m.ReplyToUser, m.ReplyToMsg); err != nil {
			logger.Error("failed to insert chat message", slog.Any("err", err))
		}
		telemetry.ChatMessages.Inc()
	})
	client.OnConnect(func() {
		logger.Info("twitch chat connected")
	})

	// Disconnect when the session ends.
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			logger.Debug("chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	client.Join(channel)

	// The client reconnects on transient drops itself; Connect only returns
	// after Disconnect or a fatal error. Retry fatal errors with backoff while
	// the session is still live.
	backoff := 2 * time.Second
	for {
		err := client.Connect()
		if ctx.Err() != nil {
			<-done
			return nil
		}
		logger.Warn("twitch chat connection lost, retrying", slog.Any("err", err), slog.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// resolveChatCredentials returns the Twitch IRC login. Environment variables
// win; when one is unset the stored credential of the same name fills it in.
func resolveChatCredentials(ctx context.Context, dbc *sql.DB) (username, oauth string) {
	username = os.Getenv("TWITCH_BOT_USERNAME")
	oauth = os.Getenv("TWITCH_OAUTH_TOKEN")
	if dbc == nil {
		return username, oauth
	}
	if username == "" {
		v, err := db.GetCredential(ctx, dbc, "twitch_bot_username")
		if err != nil {
			slog.Debug("stored bot username lookup failed", slog.Any("err", err))
		} else {
			username = v
		}
	}
	if oauth == "" {
		v, err := db.GetCredential(ctx, dbc, "twitch_oauth_token")
		if err != nil {
			slog.Debug("stored oauth token lookup failed", slog.Any("err", err))
		} else {
			oauth = v
		}
	}
	return username, oauth
}

// chatSink appends JSON lines to the session's chat file. Each Append is one
// write syscall, so each line reaches the OS before the next message arrives.
type chatSink struct {
	mu sync.Mutex
	f  *os.File
}

func newChatSink(path string) (*chatSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &chatSink{f: f}, nil
}

func (s *chatSink) Append(m Message) error {
	line, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(append(line, '\n'))
	return err
}

func (s *chatSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// formatBadges flattens the badge map to "name:version" pairs in stable order.
func formatBadges(badges map[string]int) string {
	if len(badges) == 0 {
		return ""
	}
	names := make([]string, 0, len(badges))
	for k := range badges {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s:%d", k, badges[k]))
	}
	return strings.Join(parts, ",")
}
