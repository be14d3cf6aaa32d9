// Package chat contains the Twitch chat recorder.
//
// StartTwitchChatRecorder connects to Twitch IRC for the session's channel and
// persists every message twice: as a JSON line appended to the session's chat
// file (flushed per message, so a crash loses at most the line being written)
// and as a row in the chat_messages table, with both absolute and relative
// (to stream start) timestamps for replay.
//
// Credentials: with TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN set the client
// authenticates; without them it falls back to an anonymous (justinfan) login,
// which can read chat but not send. YouTube chat is not handled here: yt-dlp
// captures it as live_chat subtitles alongside the video download.
package chat
