// Package bot implements the printerbot command router. It maps
// inbound chat updates to the auth guard, job store, and print
// dispatcher, and renders every outcome as a reply. The chat transport
// itself stays behind small interfaces so the router can be exercised
// with fakes.
package bot

import "context"

// FileRef identifies an uploaded file on the chat transport.
type FileRef struct {
	// ID is the transport's handle for fetching the file content.
	ID string

	// Name is the original file name as shown to the user.
	Name string

	// Size is the declared file size in bytes.
	Size int64
}

// Update is one inbound chat event, either a command, plain text, or a
// file upload.
type Update struct {
	// ChatID identifies the originating chat, and thereby the session.
	ChatID int64

	// Username is the sender's display name, informational only.
	Username string

	// Command is the bare command name without the leading slash, empty
	// for non-command messages.
	Command string

	// Args is the raw argument text following the command.
	Args string

	// Text is the message text for non-command messages.
	Text string

	// File is set for file-upload messages.
	File *FileRef
}

// Replier sends outbound text replies.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

// Downloader fetches an uploaded file to a local path.
type Downloader interface {
	Download(ctx context.Context, ref FileRef, dst string) error
}
