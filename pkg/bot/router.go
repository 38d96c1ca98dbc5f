package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/txn2/printerbot/pkg/auth"
	"github.com/txn2/printerbot/pkg/dispatch"
	"github.com/txn2/printerbot/pkg/job"
	"github.com/txn2/printerbot/pkg/printer"
	"github.com/txn2/printerbot/pkg/session"
	"github.com/txn2/printerbot/pkg/spool"
)

// Reply texts kept from the bot's long-standing chat behavior.
const (
	msgRequestAuth       = `Please authorize by "/auth <password>".`
	msgAlreadyAuthorized = "You already authorized!"
	msgAuthorized        = "Now you can print files via sending."
	msgWrongPassword     = "Wrong password!"
	msgNoJobs            = "No jobs found"
	msgUseCommands       = "Use commands"

	msgHelp = "Commands:\n" +
		"/auth <password> - authorize this chat\n" +
		"/pending - list jobs waiting to print\n" +
		"/completed - list recently finished jobs\n" +
		"/cancel <job_id> - cancel a pending job\n" +
		"Send a document or photo to print it."

	// notifyTimeout bounds the reply sent when a job finishes.
	notifyTimeout = 10 * time.Second
)

// jobIDPattern validates the /cancel argument before it is parsed.
var jobIDPattern = regexp.MustCompile(`^[0-9]+$`)

// command is the closed set of inbound request variants. Parsing
// happens once, in parseCommand; handlers receive typed arguments.
type command interface {
	isCommand()
}

type (
	cmdStart     struct{}
	cmdAuth      struct{ password string }
	cmdPending   struct{}
	cmdCompleted struct{}
	cmdCancel    struct{ rawID string }
	cmdUpload    struct{ file FileRef }
	cmdText      struct{}
	cmdUnknown   struct{ name string }
)

func (cmdStart) isCommand()     {}
func (cmdAuth) isCommand()      {}
func (cmdPending) isCommand()   {}
func (cmdCompleted) isCommand() {}
func (cmdCancel) isCommand()    {}
func (cmdUpload) isCommand()    {}
func (cmdText) isCommand()      {}
func (cmdUnknown) isCommand()   {}

// parseCommand maps an update to its command variant.
func parseCommand(u Update) command {
	if u.File != nil {
		return cmdUpload{file: *u.File}
	}
	switch u.Command {
	case "":
		return cmdText{}
	case "start":
		return cmdStart{}
	case "auth":
		return cmdAuth{password: strings.TrimSpace(u.Args)}
	case "pending":
		return cmdPending{}
	case "completed":
		return cmdCompleted{}
	case "cancel":
		return cmdCancel{rawID: strings.TrimSpace(u.Args)}
	default:
		return cmdUnknown{name: u.Command}
	}
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Guard      *auth.Guard
	Sessions   session.Store
	Jobs       job.Store
	Dispatcher *dispatch.Dispatcher
	Spool      *spool.Spool
	Printer    printer.Printer
	Replier    Replier
	Downloader Downloader

	// MaxFileSize caps uploads in bytes; 0 disables the check.
	MaxFileSize int64

	Logger *slog.Logger
}

// Router maps chat input to component calls and formats replies. It is
// stateless between messages except through the session and job stores,
// so updates for different chats may be handled concurrently.
type Router struct {
	guard       *auth.Guard
	sessions    session.Store
	jobs        job.Store
	dispatcher  *dispatch.Dispatcher
	spool       *spool.Spool
	printer     printer.Printer
	replier     Replier
	downloader  Downloader
	maxFileSize int64
	log         *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		guard:       cfg.Guard,
		sessions:    cfg.Sessions,
		jobs:        cfg.Jobs,
		dispatcher:  cfg.Dispatcher,
		spool:       cfg.Spool,
		printer:     cfg.Printer,
		replier:     cfg.Replier,
		downloader:  cfg.Downloader,
		maxFileSize: cfg.MaxFileSize,
		log:         cfg.Logger,
	}
}

// SetDispatcher wires the dispatcher after construction. The router
// and dispatcher reference each other (uploads enqueue work, finished
// jobs notify chats), so one side is attached late.
func (r *Router) SetDispatcher(d *dispatch.Dispatcher) {
	r.dispatcher = d
}

// Handle processes one inbound update. Every component failure is
// recovered here and rendered as reply text; nothing propagates.
func (r *Router) Handle(ctx context.Context, u Update) {
	log := r.log.With("chat_id", u.ChatID, "user", u.Username)

	sess, err := r.sessions.Ensure(ctx, u.ChatID, u.Username)
	if err != nil {
		log.Error("session lookup failed", "error", err)
		r.reply(ctx, u.ChatID, "Internal error, try again later")
		return
	}
	if err := r.sessions.Touch(ctx, u.ChatID); err != nil {
		log.Warn("session touch failed", "error", err)
	}

	var text string
	switch cmd := parseCommand(u).(type) {
	case cmdStart:
		log.Info("/start request")
		text = r.handleStart(ctx, sess)
	case cmdAuth:
		log.Info("/auth request")
		text = r.handleAuth(ctx, sess, cmd.password)
	case cmdPending:
		log.Info("/pending request")
		text = r.authorized(sess, func() string { return r.handleList(ctx, job.StatePending) })
	case cmdCompleted:
		log.Info("/completed request")
		text = r.authorized(sess, func() string { return r.handleList(ctx, job.StateCompleted) })
	case cmdCancel:
		log.Info("/cancel request", "job_id", cmd.rawID)
		text = r.authorized(sess, func() string { return r.handleCancel(ctx, sess, cmd.rawID) })
	case cmdUpload:
		log.Info("file upload", "file", cmd.file.Name, "size", cmd.file.Size)
		text = r.authorized(sess, func() string { return r.handleUpload(ctx, sess, cmd.file) })
	case cmdText:
		text = msgUseCommands
	case cmdUnknown:
		log.Info("unknown command", "command", cmd.name)
		text = fmt.Sprintf("Unknown command /%s\n%s", cmd.name, msgHelp)
	}

	r.reply(ctx, u.ChatID, text)
}

// NotifyFinished reports a job's terminal outcome back to its chat.
// Wired as the dispatcher's OnFinished callback.
func (r *Router) NotifyFinished(j *job.PrintJob) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var text string
	switch j.State {
	case job.StateCompleted:
		if j.Pages > 0 {
			text = fmt.Sprintf("Job %d (%s) was sent for printing, %d pages", j.ID, j.FileName, j.Pages)
		} else {
			text = fmt.Sprintf("Job %d (%s) was sent for printing!", j.ID, j.FileName)
		}
	case job.StateFailed:
		text = fmt.Sprintf("Job %d (%s) failed: %s", j.ID, j.FileName, j.Error)
	default:
		return
	}
	r.reply(ctx, j.ChatID, text)
}

// authorized runs next only for authenticated sessions.
func (r *Router) authorized(sess *session.Session, next func() string) string {
	if !r.guard.IsAuthorized(sess) {
		return msgRequestAuth
	}
	return next()
}

func (r *Router) handleStart(ctx context.Context, sess *session.Session) string {
	if !r.guard.IsAuthorized(sess) {
		return msgRequestAuth + "\n" + msgHelp
	}

	text := "You are authorized to print, just send a file here.\n"
	status, err := r.printer.Status(ctx)
	if err != nil {
		r.log.Warn("printer status unavailable", "error", err)
		return text + "Printer status unavailable"
	}
	return text + status
}

func (r *Router) handleAuth(ctx context.Context, sess *session.Session, password string) string {
	if r.guard.IsAuthorized(sess) {
		r.log.Info("repeated authorization attempt", "chat_id", sess.ChatID)
		return msgAlreadyAuthorized
	}

	err := r.guard.Authenticate(ctx, sess, password)
	if errors.Is(err, auth.ErrAuthFailure) {
		r.log.Info("wrong password", "chat_id", sess.ChatID)
		return msgWrongPassword
	}
	if err != nil {
		r.log.Error("authentication failed", "chat_id", sess.ChatID, "error", err)
		return "Internal error, try again later"
	}
	r.log.Info("chat authorized", "chat_id", sess.ChatID)
	return msgAuthorized
}

func (r *Router) handleList(ctx context.Context, state job.State) string {
	jobs, err := r.jobs.List(ctx, state)
	if err != nil {
		r.log.Error("job listing failed", "state", state, "error", err)
		return "Internal error, try again later"
	}

	text := msgNoJobs
	if len(jobs) > 0 {
		var b strings.Builder
		for _, j := range jobs {
			fmt.Fprintf(&b, "#%d %s [%s] %s", j.ID, j.FileName, j.State,
				j.SubmittedAt.Format("2006-01-02 15:04"))
			if j.State == job.StateFailed && j.Error != "" {
				fmt.Fprintf(&b, " - %s", j.Error)
			}
			b.WriteByte('\n')
		}
		text = strings.TrimRight(b.String(), "\n")
	}

	// The spooler's own view of the queue follows the tracked jobs;
	// completed listings ask for finished spooler entries.
	queue, err := r.printer.Queue(ctx, state != job.StatePending)
	if err != nil {
		r.log.Warn("printer queue unavailable", "error", err)
		return text
	}
	if queue = strings.TrimSpace(queue); queue != "" {
		text += "\n\nPrinter queue:\n" + queue
	}
	return text
}

func (r *Router) handleCancel(ctx context.Context, sess *session.Session, rawID string) string {
	if !jobIDPattern.MatchString(rawID) {
		return fmt.Sprintf("Invalid job_id '%s'", rawID)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Sprintf("Invalid job_id '%s'", rawID)
	}

	err = r.jobs.Cancel(ctx, id, sess.ChatID)
	switch {
	case errors.Is(err, job.ErrNotFound):
		return fmt.Sprintf("Job %d not found", id)
	case errors.Is(err, job.ErrForbidden):
		return fmt.Sprintf("Job %d belongs to another chat", id)
	case errors.Is(err, job.ErrInvalidState):
		return fmt.Sprintf("Job %d can no longer be cancelled", id)
	case err != nil:
		r.log.Error("cancel failed", "job_id", id, "error", err)
		return "Internal error, try again later"
	}
	return fmt.Sprintf("Job %d cancelled", id)
}

func (r *Router) handleUpload(ctx context.Context, sess *session.Session, file FileRef) string {
	if r.maxFileSize > 0 && file.Size > r.maxFileSize {
		return fmt.Sprintf("File is too big (%d > %d)!", file.Size, r.maxFileSize)
	}

	dst := r.spool.Path(file.Name)
	if err := r.downloader.Download(ctx, file, dst); err != nil {
		r.log.Error("file download failed", "file", file.Name, "error", err)
		return fmt.Sprintf("Failed to download file %s", file.Name)
	}

	j, err := r.jobs.Submit(ctx, sess.ChatID, file.Name)
	if err != nil {
		r.log.Error("job submit failed", "file", file.Name, "error", err)
		if rmErr := r.spool.Remove(dst); rmErr != nil {
			r.log.Warn("spool cleanup failed", "error", rmErr)
		}
		return "Internal error, try again later"
	}

	if err := r.dispatcher.Enqueue(dispatch.Work{JobID: j.ID, Path: dst}); err != nil {
		r.log.Warn("dispatch queue full", "job_id", j.ID)
		res := &job.Result{Error: err.Error()}
		if uErr := r.jobs.UpdateState(ctx, j.ID, job.StateFailed, res); uErr != nil {
			r.log.Error("recording queue-full failure failed", "job_id", j.ID, "error", uErr)
		}
		if rmErr := r.spool.Remove(dst); rmErr != nil {
			r.log.Warn("spool cleanup failed", "error", rmErr)
		}
		return "Printer is busy, try again later"
	}

	return fmt.Sprintf("Accepted job %d (%s), state: %s", j.ID, j.FileName, j.State)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := r.replier.Reply(ctx, chatID, text); err != nil {
		r.log.Error("sending reply failed", "chat_id", chatID, "error", err)
	}
}
