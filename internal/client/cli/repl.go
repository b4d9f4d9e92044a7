package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) error
	Planets(ctx context.Context) error
	Sync(ctx context.Context, planetID string) error
	Articles(ctx context.Context, planetID string) error
	Show(ctx context.Context, planetID, articleID string) error
	Pull(ctx context.Context, planetID, articleID string, force bool) error
	Post(ctx context.Context, planetID string) error
	Edit(ctx context.Context, planetID, articleID string) error
	Delete(ctx context.Context, planetID, articleID string) error
	Drafts(ctx context.Context) error
	NewDraft(ctx context.Context) error
	Publish(ctx context.Context, draftID, planetID string) error
}

const helpText = `Available commands:
  ping                              check the server
  status                            connectivity and transfers
  planets                           list cached planets
  sync [planet]                     refresh planets, or one planet's articles
  articles <planet>                 list cached articles
  show <planet> <article>           show a cached article
  pull <planet> <article> [force]   download an article
  post <planet>                     write a new article
  edit <planet> <article>           edit an article
  delete <planet> <article>         delete an article
  drafts                            list drafts
  draft                             write a new draft
  publish <draft> [planet]          send a draft
  exit | quit                       leave the program`

// usage lists the minimum argument count and the synopsis of each command
// that takes arguments.
var usage = map[string]struct {
	min      int
	synopsis string
}{
	"articles": {1, "articles <planet>"},
	"show":     {2, "show <planet> <article>"},
	"pull":     {2, "pull <planet> <article> [force]"},
	"post":     {1, "post <planet>"},
	"edit":     {2, "edit <planet> <article>"},
	"delete":   {2, "delete <planet> <article>"},
	"publish":  {1, "publish <draft> [planet]"},
}

// runREPL starts a simple read–eval–print loop for the planetsync CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Commands given too few arguments print their
// usage. Errors returned by handlers are printed and the loop goes on. The
// loop exits on EOF or when the user types "exit" or "quit".
//
// Prompts issued by handlers read from the same reader, so the loop never
// reads ahead of the current line.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("planetsync %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if u, ok := usage[cmd]; ok && len(args) < u.min {
			printlnFn("Usage:", u.synopsis)
			continue
		}

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "ping":
			cmdErr = a.Ping(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "planets":
			cmdErr = a.Planets(ctx)

		case "sync":
			planetID := ""
			if len(args) > 0 {
				planetID = args[0]
			}
			cmdErr = a.Sync(ctx, planetID)

		case "articles":
			cmdErr = a.Articles(ctx, args[0])

		case "show":
			cmdErr = a.Show(ctx, args[0], args[1])

		case "pull":
			force := len(args) > 2 && args[2] == "force"
			cmdErr = a.Pull(ctx, args[0], args[1], force)

		case "post":
			cmdErr = a.Post(ctx, args[0])

		case "edit":
			cmdErr = a.Edit(ctx, args[0], args[1])

		case "delete":
			cmdErr = a.Delete(ctx, args[0], args[1])

		case "drafts":
			cmdErr = a.Drafts(ctx)

		case "draft":
			cmdErr = a.NewDraft(ctx)

		case "publish":
			planetID := ""
			if len(args) > 1 {
				planetID = args[1]
			}
			cmdErr = a.Publish(ctx, args[0], planetID)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}
