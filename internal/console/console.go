// Package console is the line-oriented management surface of the server
// process: stopping it, inspecting connected clients, resetting stored
// data and exporting CSV snapshots.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/server"
	"github.com/minedient/elerp/internal/store"
)

// Deps are the collaborators console commands act on.
type Deps struct {
	Store  *store.Store
	Server *server.Server
	Stop   context.CancelFunc
	Log    zerolog.Logger
}

const menu = `
ELERP server management console
quit/exit --- stop the server
list      --- list connected clients
version   --- show server version
reset     --- reset all stored data
r_record  --- reset usage records only
csv       --- export database tables to csv
master    --- export joined usage details to csv
`

// Run reads commands from in until quit or EOF. It is meant to occupy
// the main goroutine while the listeners run on theirs.
func Run(ctx context.Context, in io.Reader, out io.Writer, deps Deps) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, menu)
		fmt.Fprint(out, "Enter command: ")
		if !scanner.Scan() {
			return
		}
		if done := execute(ctx, out, deps, scanner.Text()); done {
			return
		}
	}
}

func execute(ctx context.Context, out io.Writer, deps Deps, command string) bool {
	switch command {
	case "quit", "exit":
		fmt.Fprintln(out, "Stopping server... please wait")
		deps.Stop()
		return true
	case "list":
		clients := deps.Server.Clients()
		if len(clients) == 0 {
			fmt.Fprintln(out, "no clients connected")
			break
		}
		for id, addr := range clients {
			fmt.Fprintf(out, "%s  %s\n", id, addr)
		}
	case "version":
		fmt.Fprintln(out, server.Version)
	case "reset":
		if err := deps.Store.ResetAll(ctx); err != nil {
			deps.Log.Error().Err(err).Msg("database reset failed")
			break
		}
		fmt.Fprintln(out, "database reset")
	case "r_record":
		if err := deps.Store.ResetRecords(ctx); err != nil {
			deps.Log.Error().Err(err).Msg("records reset failed")
			break
		}
		fmt.Fprintln(out, "records reset")
	case "csv":
		files, err := ExportTables(ctx, deps.Store, ".")
		if err != nil {
			deps.Log.Error().Err(err).Msg("csv export failed")
			break
		}
		for _, f := range files {
			fmt.Fprintln(out, "wrote", f)
		}
	case "master":
		file, err := ExportUsageDetails(ctx, deps.Store, ".")
		if err != nil {
			deps.Log.Error().Err(err).Msg("master data export failed")
			break
		}
		fmt.Fprintln(out, "wrote", file)
	case "":
	default:
		fmt.Fprintf(out, "unknown command: %s\n", command)
	}
	return false
}
