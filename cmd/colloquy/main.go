// Command colloquy is the dictation CLI. `colloquy run` owns the session;
// every other command talks to that owner over its unix socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/colloquy/internal/app"
)

func main() {
	// SIGHUP ends an owner whose terminal went away.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	code := app.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
