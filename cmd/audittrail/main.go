// Package main runs the audit trail backfill and replay commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	audittrailcmd "github.com/louisbranch/paysignal/internal/cmd/audittrail"
	"github.com/louisbranch/paysignal/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := audittrailcmd.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		config.Exitf("audittrail: %v", err)
	}
}
