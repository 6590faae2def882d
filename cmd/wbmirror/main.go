package main

import (
	"context"

	"wbmirror/cmd/wbmirror/commands"
	"wbmirror/lib/serviceutil"
	"wbmirror/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)

	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(ctx, "wbmirror")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
