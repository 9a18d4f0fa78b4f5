package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/neurobridge-presence/internal/app"
	"github.com/yungbote/neurobridge-presence/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background(), func() {
		fmt.Println("forced exit")
		os.Exit(1)
	})
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Printf("presence agent exited: %v\n", err)
		os.Exit(1)
	}
}
