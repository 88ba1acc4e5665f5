/*
Package cli provides helpers shared by the tutor command: error types
mapped to exit codes, text and JSON result formatting, and signal-driven
cancellation.

Output Formatting:

	formatter := cli.NewFormatter(cli.FormatJSON)
	err := formatter.FormatTo(os.Stdout, cli.Result{
		{Name: "identifier", Value: "chat:alice"},
		{Name: "remaining", Value: 17},
	})

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	// ctx is canceled on SIGINT/SIGTERM
*/
package cli
