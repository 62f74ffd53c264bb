// Package main provides genctl, a command-line client that runs generation
// jobs in-process against a provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	providerFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "path to a .env file",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "provider name (native, relayA, relayB, multimodal); defaults to PROVIDER",
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "provider base URL; defaults to PROVIDER_BASE_URL",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "provider API key; defaults to PROVIDER_API_KEY",
			Sources: cli.EnvVars("GENCTL_API_KEY"),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "log progress to stderr",
		},
	}

	submitFlags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "kind",
			Usage: "image or video",
			Value: "image",
		},
		&cli.StringFlag{
			Name:     "prompt",
			Usage:    "generation prompt",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "preferred model, tried before the catalog fallbacks",
		},
		&cli.StringSliceFlag{
			Name:  "models",
			Usage: "explicit candidate models, in order",
		},
		&cli.StringFlag{
			Name:  "reference",
			Usage: "reference image: a local file, URL or data URI",
		},
		&cli.StringFlag{
			Name:  "reference-description",
			Usage: "text folded into the prompt when the reference cannot be used",
		},
		&cli.StringFlag{
			Name:  "aspect-ratio",
			Usage: "aspect ratio, e.g. 16:9",
		},
		&cli.StringFlag{
			Name:  "size",
			Usage: "output size, e.g. 1024x1024",
		},
		&cli.IntFlag{
			Name:  "duration",
			Usage: "video duration in seconds",
		},
		&cli.StringFlag{
			Name:  "quality",
			Usage: "provider quality setting",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "write the generated asset to this file",
		},
	}, providerFlags...)

	return &cli.Command{
		Name:  "genctl",
		Usage: "submit image and video generation jobs and check provider quota",
		Commands: []*cli.Command{
			{
				Name:   "submit",
				Usage:  "submit a job and wait for its result",
				Flags:  submitFlags,
				Action: SubmitAction,
			},
			{
				Name:   "quota",
				Usage:  "show the account balance of a provider",
				Flags:  providerFlags,
				Action: QuotaAction,
			},
		},
	}
}
