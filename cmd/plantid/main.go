// Command plantid submits a plant photo to a running identification proxy
// and prints what it found.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/client"
	"github.com/example/plant-identifier/internal/datauri"
	"github.com/example/plant-identifier/internal/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "plantid"
	app.Usage = "identify a plant from a photo"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "warn",
			EnvVars: []string{"PLANTID_LOG_LEVEL"},
		},
	}
	app.Commands = []*cli.Command{
		identifyCmd,
	}

	app.RunAndExitOnError()
}

var identifyCmd = &cli.Command{
	Name:      "identify",
	Usage:     "upload a photo and list possible names and similar images",
	ArgsUsage: "<image-path>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Value:   "http://localhost:8080",
			EnvVars: []string{"PLANTID_SERVER"},
		},
		&cli.StringFlag{
			Name:    "token",
			EnvVars: []string{"PLANTID_TOKEN"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 2 * time.Minute,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return cli.Exit("expected exactly one image path", 2)
		}

		logger, err := logging.NewLogger(cctx.String("log-level"))
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		raw, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("read image: %v", err), 1)
		}

		proxy := client.NewProxyClient(cctx.String("server"),
			client.WithBearerToken(cctx.String("token")),
			client.WithTimeout(cctx.Duration("timeout")),
		)
		view := identifyImage(cctx.Context, proxy, datauri.Encode(raw), os.Stdout, logger)
		if view.Phase == client.PhaseError {
			return cli.Exit("", 1)
		}
		return nil
	},
}

// identifyImage runs one identification for imageData, rendering every view
// change to out, and returns the settled view.
func identifyImage(ctx context.Context, identifier client.Identifier, imageData string, out io.Writer, logger *zap.Logger) client.View {
	session := client.NewSession(identifier, logger, client.WithObserver(func(v client.View) {
		if err := client.Render(out, v); err != nil {
			logger.Warn("render failed", zap.Error(err))
		}
	}))
	<-session.Select(ctx, imageData)
	return session.View()
}
