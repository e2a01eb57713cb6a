// Command api-server serves the cart and order API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	kart "github.com/xenking/kart-orders/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := kart.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		return kart.Run(ctx, lg, m, cfg)
	})
}
