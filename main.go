package main

import (
	"net/http"
	"os"
	"time"

	"github.com/fiffu/trailerwatch/app"
	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/poller"
	"github.com/fiffu/trailerwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(app.NewLedger),
		fx.Provide(app.NewRegistry),
		fx.Provide(app.NewFeed),
		fx.Provide(app.NewVideoSource),
		fx.Provide(app.NewCatalog),
		fx.Provide(app.NewResolver),
		fx.Provide(app.NewDispatcher),
		fx.Provide(app.NewPipeline),
		fx.Provide(poller.NewPoller),
		fx.Provide(app.NewService),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server, *poller.Poller) {}),
	).Run()
}
