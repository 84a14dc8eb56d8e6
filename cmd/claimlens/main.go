package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/claimlens/claimlens/internal/clock"
	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/logger"
	"github.com/claimlens/claimlens/internal/migration"
	"github.com/claimlens/claimlens/internal/observability"
	"github.com/claimlens/claimlens/internal/server"
	"github.com/claimlens/claimlens/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
