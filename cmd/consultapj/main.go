package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/clock"
	"github.com/consultapj/consultapj/internal/config"
	"github.com/consultapj/consultapj/internal/migration"
	"github.com/consultapj/consultapj/internal/observability"
	"github.com/consultapj/consultapj/internal/scheduler"
	"github.com/consultapj/consultapj/internal/server"
	"github.com/consultapj/consultapj/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
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
