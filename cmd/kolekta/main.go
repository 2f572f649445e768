package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	"github.com/smallbiznis/kolekta/internal/migration"
	"github.com/smallbiznis/kolekta/internal/observability"
	"github.com/smallbiznis/kolekta/internal/scheduler"
	"github.com/smallbiznis/kolekta/internal/server"
	"github.com/smallbiznis/kolekta/pkg/db"
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
