package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gaiaguardians/walking/internal/clock"
	"github.com/gaiaguardians/walking/internal/config"
	"github.com/gaiaguardians/walking/internal/migration"
	"github.com/gaiaguardians/walking/internal/observability"
	"github.com/gaiaguardians/walking/internal/server"
	"github.com/gaiaguardians/walking/pkg/db"
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
