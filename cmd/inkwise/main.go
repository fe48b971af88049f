package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/inkwise/inkwise/internal/billing"
	"github.com/inkwise/inkwise/internal/config"
	"github.com/inkwise/inkwise/internal/generation"
	"github.com/inkwise/inkwise/internal/ledger"
	"github.com/inkwise/inkwise/internal/llm"
	"github.com/inkwise/inkwise/internal/migration"
	"github.com/inkwise/inkwise/internal/observability"
	"github.com/inkwise/inkwise/internal/ratelimit"
	"github.com/inkwise/inkwise/internal/server"
	"github.com/inkwise/inkwise/internal/transcript"
	"github.com/inkwise/inkwise/internal/user"
	"github.com/inkwise/inkwise/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Functional domains
		user.Module,
		ledger.Module,
		transcript.Module,
		llm.Module,
		ratelimit.Module,
		generation.Module,
		billing.Module,

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
