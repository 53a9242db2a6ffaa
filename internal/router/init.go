package router

import (
	"github.com/labmetrixis/identity/internal/application"
	"github.com/labmetrixis/identity/internal/container"
	pginfra "github.com/labmetrixis/identity/internal/infrastructure/postgres"
	handlers "github.com/labmetrixis/identity/internal/interface/http"
	"github.com/labmetrixis/identity/internal/router/modules"
)

// InitModules initializes all application modules and registers them with the
// router registry. Called once during startup after the container singletons
// are in place.
func InitModules(r *Registry) {
	repo := pginfra.NewUserRepository(container.GetPGPool())

	// Keep the interface nil when no publisher was configured.
	var pub application.EmailPublisher
	if p := container.GetRabbitPub(); p != nil {
		pub = p
	}

	svc := application.NewService(
		repo,
		container.GetTokens(),
		container.GetRedis(),
		container.GetLogger(),
		pub,
		container.GetConfig(),
	)

	handler := handlers.NewAuthHandler(svc, container.GetLogger(), container.GetConfig())

	r.Add(modules.NewAuthModule(handler, container.GetTokens()))
}
