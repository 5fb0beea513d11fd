package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/placegraph/backend/pkg/search"
	"github.com/placegraph/backend/pkg/store"
	"github.com/placegraph/backend/pkg/taxonomy"
)

type App struct {
	DBConn   *pgxpool.Pool
	Queue    *amqp091.Channel
	Storage  store.Storage
	Taxonomy *taxonomy.Taxonomy
	Search   *search.Service
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
