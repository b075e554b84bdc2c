package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mailspool/internal/handler"
	"github.com/mailspool/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	submitHandler := handler.NewSubmitHandler(app.logger, app.gate)
	supervisors := handler.NewSupervisorHandler(app.logger, app.spool, app.processor, app.stats, app.settings, app.config.SiteURL)
	settingsHandler := handler.NewSettingsHandler(app.logger, app.settings, app.transport, app.scheduler)
	tools := handler.NewToolsHandler(app.logger, app.gate, app.processor)

	r.Get("/api/health", handler.Health(app.pool))

	// The cron link hits this unauthenticated; the processor checks the key itself.
	r.Get("/process", handler.Process(app.processor))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(10, 20))
		r.Post("/api/mail", submitHandler.Submit)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireKey(app.settings))

		r.Get("/processing", supervisors.Processing)

		r.Route("/{partition}", func(r chi.Router) {
			r.Get("/", supervisors.List)
			r.Post("/bulk", supervisors.Bulk)
			r.Post("/purge", supervisors.Purge)
			r.Delete("/{id}", supervisors.Delete)
			r.Post("/{id}/retry", supervisors.Retry)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.Get)
			r.Put("/", settingsHandler.Update)
			r.Get("/advanced", settingsHandler.GetAdvanced)
			r.Put("/advanced", settingsHandler.UpdateAdvanced)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Post("/test-mail", tools.TestMail)
			r.Post("/process", tools.ProcessQueue)
		})
	})

	return r
}
