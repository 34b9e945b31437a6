package handlers

import (
	"contest-lifecycle-system/middleware"
	"contest-lifecycle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupContestRoutes(app *fiber.App, contestService *services.ContestService, snapshotService *services.SnapshotService) {
	// 🔐 Authenticated admin routes — Gateway supplies the user context
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Contest CRUD-ish surface (instances are never deleted)
	secured.Post("/contests", contestService.CreateContest)
	secured.Get("/contests", contestService.GetContests)
	secured.Get("/contests/:id", contestService.GetContestByID)
	secured.Get("/contests/:id/transitions", contestService.GetContestTransitions)
	secured.Get("/contests/:id/settlement", contestService.GetContestSettlement)
	secured.Get("/contests/:id/snapshots", snapshotService.GetContestSnapshots)

	// Lifecycle operations — every one goes through the guarded primitive
	secured.Post("/contests/:id/lock", contestService.ForceLock)
	secured.Post("/contests/:id/cancel", contestService.CancelContest)
	secured.Post("/contests/:id/mark-error", contestService.MarkError)
	secured.Post("/contests/:id/resolve", contestService.ResolveError)
	secured.Post("/contests/:id/settle", contestService.SettleContest)

	// Upstream provider cancellation cascade
	secured.Post("/providers/:key/cancel", contestService.CascadeProviderCancel)

	// Snapshot ingestion — service-to-service, gateway token already checked
	secured.Post("/contests/:id/snapshots", snapshotService.IngestSnapshot)
}
