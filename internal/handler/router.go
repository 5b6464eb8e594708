package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/proposal/internal/middleware"
)

type RouterDeps struct {
	Profiles   *ProfileHandler
	Proposals  *ProposalHandler
	Library    *LibraryHandler
	Health     *HealthHandler
	DemoUserID string
	RateLimit  time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Check)

	owned := api.Group("")
	owned.Use(middleware.Identity(deps.DemoUserID))
	owned.POST("/cv", deps.Profiles.Upload)
	owned.POST("/cv/file", deps.Profiles.UploadFile)
	owned.GET("/cv", deps.Profiles.Get)

	generation := owned.Group("")
	generation.Use(middleware.RateLimit(deps.RateLimit))
	generation.POST("/proposals", deps.Proposals.Generate)
	generation.POST("/proposals/score", deps.Proposals.Score)
	generation.POST("/proposals/evaluate", deps.Proposals.Evaluate)

	owned.POST("/library", deps.Library.Save)
	owned.GET("/library", deps.Library.List)
	owned.POST("/library/search", deps.Library.Search)
}
