// Package server provides the HTTP surface of the production pipeline.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/clipline/internal/orchestrator"
	"github.com/maauso/clipline/internal/stitch"
)

// CreateProductionRequest is the HTTP request body for registering a production.
type CreateProductionRequest struct {
	// CampaignID identifies the production. Generated when empty.
	CampaignID string `json:"campaignId" validate:"omitempty,max=128,excludesall=/?#"`
	// Kind is "video" (ordered scenes) or "image" (independent slots).
	Kind string `json:"kind" validate:"required,oneof=video image"`
	// StyleConfig is passed through to every job submission.
	StyleConfig string `json:"styleConfig" validate:"max=4096"`
	// Clips lists the prompts in order.
	Clips []ClipRequest `json:"clips" validate:"required,min=1,max=100,dive"`
	// Replace overwrites an existing production with the same campaign ID.
	Replace bool `json:"replace"`
}

// ClipRequest is one clip of a CreateProductionRequest.
type ClipRequest struct {
	// ID is the scene number or image slot. Defaults to s<n> or i<n>.
	ID string `json:"clipId" validate:"omitempty,max=64,excludesall=/?#"`
	// Prompt is handed verbatim to the job gateway.
	Prompt string `json:"prompt" validate:"required,max=4000"`
	// DependsOn overrides the default ordering with explicit prerequisites.
	DependsOn []string `json:"dependsOn" validate:"omitempty,dive,required"`
}

// ProductionResponse is the HTTP response for a single production.
type ProductionResponse struct {
	orchestrator.ProductionView
	// Stitch is the current assembly state.
	Stitch stitch.Status `json:"stitch"`
}

// ListProductionsResponse is the HTTP response for listing productions.
type ListProductionsResponse struct {
	Productions []orchestrator.ProductionView `json:"productions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
