package api

import (
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/settings"
)

// CreateHubRequest is the request body for creating a hub.
type CreateHubRequest struct {
	Dir  string `json:"dir" example:"Projects"`
	Name string `json:"name" example:"Work" validate:"required"`
}

// HubPathRequest names an existing hub or document.
type HubPathRequest struct {
	Path string `json:"path" example:"Work/Work.md"`
}

// RenameHubRequest is the request body for renaming a hub.
type RenameHubRequest struct {
	Path string `json:"path" example:"Work/Work.md" validate:"required"`
	Name string `json:"name" example:"Job" validate:"required"`
}

// DeleteHubRequest is the request body for deleting a hub.
type DeleteHubRequest struct {
	Path         string `json:"path" example:"Work/Work.md" validate:"required"`
	Confirmation string `json:"confirmation" example:"delete" validate:"required"`
}

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	Hub  string `json:"hub" example:"Work/Work.md" validate:"required"`
	Name string `json:"name" example:"Report" validate:"required"`
}

// RenameItemRequest is the request body for renaming an item.
type RenameItemRequest struct {
	Hub     string `json:"hub" example:"Work/Work.md" validate:"required"`
	OldName string `json:"old_name" example:"Report" validate:"required"`
	NewName string `json:"new_name" example:"Summary" validate:"required"`
}

// DeleteItemRequest is the request body for deleting an item.
type DeleteItemRequest struct {
	Hub          string `json:"hub" example:"Work/Work.md" validate:"required"`
	Name         string `json:"name" example:"Report" validate:"required"`
	Confirmation string `json:"confirmation" example:"delete" validate:"required"`
}

// MoveItemRequest is the request body for moving an item to another hub.
type MoveItemRequest struct {
	Item      string `json:"item" example:"Work/Report/Report.md" validate:"required"`
	TargetHub string `json:"target_hub" example:"Home/Home.md" validate:"required"`
}

// HubResponse returns the path of a hub after an operation.
type HubResponse struct {
	Hub string `json:"hub" example:"Work/Work.md" validate:"required"`
}

// ItemResponse returns the entry document of an item after an operation.
type ItemResponse struct {
	Entry string `json:"entry" example:"Work/Report/Report.md" validate:"required"`
}

// HubInfo describes one hub (aliased from the domain layer).
type HubInfo = models.HubInfo

// HubListResponse wraps the hub listing.
type HubListResponse struct {
	Hubs []HubInfo `json:"hubs" validate:"required"`
}

// Report is the outcome of one update (aliased from the domain layer).
type Report = lifecycle.Report

// UpdateAllResponse wraps the reports of a full update pass.
type UpdateAllResponse struct {
	Reports []Report `json:"reports" validate:"required"`
	Errors  []string `json:"errors,omitempty"`
}

// Settings is the persisted settings document (aliased from the domain layer).
type Settings = settings.Settings
