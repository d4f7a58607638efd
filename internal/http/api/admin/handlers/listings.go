package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	front "github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/moderation"
)

// ListingHandler serves the admin listing and category endpoints.
type ListingHandler struct {
	listings   *listing.Service
	moderation *moderation.Service
}

// NewListingHandler constructs a ListingHandler.
func NewListingHandler(listings *listing.Service, moderationService *moderation.Service) *ListingHandler {
	return &ListingHandler{listings: listings, moderation: moderationService}
}

type removeListingRequest struct {
	Reason string `json:"reason"`
}

var listingStatuses = map[models.ListingStatus]struct{}{
	models.ListingStatusDraft:   {},
	models.ListingStatusActive:  {},
	models.ListingStatusPaused:  {},
	models.ListingStatusSold:    {},
	models.ListingStatusExpired: {},
	models.ListingStatusRemoved: {},
}

// List returns listings of any owner, optionally filtered by status.
func (h *ListingHandler) List(c *gin.Context) {
	status := models.ListingStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if status != "" {
		if _, ok := listingStatuses[status]; !ok {
			apperr.Write(c, apperr.BadRequest("invalid status"))
			return
		}
	}
	rows, errList := h.moderation.Listings(c.Request.Context(), status, front.QueryLimit(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": front.PresentListings(rows)})
}

// Remove moves a listing to REMOVED. The body is optional.
func (h *ListingHandler) Remove(c *gin.Context) {
	listingID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	var body removeListingRequest
	if c.Request.ContentLength > 0 && !front.BindJSON(c, &body) {
		return
	}
	row, errRemove := h.listings.Remove(c.Request.Context(), front.CurrentUserID(c), listingID, strings.TrimSpace(body.Reason))
	if errRemove != nil {
		apperr.Write(c, errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": front.PresentListing(*row)})
}

// Categories returns the taxonomy.
func (h *ListingHandler) Categories(c *gin.Context) {
	rows, errList := h.listings.Categories(c.Request.Context())
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": front.PresentCategories(rows)})
}

// CreateCategory adds a taxonomy node.
func (h *ListingHandler) CreateCategory(c *gin.Context) {
	var body listing.CategoryInput
	if !front.BindJSON(c, &body) {
		return
	}
	row, errCreate := h.listings.CreateCategory(c.Request.Context(), front.CurrentUserID(c), body)
	if errCreate != nil {
		apperr.Write(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": front.PresentCategory(*row)})
}

// UpdateCategory replaces a taxonomy node.
func (h *ListingHandler) UpdateCategory(c *gin.Context) {
	categoryID, ok := front.ParseID(c, "id")
	if !ok {
		return
	}
	var body listing.CategoryInput
	if !front.BindJSON(c, &body) {
		return
	}
	row, errUpdate := h.listings.UpdateCategory(c.Request.Context(), front.CurrentUserID(c), categoryID, body)
	if errUpdate != nil {
		apperr.Write(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": front.PresentCategory(*row)})
}
