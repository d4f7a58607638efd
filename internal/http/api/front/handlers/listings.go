package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
)

// ListingHandler serves listing, feed and category endpoints.
type ListingHandler struct {
	listings *listing.Service
}

// NewListingHandler constructs a ListingHandler.
func NewListingHandler(listings *listing.Service) *ListingHandler {
	return &ListingHandler{listings: listings}
}

// Feed returns the ranked ACTIVE listings.
func (h *ListingHandler) Feed(c *gin.Context) {
	limit := listing.ClampLimit(QueryLimit(c))
	items, errFeed := h.listings.Feed(c.Request.Context(), limit)
	if errFeed != nil {
		apperr.Write(c, errFeed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": presentFeedItems(items), "limit": limit})
}

// Search returns ranked ACTIVE listings whose title or description matches q.
func (h *ListingHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	limit := listing.ClampLimit(QueryLimit(c))
	items, errSearch := h.listings.Search(c.Request.Context(), query, limit)
	if errSearch != nil {
		apperr.Write(c, errSearch)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": presentFeedItems(items), "query": query, "limit": limit})
}

// Create stores a DRAFT listing for the caller.
func (h *ListingHandler) Create(c *gin.Context) {
	var body listing.CreateInput
	if !BindJSON(c, &body) {
		return
	}
	row, errCreate := h.listings.Create(c.Request.Context(), CurrentUserID(c), body)
	if errCreate != nil {
		apperr.Write(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"listing": PresentListing(*row)})
}

// Mine returns the caller's listings in every state.
func (h *ListingHandler) Mine(c *gin.Context) {
	rows, errList := h.listings.Mine(c.Request.Context(), CurrentUserID(c))
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": PresentListings(rows)})
}

// Get returns one listing. Anonymous callers only see ACTIVE listings.
func (h *ListingHandler) Get(c *gin.Context) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	row, errGet := h.listings.Get(c.Request.Context(), CurrentUserID(c), id)
	if errGet != nil {
		apperr.Write(c, errGet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": PresentListing(*row)})
}

// Activate publishes a DRAFT or PAUSED listing.
func (h *ListingHandler) Activate(c *gin.Context) {
	h.transition(c, h.listings.Activate)
}

// MarkSold moves an ACTIVE listing to SOLD.
func (h *ListingHandler) MarkSold(c *gin.Context) {
	h.transition(c, h.listings.MarkSold)
}

// Deactivate pauses an ACTIVE listing.
func (h *ListingHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.listings.Deactivate)
}

func (h *ListingHandler) transition(c *gin.Context, apply func(ctx context.Context, userID, listingID uint64) (*models.Listing, error)) {
	id, ok := ParseID(c, "id")
	if !ok {
		return
	}
	row, errApply := apply(c.Request.Context(), CurrentUserID(c), id)
	if errApply != nil {
		apperr.Write(c, errApply)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": PresentListing(*row)})
}

// Categories returns the taxonomy.
func (h *ListingHandler) Categories(c *gin.Context) {
	rows, errList := h.listings.Categories(c.Request.Context())
	if errList != nil {
		apperr.Write(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": PresentCategories(rows)})
}
