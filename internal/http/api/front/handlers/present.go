package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/chat"
	"github.com/router-for-me/marketplace-core/internal/listing"
	"github.com/router-for-me/marketplace-core/internal/models"
	"gorm.io/datatypes"
)

// PresentUser renders the public profile of a user. Credentials never leave the service.
func PresentUser(user models.User) gin.H {
	return gin.H{
		"id":              user.ID,
		"fullName":        user.FullName,
		"fatherName":      user.FatherName,
		"cnic":            user.CNIC,
		"phone":           user.Phone,
		"email":           user.Email,
		"city":            user.City,
		"dateOfBirth":     user.DateOfBirth.Format("2006-01-02"),
		"gender":          user.Gender,
		"profilePhotoUrl": user.ProfilePhotoURL,
		"phoneVerifiedAt": user.PhoneVerifiedAt,
		"isBlocked":       user.IsBlocked,
		"shadowBanned":    user.ShadowBanned,
		"createdAt":       user.CreatedAt,
	}
}

// PresentListing renders a listing with its media.
func PresentListing(row models.Listing) gin.H {
	media := make([]gin.H, 0, len(row.Media))
	for _, item := range row.Media {
		media = append(media, gin.H{
			"id":          item.ID,
			"type":        item.Type,
			"url":         item.URL,
			"durationSec": item.DurationSec,
			"sortOrder":   item.SortOrder,
		})
	}
	return gin.H{
		"id":           row.ID,
		"userId":       row.UserID,
		"categoryId":   row.CategoryID,
		"title":        row.Title,
		"description":  row.Description,
		"price":        row.Price,
		"currency":     row.Currency,
		"showPhone":    row.ShowPhone,
		"allowChat":    row.AllowChat,
		"allowCall":    row.AllowCall,
		"allowSMS":     row.AllowSMS,
		"status":       row.Status,
		"rankingScore": row.RankingScore,
		"expiresAt":    row.ExpiresAt,
		"publishedAt":  row.PublishedAt,
		"media":        media,
		"createdAt":    row.CreatedAt,
		"updatedAt":    row.UpdatedAt,
	}
}

// PresentListings renders a slice of listings.
func PresentListings(rows []models.Listing) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, PresentListing(row))
	}
	return out
}

func presentFeedItems(items []listing.FeedItem) []gin.H {
	out := make([]gin.H, 0, len(items))
	for _, item := range items {
		entry := PresentListing(item.Listing)
		seller := gin.H{
			"id":         item.Listing.UserID,
			"fullName":   item.SellerName,
			"trustScore": item.TrustScore,
		}
		if item.SellerPhone != "" {
			seller["phone"] = item.SellerPhone
		}
		entry["seller"] = seller
		entry["score"] = item.Score
		out = append(out, entry)
	}
	return out
}

// PresentCategory renders a taxonomy node.
func PresentCategory(row models.Category) gin.H {
	return gin.H{
		"id":       row.ID,
		"name":     row.Name,
		"slug":     row.Slug,
		"parentId": row.ParentID,
		"depth":    row.Depth,
	}
}

// PresentCategories renders a slice of categories.
func PresentCategories(rows []models.Category) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, PresentCategory(row))
	}
	return out
}

// PresentThread renders a chat thread.
func PresentThread(thread models.ChatThread) gin.H {
	return gin.H{
		"id":            thread.ID,
		"listingId":     thread.ListingID,
		"buyerId":       thread.BuyerID,
		"sellerId":      thread.SellerID,
		"status":        thread.Status,
		"lastMessageAt": thread.LastMessageAt,
		"closedAt":      thread.ClosedAt,
		"createdAt":     thread.CreatedAt,
	}
}

func presentThreadViews(views []chat.ThreadView) []gin.H {
	out := make([]gin.H, 0, len(views))
	for _, view := range views {
		entry := PresentThread(view.Thread)
		entry["listing"] = view.Listing
		out = append(out, entry)
	}
	return out
}

func presentMessage(msg models.ChatMessage) gin.H {
	return gin.H{
		"id":        msg.ID,
		"threadId":  msg.ThreadID,
		"senderId":  msg.SenderID,
		"content":   msg.Content,
		"createdAt": msg.CreatedAt,
	}
}

// PresentReport renders a moderation report.
func PresentReport(report models.Report) gin.H {
	return gin.H{
		"id":              report.ID,
		"reporterId":      report.ReporterID,
		"targetUserId":    report.TargetUserID,
		"targetListingId": report.TargetListingID,
		"targetThreadId":  report.TargetThreadID,
		"status":          report.Status,
		"reason":          report.Reason,
		"resolvedAt":      report.ResolvedAt,
		"createdAt":       report.CreatedAt,
	}
}

// PresentTrustScore renders a cached trust score with its breakdown.
func PresentTrustScore(score models.TrustScore) gin.H {
	return gin.H{
		"userId":     score.UserID,
		"score":      score.Score,
		"breakdown":  RawJSON(score.Breakdown),
		"computedAt": score.ComputedAt,
	}
}

// RawJSON passes stored JSON through to the response. Empty values render as null.
func RawJSON(value datatypes.JSON) json.RawMessage {
	if len(value) == 0 {
		return nil
	}
	return json.RawMessage(value)
}
