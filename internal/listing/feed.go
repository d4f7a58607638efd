package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
	"gorm.io/gorm"
)

// FeedItem is a ranked listing with its seller summary.
type FeedItem struct {
	Listing     models.Listing
	SellerName  string
	SellerPhone string // Empty unless the listing shows the phone.
	TrustScore  int
	Score       float64
}

type rankedRow struct {
	ID         uint64
	FullName   string
	Phone      string
	TrustScore int
	RankScore  float64
}

// rankExpr weighs the base ranking by the seller's trust score.
const rankExpr = "listings.ranking_score * (1 + COALESCE(trust_scores.score, 0) / 100.0)"

// ClampLimit bounds a page size to the feed limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return internalsettings.DefaultFeedLimit
	}
	if limit > internalsettings.MaxFeedLimit {
		return internalsettings.MaxFeedLimit
	}
	return limit
}

// Feed returns ACTIVE listings of visible sellers in ranked order.
func (s *Service) Feed(ctx context.Context, limit int) ([]FeedItem, error) {
	return s.ranked(ctx, "", ClampLimit(limit))
}

// Search returns ranked ACTIVE listings whose title or description contains query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]FeedItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []FeedItem{}, nil
	}
	return s.ranked(ctx, query, ClampLimit(limit))
}

func (s *Service) ranked(ctx context.Context, query string, limit int) ([]FeedItem, error) {
	conn := s.db.WithContext(ctx)
	q := conn.Table("listings").
		Select("listings.id AS id, users.full_name AS full_name, users.phone AS phone, COALESCE(trust_scores.score, 0) AS trust_score, "+rankExpr+" AS rank_score").
		Joins("JOIN users ON users.id = listings.user_id").
		Joins("LEFT JOIN trust_scores ON trust_scores.user_id = listings.user_id").
		Where("listings.status = ?", models.ListingStatusActive).
		Where("users.shadow_banned = ? AND users.is_blocked = ?", false, false)
	if query != "" {
		pattern := "%" + db.NormalizeLikePattern(conn, db.EscapeLike(query)) + "%"
		q = q.Where(
			conn.Where(db.CaseInsensitiveLikeExpr(conn, "listings.title"), pattern).
				Or(db.CaseInsensitiveLikeExpr(conn, "listings.description"), pattern),
		)
	}
	var rows []rankedRow
	if errFind := q.Order("rank_score DESC").Order("listings.published_at DESC").Order("listings.id DESC").
		Limit(limit).Scan(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("listing: ranked query: %w", errFind)
	}
	if len(rows) == 0 {
		return []FeedItem{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var listings []models.Listing
	if errFind := conn.
		Preload("Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC") }).
		Where("id IN ?", ids).
		Find(&listings).Error; errFind != nil {
		return nil, fmt.Errorf("listing: load ranked listings: %w", errFind)
	}
	byID := make(map[uint64]models.Listing, len(listings))
	for _, listing := range listings {
		byID[listing.ID] = listing
	}

	items := make([]FeedItem, 0, len(rows))
	for _, row := range rows {
		listing, ok := byID[row.ID]
		if !ok {
			continue
		}
		item := FeedItem{
			Listing:    listing,
			SellerName: row.FullName,
			TrustScore: row.TrustScore,
			Score:      row.RankScore,
		}
		if listing.ShowPhone {
			item.SellerPhone = row.Phone
		}
		items = append(items, item)
	}
	return items, nil
}
