package listing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/router-for-me/marketplace-core/internal/apperr"
	"github.com/router-for-me/marketplace-core/internal/audit"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/validation"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CategoryInput creates or replaces a category.
type CategoryInput struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Slug     string  `json:"slug" validate:"required,max=128"`
	ParentID *uint64 `json:"parentId"`
}

// Categories returns the taxonomy ordered by depth and name.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if errFind := s.db.WithContext(ctx).Order("depth ASC").Order("name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("listing: list categories: %w", errFind)
	}
	return rows, nil
}

func normalizeCategory(in *CategoryInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if errValidate := validation.Struct(*in); errValidate != nil {
		return errValidate
	}
	if !slugPattern.MatchString(in.Slug) {
		return apperr.ValidationFields("invalid fields: slug", map[string]string{"slug": "must be lowercase words joined by dashes"})
	}
	return nil
}

// CreateCategory adds a category under an optional parent.
func (s *Service) CreateCategory(ctx context.Context, adminID uint64, in CategoryInput) (*models.Category, error) {
	if errNormalize := normalizeCategory(&in); errNormalize != nil {
		return nil, errNormalize
	}
	now := s.nowFn().UTC()
	category := models.Category{Name: in.Name, Slug: in.Slug, ParentID: in.ParentID}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		depth, errDepth := parentDepth(tx, in.ParentID)
		if errDepth != nil {
			return errDepth
		}
		category.Depth = depth
		if errCreate := tx.Create(&category).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return apperr.New(apperr.KindConflict, "SLUG_TAKEN", "category slug already exists")
			}
			return fmt.Errorf("listing: create category: %w", errCreate)
		}
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "CATEGORY_CREATED",
			TargetType: models.AuditTargetCategory,
			TargetID:   strconv.FormatUint(category.ID, 10),
			Metadata:   map[string]any{"slug": category.Slug, "parentId": category.ParentID},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	return &category, nil
}

// UpdateCategory replaces a category's name, slug and parent and re-derives descendant depths.
func (s *Service) UpdateCategory(ctx context.Context, adminID, categoryID uint64, in CategoryInput) (*models.Category, error) {
	if errNormalize := normalizeCategory(&in); errNormalize != nil {
		return nil, errNormalize
	}
	now := s.nowFn().UTC()
	var category models.Category
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&category, categoryID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category not found")
			}
			return fmt.Errorf("listing: load category: %w", errFind)
		}
		if errCycle := checkNoCycle(tx, categoryID, in.ParentID); errCycle != nil {
			return errCycle
		}
		depth, errDepth := parentDepth(tx, in.ParentID)
		if errDepth != nil {
			return errDepth
		}
		previous := map[string]any{"name": category.Name, "slug": category.Slug, "parentId": category.ParentID}
		if errUpdate := tx.Model(&category).Updates(map[string]any{
			"name":       in.Name,
			"slug":       in.Slug,
			"parent_id":  in.ParentID,
			"depth":      depth,
			"updated_at": now,
		}).Error; errUpdate != nil {
			if db.IsUniqueViolation(errUpdate) {
				return apperr.New(apperr.KindConflict, "SLUG_TAKEN", "category slug already exists")
			}
			return fmt.Errorf("listing: update category: %w", errUpdate)
		}
		category.Name, category.Slug, category.ParentID, category.Depth = in.Name, in.Slug, in.ParentID, depth
		if errDepths := refreshDescendantDepths(tx, category.ID, depth); errDepths != nil {
			return errDepths
		}
		return audit.Record(tx, audit.Entry{
			AdminID:    adminID,
			Action:     "CATEGORY_UPDATED",
			TargetType: models.AuditTargetCategory,
			TargetID:   strconv.FormatUint(category.ID, 10),
			Metadata:   map[string]any{"previous": previous, "slug": category.Slug, "parentId": category.ParentID},
		}, now)
	})
	if errTx != nil {
		return nil, errTx
	}
	return &category, nil
}

func parentDepth(tx *gorm.DB, parentID *uint64) (int, error) {
	if parentID == nil {
		return 0, nil
	}
	var parent models.Category
	if errFind := tx.Select("id", "depth").First(&parent, *parentID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("parent category not found")
		}
		return 0, fmt.Errorf("listing: load parent category: %w", errFind)
	}
	return parent.Depth + 1, nil
}

// checkNoCycle rejects a parent that is the category itself or one of its descendants.
func checkNoCycle(tx *gorm.DB, categoryID uint64, parentID *uint64) error {
	for cursor := parentID; cursor != nil; {
		if *cursor == categoryID {
			return apperr.BadRequest("category cannot be its own ancestor")
		}
		var node models.Category
		if errFind := tx.Select("id", "parent_id").First(&node, *cursor).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("listing: walk category parents: %w", errFind)
		}
		cursor = node.ParentID
	}
	return nil
}

func refreshDescendantDepths(tx *gorm.DB, rootID uint64, rootDepth int) error {
	frontier := []uint64{rootID}
	depth := rootDepth
	for len(frontier) > 0 {
		depth++
		var children []uint64
		if errFind := tx.Model(&models.Category{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; errFind != nil {
			return fmt.Errorf("listing: load child categories: %w", errFind)
		}
		if len(children) == 0 {
			return nil
		}
		if errUpdate := tx.Model(&models.Category{}).Where("id IN ?", children).Update("depth", depth).Error; errUpdate != nil {
			return fmt.Errorf("listing: update child depths: %w", errUpdate)
		}
		frontier = children
	}
	return nil
}
