package app

import (
	"strings"

	"github.com/router-for-me/marketplace-core/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// missingAdmins returns the allow-listed emails that have no account yet.
func missingAdmins(conn *gorm.DB, emails []string) []string {
	if conn == nil || len(emails) == 0 {
		return nil
	}
	wanted := make([]string, 0, len(emails))
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			wanted = append(wanted, email)
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	var found []string
	if errFind := conn.Model(&models.User{}).Where("email IN ?", wanted).Pluck("email", &found).Error; errFind != nil {
		log.WithError(errFind).Warn("check admin accounts")
		return nil
	}
	present := make(map[string]struct{}, len(found))
	for _, email := range found {
		present[email] = struct{}{}
	}
	var missing []string
	for _, email := range wanted {
		if _, ok := present[email]; !ok {
			missing = append(missing, email)
		}
	}
	return missing
}
