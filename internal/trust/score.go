// Package trust derives the 0-100 reputation score of a user.
package trust

import (
	"math"
	"time"
)

// Formula weights.
const (
	weightResponseRate = 30
	weightSoldRatio    = 40
	weightAccountAge   = 20
	weightReports      = 10

	fullAgeDays        = 365
	fullPenaltyReports = 8
)

// Inputs are the base-table counts the score is computed from.
type Inputs struct {
	SellerThreads    int64 // Threads where the user is the seller.
	RespondedThreads int64 // Seller threads with at least one seller message.
	RelevantListings int64 // ACTIVE, SOLD and EXPIRED listings.
	SoldListings     int64 // SOLD listings.
	Reports          int64 // OPEN, IN_REVIEW and RESOLVED reports against the user.
	AccountAgeDays   int   // Whole days since signup.
}

// Components are the rounded per-term contributions.
type Components struct {
	ResponseRate int `json:"responseRate"`
	SoldRatio    int `json:"soldRatio"`
	AccountAge   int `json:"accountAge"`
	Reports      int `json:"reports"`
}

// Breakdown is stored alongside the score.
type Breakdown struct {
	ResponseRate    float64    `json:"responseRate"`
	SoldRatio       float64    `json:"soldRatio"`
	ReportsPenalty  float64    `json:"reportsPenalty"`
	AccountAgeDays  int        `json:"accountAgeDays"`
	ComponentScores Components `json:"componentScores"`
}

// Result is a computed score with its breakdown.
type Result struct {
	Score     int
	Breakdown Breakdown
}

// Compute applies the trust formula. It is a pure function of in.
func Compute(in Inputs) Result {
	responseRate := 1.0
	if in.SellerThreads > 0 {
		responseRate = float64(in.RespondedThreads) / float64(in.SellerThreads)
	}
	soldRatio := 0.0
	if in.RelevantListings > 0 {
		soldRatio = float64(in.SoldListings) / float64(in.RelevantListings)
	}
	ageDays := in.AccountAgeDays
	if ageDays < 0 {
		ageDays = 0
	}
	ageScore := math.Min(1, float64(ageDays)/fullAgeDays)
	penalty := math.Min(1, float64(in.Reports)/fullPenaltyReports)

	raw := responseRate*weightResponseRate +
		soldRatio*weightSoldRatio +
		ageScore*weightAccountAge +
		(1-penalty)*weightReports

	return Result{
		Score: clamp(int(math.Round(raw))),
		Breakdown: Breakdown{
			ResponseRate:   responseRate,
			SoldRatio:      soldRatio,
			ReportsPenalty: penalty,
			AccountAgeDays: ageDays,
			ComponentScores: Components{
				ResponseRate: int(math.Round(responseRate * weightResponseRate)),
				SoldRatio:    int(math.Round(soldRatio * weightSoldRatio)),
				AccountAge:   int(math.Round(ageScore * weightAccountAge)),
				Reports:      int(math.Round((1 - penalty) * weightReports)),
			},
		},
	}
}

// AccountAgeDays returns the whole days between createdAt and now.
func AccountAgeDays(createdAt, now time.Time) int {
	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
