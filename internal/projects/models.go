package projects

import (
	"strings"
	"time"
)

// Project is the off-chain metadata record of a fundraising project
type Project struct {
	ID           string      `bson:"_id" json:"id"`
	Title        string      `bson:"title" json:"title"`
	Description  string      `bson:"description" json:"description"`
	ImageURL     string      `bson:"image_url" json:"imageUrl"`
	FundingGoal  *float64    `bson:"funding_goal,omitempty" json:"fundingGoal,omitempty"`
	Deadline     int64       `bson:"deadline" json:"deadline"` // unix seconds
	CreatorName  string      `bson:"creator_name" json:"creatorName"`
	Category     Category    `bson:"category" json:"category"`
	WebsiteURL   string      `bson:"website_url" json:"websiteUrl"`
	Contributors []string    `bson:"contributors" json:"contributors"`
	TxHash       string      `bson:"tx_hash,omitempty" json:"txHash,omitempty"`
	ChainStatus  ChainStatus `bson:"chain_status" json:"chainStatus"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updatedAt"`
}

// Category is the tag a project is listed under
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryTechnology  Category = "technology"
	CategoryArt         Category = "art"
	CategoryMusic       Category = "music"
	CategoryFilm        Category = "film"
	CategoryGames       Category = "games"
	CategoryEducation   Category = "education"
	CategoryHealth      Category = "health"
	CategoryEnvironment Category = "environment"
	CategoryCommunity   Category = "community"
	CategoryOther       Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryGeneral:     {},
	CategoryTechnology:  {},
	CategoryArt:         {},
	CategoryMusic:       {},
	CategoryFilm:        {},
	CategoryGames:       {},
	CategoryEducation:   {},
	CategoryHealth:      {},
	CategoryEnvironment: {},
	CategoryCommunity:   {},
	CategoryOther:       {},
}

// ParseCategory maps free-form input onto a known category. Empty input yields
// the general category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if c == "" {
		return CategoryGeneral, true
	}
	_, ok := knownCategories[c]
	return c, ok
}

// ChainStatus tracks the on-chain counterpart of a record
type ChainStatus string

const (
	ChainStatusNone      ChainStatus = "none"
	ChainStatusSubmitted ChainStatus = "submitted"
	ChainStatusConfirmed ChainStatus = "confirmed"
	ChainStatusReverted  ChainStatus = "reverted"
)

// CreateProjectRequest carries the fields of a create-project call
type CreateProjectRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"imageUrl"`
	FundingGoal  *float64 `json:"fundingGoal"`
	Deadline     int64    `json:"deadline"`
	CreatorName  string   `json:"creatorName"`
	Contributors []string `json:"contributors"`
	Category     string   `json:"category"`
	WebsiteURL   string   `json:"websiteUrl"`
}

// NormalizeContributors trims entries and drops the blank ones
func NormalizeContributors(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the record invariants and reports every failing field
func (p *Project) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(p.Title) == "" {
		verr.Add("title", "title is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		verr.Add("description", "description is required")
	}
	if strings.TrimSpace(p.ImageURL) == "" {
		verr.Add("imageUrl", "image reference is required")
	}
	if p.FundingGoal != nil && !(*p.FundingGoal > 0) {
		verr.Add("fundingGoal", "funding goal must be a positive number")
	}
	if _, ok := knownCategories[p.Category]; !ok {
		verr.Add("category", "unknown category")
	}
	for _, c := range p.Contributors {
		if strings.TrimSpace(c) == "" {
			verr.Add("contributors", "contributors must not contain blank entries")
			break
		}
	}
	return verr.OrNil()
}
