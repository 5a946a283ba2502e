package models

import (
	"time"

	"gorm.io/datatypes"
)

// TokenRecord is one spot token as served to the front end. TokenIndex is the
// identity; machine-derived columns are rewritten by every sync cycle while the
// embedded Curated columns belong to operators.
type TokenRecord struct {
	ID               uint64  `gorm:"primaryKey;autoIncrement" json:"-"`
	TokenIndex       int     `gorm:"not null;uniqueIndex;comment:stable spot token index" json:"tokenIndex"`
	Index            int     `gorm:"column:spot_index;not null;comment:spot index as listed upstream" json:"index"`
	Name             string  `gorm:"type:text;not null;index;comment:token ticker" json:"name"`
	TokenID          string  `gorm:"type:text;not null;comment:upstream token id" json:"tokenId"`
	StartPx          *string `gorm:"type:text;comment:reference start price" json:"startPx"`
	MarkPx           *string `gorm:"type:text;comment:current mark price" json:"markPx"`
	LaunchDate       *string `gorm:"type:text;comment:deploy date (YYYY-MM-DD)" json:"launchDate"`
	AuctionPrice     *string `gorm:"type:text;comment:seeded usdc / circulating supply" json:"auctionPrice"`
	LaunchCircSupply *string `gorm:"type:text;comment:circulating supply" json:"launchCircSupply"`
	LaunchMarketCap  *string `gorm:"type:text;comment:start px * circulating supply" json:"launchMarketCap"`

	Curated

	RawDetails  datatypes.JSON `gorm:"type:jsonb;comment:last token details payload" json:"-"`
	LastUpdated time.Time      `gorm:"type:timestamptz;not null;index;comment:last sync time" json:"lastUpdated"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;autoCreateTime" json:"-"`
}

func (TokenRecord) TableName() string {
	return "all_tokens"
}

// Curated holds operator-maintained fields. A nil field means "never set";
// WithDefaults fills those from DefaultCurated.
type Curated struct {
	TeamAllocation      *string `gorm:"type:text" json:"teamAllocation"`
	Airdrop1            *string `gorm:"type:text" json:"airdrop1"`
	Airdrop2            *string `gorm:"type:text" json:"airdrop2"`
	DevReputation       *bool   `json:"devReputation"`
	SpreadLessThanThree *bool   `json:"spreadLessThanThree"`
	ThickObLiquidity    *bool   `json:"thickObLiquidity"`
	NoSellPressure      *bool   `json:"noSellPressure"`
	Twitter             *string `gorm:"type:text" json:"twitter"`
	Telegram            *string `gorm:"type:text" json:"telegram"`
	Discord             *string `gorm:"type:text" json:"discord"`
	Website             *string `gorm:"type:text" json:"website"`
	Comment             *string `gorm:"type:text" json:"comment"`
	ProjectDescription  *string `gorm:"type:text" json:"projectDescription"`
	PersonalComment     *string `gorm:"type:text" json:"personalComment"`
	Highlighted         *bool   `json:"highlighted"`
}

// DefaultCurated is the value every curated field takes on first creation.
// TeamAllocation and the airdrops stay null.
func DefaultCurated() Curated {
	return Curated{
		DevReputation:       boolPtr(false),
		SpreadLessThanThree: boolPtr(false),
		ThickObLiquidity:    boolPtr(false),
		NoSellPressure:      boolPtr(false),
		Twitter:             strPtr(""),
		Telegram:            strPtr(""),
		Discord:             strPtr(""),
		Website:             strPtr(""),
		Comment:             strPtr(""),
		ProjectDescription:  strPtr(""),
		PersonalComment:     strPtr(""),
		Highlighted:         boolPtr(false),
	}
}

// WithDefaults returns c with every nil field replaced by the one in d.
// Fields already set in c are returned unchanged.
func (c Curated) WithDefaults(d Curated) Curated {
	out := c
	fillStr(&out.TeamAllocation, d.TeamAllocation)
	fillStr(&out.Airdrop1, d.Airdrop1)
	fillStr(&out.Airdrop2, d.Airdrop2)
	fillBool(&out.DevReputation, d.DevReputation)
	fillBool(&out.SpreadLessThanThree, d.SpreadLessThanThree)
	fillBool(&out.ThickObLiquidity, d.ThickObLiquidity)
	fillBool(&out.NoSellPressure, d.NoSellPressure)
	fillStr(&out.Twitter, d.Twitter)
	fillStr(&out.Telegram, d.Telegram)
	fillStr(&out.Discord, d.Discord)
	fillStr(&out.Website, d.Website)
	fillStr(&out.Comment, d.Comment)
	fillStr(&out.ProjectDescription, d.ProjectDescription)
	fillStr(&out.PersonalComment, d.PersonalComment)
	fillBool(&out.Highlighted, d.Highlighted)
	return out
}

func fillStr(dst **string, def *string) {
	if *dst == nil && def != nil {
		v := *def
		*dst = &v
	}
}

func fillBool(dst **bool, def *bool) {
	if *dst == nil && def != nil {
		v := *def
		*dst = &v
	}
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(v bool) *bool {
	return &v
}
