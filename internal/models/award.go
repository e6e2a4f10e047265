package models

import "time"

// RawAward is one award row as it arrives from the upstream search API or a
// CSV import, before validation. All fields are text; the cleaner owns type
// conversion.
type RawAward struct {
	AwardID       string
	RecipientName string
	Amount        string
	StartDate     string
	EndDate       string
	Agency        string
	StateCode     string
	StateName     string
	Description   string
	SourceKeyword string
}

// Award is a validated spending record. Rows are immutable once stored;
// re-collection upserts on AwardID.
type Award struct {
	AwardID       string    `json:"award_id" gorm:"primaryKey"`
	RecipientName string    `json:"recipient_name" gorm:"index"`
	Amount        float64   `json:"award_amount"`
	StartDate     time.Time `json:"start_date" gorm:"index"`
	EndDate       time.Time `json:"end_date"`
	Agency        string    `json:"awarding_agency"`
	StateCode     string    `json:"state_code" gorm:"index;size:2"`
	StateName     string    `json:"state_name"`
	Description   string    `json:"description"`
	SourceKeyword string    `json:"source_keyword"`
	RunID         string    `json:"run_id"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CategorizedAward augments an Award with the classification results.
type CategorizedAward struct {
	Award
	Technology     string `json:"technology_category"`
	MatchedKeyword string `json:"matched_keyword"`
	RecipientType  string `json:"recipient_type"`
}

// CollectionRun records one execution of the collector's task plan.
type CollectionRun struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Stored     int       `json:"stored"`
	Skipped    int       `json:"skipped"`
	Failures   int       `json:"failures"`
	Status     string    `json:"status"`
}

// SkipReport counts records excluded during cleaning, by reason.
type SkipReport struct {
	InvalidAmount     int `json:"invalid_amount"`
	NonPositiveAmount int `json:"non_positive_amount"`
	UnknownState      int `json:"unknown_state"`
	EmptyDescription  int `json:"empty_description"`
	MissingRecipient  int `json:"missing_recipient"`
	InvalidDate       int `json:"invalid_date"`
}

func (s SkipReport) Total() int {
	return s.InvalidAmount + s.NonPositiveAmount + s.UnknownState +
		s.EmptyDescription + s.MissingRecipient + s.InvalidDate
}

func (s *SkipReport) Add(other SkipReport) {
	s.InvalidAmount += other.InvalidAmount
	s.NonPositiveAmount += other.NonPositiveAmount
	s.UnknownState += other.UnknownState
	s.EmptyDescription += other.EmptyDescription
	s.MissingRecipient += other.MissingRecipient
	s.InvalidDate += other.InvalidDate
}

type StateSummary struct {
	StateCode        string  `json:"state_code"`
	StateName        string  `json:"state_name"`
	TotalFunding     float64 `json:"total_funding"`
	AwardCount       int     `json:"award_count"`
	AvgAwardSize     float64 `json:"avg_award_size"`
	UniqueRecipients int     `json:"unique_recipients"`
	KeywordCount     int     `json:"keyword_count"`
}

type TechnologySummary struct {
	Technology        string  `json:"technology_category"`
	TotalFunding      float64 `json:"total_funding"`
	AwardCount        int     `json:"award_count"`
	AvgAwardSize      float64 `json:"avg_award_size"`
	UniqueRecipients  int     `json:"unique_recipients"`
	FundingPercentage float64 `json:"funding_percentage"`
}

type RecipientSummary struct {
	RecipientName     string  `json:"recipient_name"`
	RecipientType     string  `json:"recipient_type"`
	TotalFunding      float64 `json:"total_funding"`
	AwardCount        int     `json:"award_count"`
	AvgAwardSize      float64 `json:"avg_award_size"`
	PrimaryState      string  `json:"primary_state"`
	PrimaryTechnology string  `json:"primary_technology"`
}

// TimePoint is one bucket of a monthly or quarterly series. Growth is the
// percentage change against the previous bucket; nil for the first bucket and
// for any change computed against a zero base.
type TimePoint struct {
	Bucket            string    `json:"bucket"`
	Start             time.Time `json:"start"`
	TotalFunding      float64   `json:"total_funding"`
	AwardCount        int       `json:"award_count"`
	AvgAwardSize      float64   `json:"avg_award_size"`
	CumulativeFunding float64   `json:"cumulative_funding"`
	Growth            *float64  `json:"growth,omitempty"`
}

type KeywordStat struct {
	Keyword      string  `json:"keyword"`
	Technology   string  `json:"technology_category"`
	TotalFunding float64 `json:"total_funding"`
	AwardCount   int     `json:"award_count"`
	StateCount   int     `json:"state_count"`
}

type SizeClassSummary struct {
	Class        string  `json:"size_class"`
	AwardCount   int     `json:"award_count"`
	TotalFunding float64 `json:"total_funding"`
}

type PeriodSummary struct {
	Name         string    `json:"name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalFunding float64   `json:"total_funding"`
	AwardCount   int       `json:"award_count"`
}

// PeriodDelta compares two named periods. PercentChange is nil when the base
// total is zero.
type PeriodDelta struct {
	Base           string   `json:"base"`
	Target         string   `json:"target"`
	BaseTotal      float64  `json:"base_total"`
	TargetTotal    float64  `json:"target_total"`
	AbsoluteChange float64  `json:"absolute_change"`
	PercentChange  *float64 `json:"percent_change"`
}

type PeriodStats struct {
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

const (
	ComparisonOK           = "ok"
	ComparisonInsufficient = "insufficient_data_for_comparison"
)

// PeriodComparison summarizes awards before and after a split date. When
// either side is empty Status carries ComparisonInsufficient and the change
// fields are zero or nil.
type PeriodComparison struct {
	SplitDate      time.Time   `json:"split_date"`
	Status         string      `json:"status"`
	Before         PeriodStats `json:"before"`
	After          PeriodStats `json:"after"`
	AbsoluteChange float64     `json:"absolute_change"`
	TotalChange    *float64    `json:"total_change"`
	MeanChange     *float64    `json:"mean_change"`
	CountChange    int         `json:"count_change"`
}

const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendFlat         = "flat"
	TrendInsufficient = "insufficient_data"
)

type TrendResult struct {
	Direction string             `json:"direction"`
	Slope     float64            `json:"slope"`
	Intercept float64            `json:"intercept"`
	Strength  float64            `json:"trend_strength"`
	RSquared  float64            `json:"r_squared"`
	Points    int                `json:"points"`
	Seasonal  map[string]float64 `json:"seasonal,omitempty"`
}

type GeographicPatterns struct {
	Gini              float64 `json:"gini_coefficient"`
	TopFiveShare      float64 `json:"top_five_share"`
	StatesWithFunding int     `json:"states_with_funding"`
}

type SummaryStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Total    float64 `json:"total"`
	CV       float64 `json:"cv"`
}

type DatasetSummary struct {
	AwardCount       int            `json:"award_count"`
	TotalFunding     float64        `json:"total_funding"`
	UniqueRecipients int            `json:"unique_recipients"`
	UniqueStates     int            `json:"unique_states"`
	EarliestStart    time.Time      `json:"earliest_start"`
	LatestStart      time.Time      `json:"latest_start"`
	Technologies     map[string]int `json:"technology_distribution"`
	RecipientTypes   map[string]int `json:"recipient_type_distribution"`
}

type Insight struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Metric      string  `json:"metric"`
}
