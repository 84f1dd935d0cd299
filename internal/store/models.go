package store

import "time"

// ModerationStatus tracks review state of a question.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// Valid reports whether m is a known status.
func (m ModerationStatus) Valid() bool {
	switch m {
	case ModerationPending, ModerationApproved, ModerationRejected:
		return true
	}
	return false
}

// Choice is a yes/no ballot.
type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

// Valid reports whether c is yes or no.
func (c Choice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo
}

// Question sources.
const (
	SourceUser     = "user"
	SourceAI       = "ai"
	SourceTrending = "trending"
)

// Question is a yes/no poll question.
type Question struct {
	ID               string           `db:"id" json:"id"`
	Text             string           `db:"text" json:"text"`
	Source           string           `db:"source" json:"source"`
	TopicID          *string          `db:"topic_id" json:"topic_id,omitempty"`
	TrendingTopicID  *string          `db:"trending_topic_id" json:"trending_topic_id,omitempty"`
	IsTrending       bool             `db:"is_trending" json:"is_trending"`
	ModerationStatus ModerationStatus `db:"moderation_status" json:"moderation_status"`
	TrendingScore    *int             `db:"trending_score" json:"trending_score,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Voter identifies who casts a vote. Exactly one of UserID or SessionID is
// stored; an authenticated user wins over a session.
type Voter struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Anonymous reports whether the voter has no authenticated user id.
func (v Voter) Anonymous() bool {
	return v.UserID == ""
}

// Key returns a stable identity string for the voter.
func (v Voter) Key() string {
	if v.UserID != "" {
		return "user:" + v.UserID
	}
	return "session:" + v.SessionID
}

func (v Voter) columns() (userID, sessionID *string, err error) {
	switch {
	case v.UserID != "":
		return &v.UserID, nil, nil
	case v.SessionID != "":
		return nil, &v.SessionID, nil
	}
	return nil, nil, ErrNoVoter
}

// Vote is a ballot on a Question.
type Vote struct {
	ID          string    `db:"id" json:"id"`
	QuestionID  string    `db:"question_id" json:"question_id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	SessionID   *string   `db:"session_id" json:"session_id,omitempty"`
	Choice      Choice    `db:"choice" json:"choice"`
	IsAnonymous bool      `db:"is_anonymous" json:"is_anonymous"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Tally is the yes/no count for a question.
type Tally struct {
	QuestionID string `json:"question_id"`
	Yes        int    `json:"yes"`
	No         int    `json:"no"`
}

// Total returns the number of votes.
func (t Tally) Total() int { return t.Yes + t.No }

// YesPercent returns the share of yes votes rounded to a whole percent.
func (t Tally) YesPercent() int {
	if t.Total() == 0 {
		return 0
	}
	return (t.Yes*100 + t.Total()/2) / t.Total()
}

// TrendingTopic is a candidate poll question derived from an external signal.
type TrendingTopic struct {
	ID            string    `db:"id" json:"id"`
	Source        string    `db:"source" json:"source"`
	RawTopic      string    `db:"raw_topic" json:"raw_topic"`
	Summary       string    `db:"summary" json:"summary"`
	QuestionText  string    `db:"question_text" json:"question_text"`
	Context       string    `db:"context" json:"context"`
	Category      string    `db:"category" json:"category"`
	Keywords      []string  `db:"-" json:"keywords"`
	KeywordsJSON  string    `db:"keywords" json:"-"`
	TrendingScore int       `db:"trending_score" json:"trending_score"`
	VoteCount     int       `db:"vote_count" json:"vote_count"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	IsSafe        bool      `db:"is_safe" json:"is_safe"`
	ScrapedAt     time.Time `db:"scraped_at" json:"scraped_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TrendVote is a vote on a TrendingTopic.
type TrendVote struct {
	ID              string    `db:"id" json:"id"`
	TrendingTopicID string    `db:"trending_topic_id" json:"trending_topic_id"`
	UserID          *string   `db:"user_id" json:"user_id,omitempty"`
	SessionID       *string   `db:"session_id" json:"session_id,omitempty"`
	IsAnonymous     bool      `db:"is_anonymous" json:"is_anonymous"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CrownedTrend is the daily winning topic.
type CrownedTrend struct {
	ID              string    `db:"id" json:"id"`
	TrendingTopicID string    `db:"trending_topic_id" json:"trending_topic_id"`
	VoteCount       int       `db:"vote_count" json:"vote_count"`
	CrownedDate     string    `db:"crowned_date" json:"crowned_date"`
	VoiceScript     string    `db:"voice_script" json:"voice_script"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Category groups AI topic suggestions for the topic selector.
type Category struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Icon        string `db:"icon" json:"icon"`
}

// AITopic is a curated or AI-suggested question for a category.
type AITopic struct {
	ID           string    `db:"id" json:"id"`
	CategoryID   string    `db:"category_id" json:"category_id"`
	Title        string    `db:"title" json:"title"`
	QuestionText string    `db:"question_text" json:"question_text"`
	Description  string    `db:"description" json:"description"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SchedulerState is the scheduler's persisted bookkeeping.
type SchedulerState struct {
	LastUpdate        *time.Time `db:"last_update" json:"last_update,omitempty"`
	NextUpdate        *time.Time `db:"next_update" json:"next_update,omitempty"`
	LastBreakingCheck *time.Time `db:"last_breaking_check" json:"last_breaking_check,omitempty"`
	IsUpdating        bool       `db:"is_updating" json:"is_updating"`
}

// QuestionListOpts controls question listing.
type QuestionListOpts struct {
	Status ModerationStatus
	Limit  int
}

// TopicListOpts controls trending topic listing.
type TopicListOpts struct {
	Category   string
	ActiveOnly bool
	Since      time.Time
	Limit      int
}
