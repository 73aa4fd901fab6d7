package graph

// Page is a Facebook page the token can manage.
type Page struct {
	ID                       string          `facebook:"id" json:"id"`
	Name                     string          `facebook:"name" json:"name"`
	InstagramBusinessAccount BusinessAccount `facebook:"instagram_business_account" json:"instagram_business_account,omitempty"`
}

// BusinessAccount is the Instagram business account linked to a page.
type BusinessAccount struct {
	ID       string `facebook:"id" json:"id,omitempty"`
	Username string `facebook:"username" json:"username,omitempty"`
}

// Linked reports whether the page has an Instagram business account.
func (p Page) Linked() bool {
	return p.InstagramBusinessAccount.ID != ""
}

// AccountInfo is the profile of an Instagram business account.
type AccountInfo struct {
	ID                string `facebook:"id" json:"id"`
	Username          string `facebook:"username" json:"username"`
	Name              string `facebook:"name" json:"name"`
	ProfilePictureURL string `facebook:"profile_picture_url" json:"profile_picture_url"`
	Biography         string `facebook:"biography" json:"biography"`
	FollowersCount    int64  `facebook:"followers_count" json:"followers_count"`
	FollowsCount      int64  `facebook:"follows_count" json:"follows_count"`
	MediaCount        int64  `facebook:"media_count" json:"media_count"`
}

// Media is a published post, reel or story.
type Media struct {
	ID            string `facebook:"id" json:"id"`
	Caption       string `facebook:"caption" json:"caption"`
	MediaType     string `facebook:"media_type" json:"media_type"`
	MediaURL      string `facebook:"media_url" json:"media_url"`
	ThumbnailURL  string `facebook:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Permalink     string `facebook:"permalink" json:"permalink"`
	Timestamp     string `facebook:"timestamp" json:"timestamp"`
	LikeCount     int64  `facebook:"like_count" json:"like_count"`
	CommentsCount int64  `facebook:"comments_count" json:"comments_count"`
	Username      string `facebook:"username" json:"username,omitempty"`
}

// Insight is one metric returned by an insights edge.
type Insight struct {
	Name        string         `facebook:"name" json:"name"`
	Period      string         `facebook:"period" json:"period"`
	Title       string         `facebook:"title" json:"title"`
	Description string         `facebook:"description" json:"description"`
	Values      []InsightValue `facebook:"values" json:"values"`
}

// InsightValue is a metric value, optionally bound to an end time.
type InsightValue struct {
	Value   interface{} `facebook:"value" json:"value"`
	EndTime string      `facebook:"end_time" json:"end_time,omitempty"`
}

// Comment is a comment on a media object.
type Comment struct {
	ID        string      `facebook:"id" json:"id"`
	Text      string      `facebook:"text" json:"text"`
	Username  string      `facebook:"username" json:"username,omitempty"`
	From      CommentFrom `facebook:"from" json:"from"`
	Timestamp string      `facebook:"timestamp" json:"timestamp"`
}

// CommentFrom identifies a comment author.
type CommentFrom struct {
	ID       string `facebook:"id" json:"id"`
	Username string `facebook:"username" json:"username"`
}

// Recipient addresses a direct message. Exactly one field is set:
// ID for a user, CommentID for a private reply to a comment.
type Recipient struct {
	ID        string `json:"id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

func (r Recipient) params() map[string]string {
	if r.CommentID != "" {
		return map[string]string{"comment_id": r.CommentID}
	}
	return map[string]string{"id": r.ID}
}

// MessageResult is the response of the messages edge.
type MessageResult struct {
	RecipientID string `facebook:"recipient_id" json:"recipient_id"`
	MessageID   string `facebook:"message_id" json:"message_id"`
}

// PostInput describes an image post to create.
type PostInput struct {
	MediaURL   string `json:"media_url"`
	Caption    string `json:"caption"`
	LocationID string `json:"location_id,omitempty"`
}

// StoryInput describes an image story to create.
type StoryInput struct {
	MediaURL string `json:"media_url"`
	Caption  string `json:"caption"`
}

var (
	// DefaultPostMetrics is used when GetPostInsights gets no metrics.
	DefaultPostMetrics = []string{"impressions", "reach", "saved"}
	// DefaultAccountMetrics is used when GetAccountInsights gets no metrics.
	DefaultAccountMetrics = []string{"impressions", "reach", "profile_views"}
)

const (
	mediaFields   = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp,like_count,comments_count"
	accountFields = "id,username,name,profile_picture_url,biography,followers_count,follows_count,media_count"
	commentFields = "id,text,username,from,timestamp"
)
