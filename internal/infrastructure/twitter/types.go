// Package twitter fetches recent posts for a handle from the Twitter API v2.
//
// The client resolves a handle to a numeric user id and then reads that user's
// timeline. It knows nothing about quotas; callers decide whether a call may be
// spent.
package twitter

// User is a resolved account.
type User struct {
	ID       string
	Username string
	Name     string
}

type publicMetrics struct {
	Likes    int `json:"like_count"`
	Retweets int `json:"retweet_count"`
	Replies  int `json:"reply_count"`
	Quotes   int `json:"quote_count"`
}

type userResponse struct {
	Data *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type tweetsResponse struct {
	Data []struct {
		ID            string  `json:"id"`
		Text          string  `json:"text"`
		AuthorID      string  `json:"author_id"`
		CreatedAt     string  `json:"created_at"`
		PublicMetrics publicMetrics `json:"public_metrics"`
		Attachments   struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
		Entities struct {
			URLs []struct {
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey        string `json:"media_key"`
			Type            string `json:"type"`
			URL             string `json:"url"`
			PreviewImageURL string `json:"preview_image_url"`
		} `json:"media"`
	} `json:"includes"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}
