package listsync

import (
	"encoding/json"
	"strings"
	"time"
)

// RemoteStatus is a member's subscription state on the list platform.
type RemoteStatus string

const (
	RemoteSubscribed   RemoteStatus = "subscribed"
	RemoteUnsubscribed RemoteStatus = "unsubscribed"
)

// RemoteMember is one subscriber as the list platform sees it.
type RemoteMember struct {
	Email    string       `json:"email"`
	Name     string       `json:"name"`
	Status   RemoteStatus `json:"status"`
	SignupAt time.Time    `json:"signup_at"`
}

// memberJSON is the platform's wire representation of a member.
type memberJSON struct {
	EmailAddress string            `json:"email_address"`
	Status       string            `json:"status"`
	MergeFields  map[string]string `json:"merge_fields"`
	TimestampOpt string            `json:"timestamp_opt"`
}

// memberListResponse is the envelope for the paged member listing.
type memberListResponse struct {
	Members    []memberJSON `json:"members"`
	TotalItems int          `json:"total_items"`
}

// memberPatch is the body for status updates and member creation.
type memberPatch struct {
	EmailAddress string `json:"email_address,omitempty"`
	Status       string `json:"status"`
}

// apiError is the platform's error envelope.
type apiError struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (m memberJSON) toRemoteMember() RemoteMember {
	status := RemoteSubscribed
	// The platform reports cleaned/pending states too; anything that is not
	// an explicit unsubscribe counts as subscribed for reconciliation.
	if strings.EqualFold(m.Status, string(RemoteUnsubscribed)) {
		status = RemoteUnsubscribed
	}

	var signup time.Time
	if m.TimestampOpt != "" {
		if t, err := time.Parse(time.RFC3339, m.TimestampOpt); err == nil {
			signup = t
		}
	}

	return RemoteMember{
		Email:    strings.ToLower(strings.TrimSpace(m.EmailAddress)),
		Name:     m.MergeFields["NAME"],
		Status:   status,
		SignupAt: signup,
	}
}

func parseAPIError(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Title == "" {
		return ""
	}
	return e.Title + ": " + e.Detail
}
