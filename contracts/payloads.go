package contracts

import "time"

// ProfileRequest is the GET_PROFILE payload. LegacyID accepts senders that
// use the document key.
type ProfileRequest struct {
	ID       string `json:"id,omitempty"`
	LegacyID string `json:"_id,omitempty"`
}

// CustomerID returns whichever id field is set
func (r ProfileRequest) CustomerID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LegacyID
}

// ProductViewed is the PRODUCT_VIEWED notification payload
type ProductViewed struct {
	CustomerID string    `json:"customerId"`
	ProductID  string    `json:"productId"`
	ViewedAt   time.Time `json:"viewedAt"`
}
