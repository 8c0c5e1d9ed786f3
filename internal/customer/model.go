package customer

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Status of a customer account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// AddressType distinguishes home and business addresses
type AddressType string

const (
	AddressHome     AddressType = "home"
	AddressBusiness AddressType = "business"
)

// Customer is a stored account
type Customer struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	FirstName      string        `bson:"firstName" json:"firstName"`
	LastName       string        `bson:"lastName" json:"lastName"`
	Email          string        `bson:"email" json:"email"`
	Password       string        `bson:"password" json:"-"`
	Phone          string        `bson:"phone" json:"phone"`
	ProfileImage   string        `bson:"profileImage" json:"profileImage"`
	VerifiedEmail  bool          `bson:"verifiedEmail" json:"verifiedEmail"`
	VerifiedMobile bool          `bson:"verifiedMobile" json:"verifiedMobile"`
	Status         Status        `bson:"status" json:"status"`
	Tokens         []string      `bson:"token" json:"-"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Profile is the public view of a customer
type Profile struct {
	ID             string `json:"_id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	VerifiedEmail  bool   `json:"verifiedEmail"`
	VerifiedMobile bool   `json:"verifiedMobile"`
}

func (c *Customer) Profile() Profile {
	return Profile{
		ID:             c.ID.Hex(),
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		Phone:          c.Phone,
		VerifiedEmail:  c.VerifiedEmail,
		VerifiedMobile: c.VerifiedMobile,
	}
}

// Address belongs to one customer
type Address struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Customer  bson.ObjectID `bson:"customer" json:"customer"`
	Name      string        `bson:"name" json:"name"`
	Phone     string        `bson:"phone" json:"phone"`
	Address1  string        `bson:"address1" json:"address1"`
	Address2  string        `bson:"address2" json:"address2"`
	Landmark  string        `bson:"landmark" json:"landmark"`
	PinCode   string        `bson:"pinCode" json:"pinCode"`
	City      string        `bson:"city" json:"city"`
	State     string        `bson:"state" json:"state"`
	Country   string        `bson:"country" json:"country"`
	IsDefault bool          `bson:"isDefault" json:"isDefault"`
	Type      AddressType   `bson:"type" json:"type"`
	CreatedAt time.Time     `bson:"createdAt" json:"-"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"-"`
}
