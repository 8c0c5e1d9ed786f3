package customer

import (
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SignUpInput is the body of POST /signup
type SignUpInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
}

// SignInInput is the body of POST /login
type SignInInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AddressInput is the body of POST /address/add
type AddressInput struct {
	Name      string      `json:"name"`
	Mobile    string      `json:"mobile"`
	Address1  string      `json:"address1"`
	Address2  string      `json:"address2"`
	Landmark  string      `json:"landmark"`
	PinCode   string      `json:"pinCode"`
	City      string      `json:"city"`
	State     string      `json:"state"`
	Country   string      `json:"country"`
	IsDefault *bool       `json:"isDefault"`
	Type      AddressType `json:"type"`
}

type rules struct {
	fields []FieldError
}

func (r *rules) add(field, message string) {
	r.fields = append(r.fields, FieldError{Field: field, Message: message})
}

func (r *rules) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		r.add(field, field+" is required")
		return false
	}
	return true
}

func (r *rules) exactLength(field, value string, n int) {
	if !r.required(field, value) {
		return
	}
	if utf8.RuneCountInString(value) != n || !digits(value) {
		r.add(field, field+" must be exactly "+strconv.Itoa(n)+" digits")
	}
}

func (r *rules) err() error {
	if len(r.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: r.fields}
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (in SignUpInput) Validate() error {
	var r rules
	r.required("firstName", in.FirstName)
	r.required("lastName", in.LastName)
	if r.required("email", in.Email) {
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			r.add("email", "email must be a valid email")
		}
	}
	if r.required("password", in.Password) {
		if n := utf8.RuneCountInString(in.Password); n < 6 || n > 12 {
			r.add("password", "password length must be between 6 and 12 characters")
		}
	}
	r.exactLength("phone", in.Phone, 10)
	return r.err()
}

func (in SignInInput) Validate() error {
	var r rules
	r.required("username", in.Username)
	r.required("password", in.Password)
	return r.err()
}

func (in AddressInput) Validate() error {
	var r rules
	r.required("name", in.Name)
	r.exactLength("mobile", in.Mobile, 10)
	r.required("address1", in.Address1)
	r.required("landmark", in.Landmark)
	r.required("pinCode", in.PinCode)
	r.required("city", in.City)
	r.required("state", in.State)
	r.required("country", in.Country)
	if in.IsDefault == nil {
		r.add("isDefault", "isDefault is required")
	}
	switch in.Type {
	case "", AddressHome, AddressBusiness:
	default:
		r.add("type", "type must be one of [home, business]")
	}
	return r.err()
}
