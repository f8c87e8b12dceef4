package model

import "fmt"

// Address is a postal and contact address used for shipping or billing.
type Address struct {
	ID         string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Validate validates the address.
func (a Address) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("address id is required: %w", ErrNotValid)
	}
	if a.Address1 == "" {
		return fmt.Errorf("address line 1 is required: %w", ErrNotValid)
	}
	if a.City == "" {
		return fmt.Errorf("address city is required: %w", ErrNotValid)
	}
	if a.Country == "" {
		return fmt.Errorf("address country is required: %w", ErrNotValid)
	}
	return nil
}

// FullName returns the first and last name joined.
func (a Address) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}
