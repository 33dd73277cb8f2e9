package models

import "time"

type UserType string

const (
	UserTypeFarmer    UserType = "farmer"
	UserTypeBuyer     UserType = "buyer"
	UserTypeProcessor UserType = "processor"
	UserTypeRetailer  UserType = "retailer"
	UserTypeLogistics UserType = "logistics"
)

type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	UserType    UserType  `json:"user_type"`
	City        string    `json:"city"`
	CreatedAt   time.Time `json:"created_at"`
}
