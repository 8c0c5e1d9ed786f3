// Package customer is the customer reference service. It stores customers
// and their addresses in MongoDB, authenticates with HS256 JWTs tracked in
// Redis sets, and serves GET_PROFILE to other services over every bridge.
package customer
