// Package product is the product reference service. It owns no data of its
// own; each route resolves a customer through one of the bridges so that all
// three are exercised end to end.
package product
