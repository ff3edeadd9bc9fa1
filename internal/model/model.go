// Package model contains the records the files service stores and passes between layers.
// No business logic here.
package model
