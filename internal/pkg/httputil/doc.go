// Package httputil holds the JSON response helpers shared by the trigger
// and health handlers.
package httputil
