// Package api handles incoming HTTP requests, request decoding, and response
// formatting for the distribution engine and its catalogs. Handlers translate
// HTTP concerns into service calls and map service errors to status codes
// through MapErrorToStatusCode.
package api
