package routes

import "strings"

// extractionRequest is the parsed form of an extraction URL. Identifiers
// legally contain slashes (old-style e-prints like alg-geom/9204001,
// submission keys like 12345/checksum), so routes are registered with a
// wildcard and the reserved trailing segments are peeled off here.
type extractionRequest struct {
	Bucket     string
	Identifier string
	Version    string
	Format     string
	Status     bool
}

// parseExtractionPath splits a wildcard tail of the form
// {identifier}[/version/{v}][/format/{f}][/status] into its parts.
func parseExtractionPath(bucket, tail string) (extractionRequest, bool) {
	req := extractionRequest{Bucket: bucket}

	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) > 1 && parts[len(parts)-1] == "status" {
		req.Status = true
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 2 && parts[len(parts)-2] == "format" {
		req.Format = parts[len(parts)-1]
		parts = parts[:len(parts)-2]
	}
	if len(parts) > 2 && parts[len(parts)-2] == "version" {
		req.Version = parts[len(parts)-1]
		parts = parts[:len(parts)-2]
	}

	req.Identifier = strings.Join(parts, "/")
	if req.Identifier == "" {
		return req, false
	}
	return req, true
}

func statusURL(bucket, identifier string) string {
	return "/" + bucket + "/" + identifier + "/status"
}

func contentURL(bucket, identifier string) string {
	return "/" + bucket + "/" + identifier
}
