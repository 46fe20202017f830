package authress

import "strings"

const (
	headerAccept        = "Accept"
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	headerUserAgent     = "User-Agent"

	mimeJSON = "application/json"
)

// SelectHeaders picks the Accept and Content-Type values for a request from
// the media types an operation offers. JSON always wins when it is offered.
// Accept is omitted when nothing is offered; Content-Type falls back to
// application/json.
func SelectHeaders(accept, contentTypes []string) map[string]string {
	headers := make(map[string]string, 2)

	if v, ok := selectAccept(accept); ok {
		headers[headerAccept] = v
	}
	headers[headerContentType] = selectContentType(contentTypes)

	return headers
}

// SelectHeadersForMultipart is SelectHeaders without Content-Type; the
// multipart writer supplies its own boundary-bearing type.
func SelectHeadersForMultipart(accept []string) map[string]string {
	headers := SelectHeaders(accept, nil)
	delete(headers, headerContentType)
	return headers
}

func selectAccept(accept []string) (string, bool) {
	switch {
	case isEmptyCandidates(accept):
		return "", false
	case containsJSON(accept):
		return mimeJSON, true
	default:
		return strings.Join(accept, ","), true
	}
}

func selectContentType(contentTypes []string) string {
	switch {
	case isEmptyCandidates(contentTypes):
		return mimeJSON
	case containsJSON(contentTypes):
		return mimeJSON
	default:
		return strings.Join(contentTypes, ",")
	}
}

func isEmptyCandidates(candidates []string) bool {
	return len(candidates) == 0 || (len(candidates) == 1 && candidates[0] == "")
}

// containsJSON matches application/json anywhere in a candidate, ignoring
// case, so parameterised forms like "application/json; charset=utf-8" count.
func containsJSON(candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c), mimeJSON) {
			return true
		}
	}
	return false
}
