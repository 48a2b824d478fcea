package transport

import (
	"bytes"
	"encoding/json"

	http "github.com/bogdanfinn/fhttp"
)

// resultCodeOK is the backend's success code in the response envelope.
const resultCodeOK = "S0000"

// outcome is the closed classification of a backend response. Every response
// is classified exactly once, here; nothing downstream re-inspects status
// codes.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeChallenge
	outcomeUnauthorized
	outcomeRateLimited
	outcomeServerError
	outcomeRejected
)

// Markers the edge gate leaves in challenge interstitials.
var challengeMarkers = [][]byte{
	[]byte("aws-waf-token"),
	[]byte("AwsWafCaptcha"),
	[]byte("challenge.aws"),
}

// classify maps a decoded response to its outcome.
func classify(statusCode int, header http.Header, body []byte) outcome {
	if isChallenge(statusCode, header, body) {
		return outcomeChallenge
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return outcomeSuccess
	case statusCode == http.StatusUnauthorized:
		return outcomeUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return outcomeRateLimited
	case statusCode >= 500:
		return outcomeServerError
	default:
		return outcomeRejected
	}
}

// isChallenge recognizes the gate's interposed responses: the dedicated
// action header, the 405 interstitial status, or the script markers in the
// body of any rejection.
func isChallenge(statusCode int, header http.Header, body []byte) bool {
	if header.Get("x-amzn-waf-action") != "" {
		return true
	}
	if statusCode < 400 {
		return false
	}
	if statusCode == http.StatusMethodNotAllowed {
		return true
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// envelope is the fixed response wrapper every BFF endpoint uses.
type envelope struct {
	Header struct {
		ResultCode    string `json:"resultCode"`
		ResultMessage string `json:"resultMessage"`
	} `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// parseEnvelope unwraps a successful response, turning a non-S0000 result
// code into an APIError.
func parseEnvelope(statusCode int, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{StatusCode: statusCode, Message: "malformed response envelope"}
	}
	if env.Header.ResultCode != resultCodeOK {
		return nil, &APIError{
			StatusCode: statusCode,
			ResultCode: env.Header.ResultCode,
			Message:    env.Header.ResultMessage,
		}
	}
	return env.Payload, nil
}
