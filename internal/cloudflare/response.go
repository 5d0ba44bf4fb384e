package cloudflare

import (
	"github.com/tidwall/gjson"
)

// parseAccountID reads result[0].id from an /accounts listing.
func parseAccountID(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &ProtocolError{Kind: ErrInvalidJSON, Body: string(body)}
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return "", &ProtocolError{Kind: ErrMissingResult, Body: string(body)}
	}
	if !result.IsArray() || len(result.Array()) == 0 {
		return "", &ProtocolError{Kind: ErrNoAccounts, Body: string(body)}
	}

	id := result.Get("0.id").String()
	if id == "" {
		return "", &ProtocolError{Kind: ErrNoAccounts, Body: string(body)}
	}
	return id, nil
}

// parseOutputText extracts the rewritten message from an inference
// response:
//
//	{"result":{"output":[{"type":"message","content":[{"type":"output_text","text":"..."}]}]}}
//
// The first output_text inside the first matching message wins. Older
// models answer {"result":{"response":"..."}}, which is accepted when no
// output array is present.
func parseOutputText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &ProtocolError{Kind: ErrInvalidJSON, Body: string(body)}
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return "", &ProtocolError{Kind: ErrMissingResult, Body: string(body)}
	}

	output := result.Get("output")
	if !output.Exists() || !output.IsArray() {
		if legacy := result.Get("response"); legacy.Type == gjson.String {
			return legacy.String(), nil
		}
		return "", &ProtocolError{Kind: ErrMissingOutput, Body: string(body)}
	}

	var (
		text  string
		found bool
	)
	output.ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("type").String() != "message" {
			return true
		}
		entry.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() != "output_text" {
				return true
			}
			t := part.Get("text")
			if !t.Exists() {
				return true
			}
			text, found = t.String(), true
			return false
		})
		return !found
	})

	if !found {
		return "", &ProtocolError{Kind: ErrMissingOutputText, Body: string(body)}
	}
	return text, nil
}
