package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Error codes produced by the client itself. Server-declared codes are passed
// through unchanged.
const (
	CodeNetwork         = "NETWORK_ERROR"
	CodeParse           = "PARSE_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeUnknown         = "UNKNOWN_ERROR"
	CodeHTTP            = "HTTP_ERROR"
	CodeDownloadFailed  = "DOWNLOAD_FAILED"
)

// Error is every failure surfaced by the API client. Status is zero when the
// request never produced an HTTP response.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an *Error carrying code.
func IsCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// StatusOf returns the HTTP status attached to err, or zero.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsTransport reports whether err means the backend contract was not met at
// all: unreachable, unparsable or incomplete.
func IsTransport(err error) bool {
	return IsCode(err, CodeNetwork) || IsCode(err, CodeParse) || IsCode(err, CodeInvalidResponse)
}

func networkError(err error) *Error {
	return &Error{
		Code:    CodeNetwork,
		Message: fmt.Sprintf("failed to connect to the server: %v", err),
		Err:     err,
	}
}

func invalidResponse(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidResponse, Message: fmt.Sprintf(format, args...)}
}

// errorFromJSON maps the error body shapes used by the backend:
// {error:{code,message}}, {error:"msg",code}, {code,message} and {detail}.
func errorFromJSON(status int, body []byte) *Error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return &Error{Code: CodeParse, Message: "failed to parse server response", Status: status, Err: err}
	}
	var code, message string
	if nested, ok := raw["error"]; ok {
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		var text string
		switch {
		case json.Unmarshal(nested, &obj) == nil:
			code, message = obj.Code, obj.Message
			if message == "" {
				message = obj.Detail
			}
		case json.Unmarshal(nested, &text) == nil:
			message = text
		}
	}
	if code == "" {
		code = stringMember(raw, "code")
	}
	if message == "" {
		message = stringMember(raw, "message")
	}
	if message == "" {
		message = detailMessage(raw["detail"])
	}
	if code == "" {
		code = CodeUnknown
	}
	if message == "" {
		message = "an error occurred"
		if text := http.StatusText(status); text != "" {
			message = text
		}
	}
	return &Error{Code: strings.TrimSpace(code), Message: message, Status: status}
}

func stringMember(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// detailMessage handles FastAPI style detail, a string or a list of {msg}.
func detailMessage(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(v, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// errorFromPage builds an error for non-JSON failure bodies such as proxy
// error pages, using the HTML title or leading text as the message.
func errorFromPage(status int, contentType string, body []byte) *Error {
	message := ""
	if strings.Contains(contentType, "html") {
		message = htmlSummary(body)
	} else {
		message = strings.TrimSpace(string(body))
	}
	if len(message) > 200 {
		message = message[:200]
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Code: CodeHTTP, Message: message, Status: status}
}

func htmlSummary(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var text []string
	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				skip = true
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode && !skip {
			if t := strings.TrimSpace(n.Data); t != "" {
				text = append(text, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)
	if title != "" {
		return title
	}
	return strings.Join(strings.Fields(strings.Join(text, " ")), " ")
}
