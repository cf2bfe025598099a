package transport

import (
	"strconv"

	"github.com/roach88/shopkeep/internal/ir"
)

// DefaultMessageKey is the table entry used when neither the status nor
// the problem has one.
const DefaultMessageKey = "defaultError"

// MessageFor picks the user-facing message for an error object: the
// entry for its status, else for its problem, else the default.
func MessageFor(errObj ir.Object, table map[string]string) string {
	if status, ok := errObj.GetInt("status"); ok {
		if msg, ok := table[strconv.FormatInt(status, 10)]; ok {
			return msg
		}
	}
	if problem := errObj.GetString("problem"); problem != "" {
		if msg, ok := table[problem]; ok {
			return msg
		}
	}
	return table[DefaultMessageKey]
}

// AlertMessage is the stricter variant used before showing an alert: the
// problem's entry first, then the status's, and no default. ok is false
// when the error should not be surfaced.
func AlertMessage(errObj ir.Object, table map[string]string) (msg string, ok bool) {
	if problem := errObj.GetString("problem"); problem != "" {
		if msg, ok := table[problem]; ok {
			return msg, true
		}
	}
	if status, has := errObj.GetInt("status"); has {
		if msg, ok := table[strconv.FormatInt(status, 10)]; ok {
			return msg, true
		}
	}
	return "", false
}

// DefaultMessages is the English message table.
func DefaultMessages() map[string]string {
	return map[string]string{
		"400":                   "The request was invalid.",
		"401":                   "Your session has expired. Please log in again.",
		"403":                   "You do not have permission to do that.",
		"404":                   "Not found.",
		"500":                   "The server had a problem. Please try again later.",
		string(ClientError):     "The request was rejected.",
		string(ServerError):     "The server had a problem. Please try again later.",
		string(TimeoutError):    "The server took too long to respond.",
		string(ConnectionError): "Cannot reach the server.",
		string(NetworkError):    "Network unavailable.",
		DefaultMessageKey:       "Something went wrong.",
	}
}
