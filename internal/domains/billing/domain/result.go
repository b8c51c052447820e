package domain

import "fmt"

// ResponseCode mirrors the platform billing service response codes. Values
// are passed through to signal payloads verbatim and must stay stable.
type ResponseCode int

const (
	CodeServiceTimeout      ResponseCode = -3
	CodeFeatureNotSupported ResponseCode = -2
	CodeServiceDisconnected ResponseCode = -1
	CodeOK                  ResponseCode = 0
	CodeUserCanceled        ResponseCode = 1
	CodeServiceUnavailable  ResponseCode = 2
	CodeBillingUnavailable  ResponseCode = 3
	CodeItemUnavailable     ResponseCode = 4
	CodeDeveloperError      ResponseCode = 5
	CodeError               ResponseCode = 6
	CodeItemAlreadyOwned    ResponseCode = 7
	CodeItemNotOwned        ResponseCode = 8
	CodeNetworkError        ResponseCode = 12
)

// Result is the immediate outcome the billing service reports for an
// operation: a response code plus the service's debug message.
type Result struct {
	Code    ResponseCode
	Message string
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Code == CodeOK }

func (r Result) String() string {
	return fmt.Sprintf("%d: %s", int(r.Code), r.Message)
}

// ResultOK is the zero-message success result.
var ResultOK = Result{Code: CodeOK}

// ConnectionState mirrors the billing client's reported connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = 0
	StateConnecting   ConnectionState = 1
	StateConnected    ConnectionState = 2
	StateClosed       ConnectionState = 3
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
