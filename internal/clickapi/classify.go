package clickapi

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
)

// Outcome classifies how a request ended.
type Outcome int

const (
	OutcomeNetworkError Outcome = iota
	OutcomeServerError
	OutcomeCredentialError
	OutcomeMetadataSucceeded
	OutcomeTokenSucceeded
	// OutcomeUnrecognized is a successful status carrying neither a token
	// header nor a body. It is not a failure kind of its own; receivers
	// decide what it means for their request.
	OutcomeUnrecognized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNetworkError:
		return "network-error"
	case OutcomeServerError:
		return "server-error"
	case OutcomeCredentialError:
		return "credential-error"
	case OutcomeMetadataSucceeded:
		return "metadata-succeeded"
	case OutcomeTokenSucceeded:
		return "token-succeeded"
	case OutcomeUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	ErrNetwork      = errors.New("network error")
	ErrServer       = errors.New("server error")
	ErrCredential   = errors.New("credential error")
	ErrUnrecognized = errors.New("unrecognized response")
)

// classifyStatus applies the status-code rules. ok is false when the status
// already decides the outcome as a failure.
func classifyStatus(status int) (Reply, bool) {
	switch {
	case status <= 0:
		return failure(OutcomeNetworkError, ErrNetwork, "could not parse status code"), false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure(OutcomeCredentialError, ErrCredential, "server responded with %d", status), false
	case status == http.StatusNotFound:
		return failure(OutcomeServerError, ErrServer, "server responded with 404"), false
	case status == http.StatusInternalServerError,
		status == http.StatusNotImplemented,
		status == http.StatusServiceUnavailable:
		return failure(OutcomeServerError, ErrServer, "server responded with %d", status), false
	case status >= 500:
		return failure(OutcomeNetworkError, ErrNetwork, "unknown server error %d", status), false
	case status >= 400:
		return failure(OutcomeServerError, ErrServer, "server responded with %d", status), false
	}
	return Reply{}, true
}

// classify decides the outcome of a request that produced a response.
func classify(status int, header http.Header, body []byte) Reply {
	if reply, ok := classifyStatus(status); !ok {
		reply.StatusCode = status
		return reply
	}

	if values, ok := header[http.CanonicalHeaderKey(TokenHeader)]; ok {
		token := ""
		if len(values) > 0 {
			token = values[0]
		}
		return Reply{Outcome: OutcomeTokenSucceeded, StatusCode: status, Token: token}
	}
	if len(body) > 0 {
		return Reply{Outcome: OutcomeMetadataSucceeded, StatusCode: status, Body: body}
	}
	return Reply{
		Outcome:    OutcomeUnrecognized,
		StatusCode: status,
		Err:        fmt.Errorf("%w: status %d with no token header and no body", ErrUnrecognized, status),
	}
}

// classifyTransport maps an error returned by http.Client.Do. Certificate
// and TLS handshake failures are server errors; everything else, including
// aborts, is a network error.
func classifyTransport(err error) Reply {
	if isTLSError(err) {
		return Reply{Outcome: OutcomeServerError, Err: fmt.Errorf("%w: tls: %v", ErrServer, err)}
	}
	return Reply{Outcome: OutcomeNetworkError, Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		alertErr    tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &alertErr)
}

func failure(outcome Outcome, sentinel error, format string, args ...any) Reply {
	return Reply{Outcome: outcome, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}
