package account

import "fmt"

// RequestKind identifies the class of request an Authority can decide.
type RequestKind int

const (
	// WriteRequest asks whether the account may modify the filesystem.
	WriteRequest RequestKind = iota

	// ConcurrentLoginRequest asks whether one more session may log in.
	ConcurrentLoginRequest

	// TransferRateRequest asks for the account's transfer rate limits.
	TransferRateRequest
)

func (k RequestKind) String() string {
	switch k {
	case WriteRequest:
		return "write"
	case ConcurrentLoginRequest:
		return "concurrent-login"
	case TransferRateRequest:
		return "transfer-rate"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// Request is an authorization question put to an authority chain.
type Request struct {
	Kind RequestKind

	// Logins is the number of sessions the account would hold, counting the
	// session asking to log in. Used by ConcurrentLoginRequest.
	Logins int

	// LoginsFromSource is the same count restricted to the requesting
	// source address. Used by ConcurrentLoginRequest.
	LoginsFromSource int
}

// Verdict is the answer to a Request.
//
// Limit fields are filled by the authority that decided the request;
// 0 means unrestricted.
type Verdict struct {
	Granted bool

	MaxLogins          int
	MaxLoginsPerSource int

	MaxUploadRate   int
	MaxDownloadRate int
}

// Authority is one policy in an account's chain.
//
// The set of kinds is closed: an Authority answers exactly the request kind
// it was built for and abstains on every other. Fields irrelevant to the
// Kind are zero.
type Authority struct {
	Kind RequestKind

	// WriteRequest
	AllowWrite bool

	// ConcurrentLoginRequest (0 = unrestricted)
	MaxLogins          int
	MaxLoginsPerSource int

	// TransferRateRequest in bytes per second (0 = unrestricted)
	MaxUploadRate   int
	MaxDownloadRate int
}

// NewWriteAuthority builds a WriteAllowed policy.
func NewWriteAuthority(allow bool) Authority {
	return Authority{Kind: WriteRequest, AllowWrite: allow}
}

// NewConcurrentLoginAuthority builds a ConcurrentLogin policy. Negative
// limits are treated as 0 (unrestricted).
func NewConcurrentLoginAuthority(maxTotal, maxPerSource int) Authority {
	return Authority{
		Kind:               ConcurrentLoginRequest,
		MaxLogins:          max(maxTotal, 0),
		MaxLoginsPerSource: max(maxPerSource, 0),
	}
}

// NewTransferRateAuthority builds a TransferRate policy. Negative rates are
// treated as 0 (unrestricted).
func NewTransferRateAuthority(maxUpload, maxDownload int) Authority {
	return Authority{
		Kind:            TransferRateRequest,
		MaxUploadRate:   max(maxUpload, 0),
		MaxDownloadRate: max(maxDownload, 0),
	}
}

// authorizeFunc decides a request for an authority of a matching kind.
type authorizeFunc func(a Authority, req Request) Verdict

// dispatch maps each request kind to its decision function. Adding an
// authority kind means adding a RequestKind and an entry here.
var dispatch = map[RequestKind]authorizeFunc{
	WriteRequest: func(a Authority, _ Request) Verdict {
		return Verdict{Granted: a.AllowWrite}
	},
	ConcurrentLoginRequest: func(a Authority, req Request) Verdict {
		v := Verdict{
			Granted:            true,
			MaxLogins:          a.MaxLogins,
			MaxLoginsPerSource: a.MaxLoginsPerSource,
		}
		if a.MaxLogins != 0 && a.MaxLogins < req.Logins {
			v.Granted = false
		}
		if a.MaxLoginsPerSource != 0 && a.MaxLoginsPerSource < req.LoginsFromSource {
			v.Granted = false
		}
		return v
	},
	TransferRateRequest: func(a Authority, _ Request) Verdict {
		return Verdict{
			Granted:         true,
			MaxUploadRate:   a.MaxUploadRate,
			MaxDownloadRate: a.MaxDownloadRate,
		}
	},
}

// CanAuthorize reports whether the authority recognizes the request kind.
func (a Authority) CanAuthorize(req Request) bool {
	_, ok := dispatch[a.Kind]
	return ok && a.Kind == req.Kind
}

// Authorize decides req. The second result is false when the authority
// abstains.
func (a Authority) Authorize(req Request) (Verdict, bool) {
	if !a.CanAuthorize(req) {
		return Verdict{}, false
	}
	return dispatch[a.Kind](a, req), true
}

// Chain evaluates authorities in order. The first authority recognizing the
// request kind decides it.
//
// When no authority applies, write requests are denied and login or rate
// requests are granted without limits.
func Chain(authorities []Authority, req Request) Verdict {
	for _, a := range authorities {
		if v, ok := a.Authorize(req); ok {
			return v
		}
	}
	return Verdict{Granted: req.Kind != WriteRequest}
}
