package resilience

import "time"

const rateLimitMessage = "Too many requests were sent to the music service. Please wait a moment and try again."

var userMessages = map[Kind]string{
	KindNetwork:        "We couldn't reach the music service. Check your connection and try again.",
	KindValidation:     "Some of the information provided isn't valid. Please check your input and try again.",
	KindAuthentication: "Your session has expired. Please reconnect your account to continue.",
	KindAuthorization:  "Your account doesn't have the permissions needed for this action.",
	KindNotFound:       "We couldn't find what you were looking for. It may have been moved or deleted.",
	KindServer:         "The music service is temporarily unavailable. Please try again in a moment.",
	KindClient:         "The request couldn't be completed. Please try again.",
	KindCancelled:      "The operation was cancelled.",
	KindUnknown:        "Something went wrong. Please try again.",
}

// retryableKinds are the kinds retried by default. All others are permanent until an extension says otherwise.
var retryableKinds = NewKindSet(KindNetwork, KindServer)

// DefaultUserMessage returns the display message used for k when no extension overrides it.
func DefaultUserMessage(k Kind) string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// DefaultRetryable reports whether failures of kind k are retried by default.
func DefaultRetryable(k Kind) bool {
	return retryableKinds.Has(k)
}

// Normalize builds a [Record] for raw with the given kind.
//
// ext may be nil. When ext recognizes a sub-code in raw, its message, retryability and retry-after hint
// replace the generic defaults. A raw value that already is a [*Record] is returned unchanged.
func Normalize(raw any, kind Kind, ext Extension) *Record {
	return build(raw, inspect(raw), kind, ext, time.Now())
}

func build(raw any, s shape, kind Kind, ext Extension, now time.Time) *Record {
	if s.record != nil {
		return s.record
	}

	r := &Record{
		kind:        kind,
		code:        s.code,
		message:     s.message,
		userMessage: DefaultUserMessage(kind),
		retryable:   DefaultRetryable(kind),
		timestamp:   now,
		details:     s.details,
		cause:       s.cause,
	}
	if r.message == "" {
		r.message = fallbackMessage
	}

	if s.rateLimited() {
		r.retryable = true
		r.userMessage = rateLimitMessage
		r.retryAfter, r.hasRetryAfter = s.retryAfter(now)
	}

	if ext != nil {
		if sub, ok := ext.SubCode(raw); ok {
			r.subCode = sub
			r.extension = ext.Name()
			if msg, ok := ext.UserMessage(sub); ok {
				r.userMessage = msg
			}
			if retry, ok := ext.Retryable(sub); ok {
				r.retryable = retry
				r.overridden = true
			}
			if d, ok := ext.RetryAfter(raw); ok {
				r.retryAfter, r.hasRetryAfter = d, true
			}
		}
	}

	if !r.retryable {
		r.retryAfter, r.hasRetryAfter = 0, false
	}

	return r
}
