package observability

import (
	"context"
	"errors"
	"strings"

	"github.com/lzhou1110/boardwatch/internal/httpx"
)

const (
	ErrorNetwork   = "network"
	ErrorPermanent = "permanent"
	ErrorParsing   = "parsing"
	ErrorMail      = "mail"
	ErrorStore     = "store"
	ErrorUnknown   = "unknown"
)

func ClassifyFetchError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		if fe.Permanent {
			return ErrorPermanent
		}
		return ErrorNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorNetwork
	}
	return ErrorUnknown
}

func ClassifyCycleError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if kind := ClassifyFetchError(err); kind != ErrorUnknown {
		return kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "parse"):
		return ErrorParsing
	case strings.Contains(msg, "digest") || strings.Contains(msg, "mail") || strings.Contains(msg, "smtp"):
		return ErrorMail
	case strings.Contains(msg, "seen store"):
		return ErrorStore
	}
	return ErrorUnknown
}
