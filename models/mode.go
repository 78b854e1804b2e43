package models

import (
	"fmt"
	"strings"
)

// Mode is the fetch strategy requested by the caller.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeStatic  Mode = "static"
	ModeDynamic Mode = "dynamic"
)

// Method is the fetch strategy that actually produced a result.
const (
	MethodStatic  = "static"
	MethodDynamic = "dynamic"
)

// ParseMode normalises a user-supplied mode. The empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeStatic:
		return ModeStatic, nil
	case ModeDynamic:
		return ModeDynamic, nil
	default:
		return "", NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("unknown mode %q (want auto, static or dynamic)", s), nil)
	}
}
